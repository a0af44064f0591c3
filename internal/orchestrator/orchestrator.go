// Package orchestrator runs the application loop: discover postings, drop
// ones already attempted, score the rest, then submit the best matches
// sequentially under the daily quota.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mazholin/jobpilot/internal/discovery"
	"github.com/mazholin/jobpilot/internal/job"
	"github.com/mazholin/jobpilot/internal/ledger"
	"github.com/mazholin/jobpilot/internal/logger"
	"github.com/mazholin/jobpilot/internal/submit"
	"github.com/mazholin/jobpilot/internal/throttle"
	"github.com/mazholin/jobpilot/internal/utils"
)

// ErrAlreadyRunning is returned by Start when a loop is already active.
// The external channel supports one session, so there is never more than
// one orchestration flow per profile.
var ErrAlreadyRunning = errors.New("orchestrator is already running")

// ErrScheduleInPast rejects ScheduleAt calls with a non-future instant.
var ErrScheduleInPast = errors.New("schedule time must be in the future")

// Scorer scores one posting against the profile. Scoring is side-effect
// free and never fails.
type Scorer interface {
	Score(ctx context.Context, posting *job.Posting, profile *job.Profile) *job.MatchResult
}

// Submitter drives one posting through the application channel.
type Submitter interface {
	Run(ctx context.Context, posting *job.Posting, coverLetter string) *submit.Result
}

// LetterWriter generates a cover letter; a failure here downgrades the
// submission to a letterless one instead of skipping the job.
type LetterWriter interface {
	Generate(ctx context.Context, posting *job.Posting, profile *job.Profile) (string, error)
}

// Ledger is the durable outcome store consumed by the loop.
type Ledger interface {
	Record(rec *ledger.Record) error
	Contains(jobID string) (bool, error)
	FailedRecords(limit int) ([]*ledger.Record, error)
	MarkRetried(id string, when time.Time) error
	Stats() (*ledger.Stats, error)
	History(limit int) ([]*ledger.Record, error)
}

// Config tunes one orchestration run.
type Config struct {
	// MatchThreshold is the minimum overall score; equality matches.
	MatchThreshold float64
	// MaxPerCycle caps submissions per cycle after ranking.
	MaxPerCycle int
	// GenerateCoverLetters toggles the letter collaborator.
	GenerateCoverLetters bool
	// EmptyBackoff is the sleep after a discovery cycle with no results.
	EmptyBackoff time.Duration
	// CycleInterval is the sleep between processed batches.
	CycleInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxPerCycle <= 0 {
		c.MaxPerCycle = 5
	}
	if c.EmptyBackoff <= 0 {
		c.EmptyBackoff = 5 * time.Minute
	}
	if c.CycleInterval <= 0 {
		c.CycleInterval = 30 * time.Minute
	}
	return c
}

// Deps aggregates the collaborators the orchestrator drives.
type Deps struct {
	Searcher discovery.Searcher
	Scorer   Scorer
	Submit   Submitter
	Letters  LetterWriter
	Ledger   Ledger
	Throttle *throttle.Throttle
	Profile  *job.Profile
	Logger   *zap.Logger
}

// Stats reported to the surrounding system.
type Stats struct {
	TotalSubmitted int     `json:"total_submitted"`
	SubmittedToday int     `json:"submitted_today"`
	SuccessRate    float64 `json:"success_rate"`
	AverageScore   float64 `json:"average_score"`
	IsRunning      bool    `json:"is_running"`
}

// RetryOutcome summarizes one RetryFailed call.
type RetryOutcome struct {
	Retried   int `json:"retried"`
	Succeeded int `json:"succeeded"`
}

// Orchestrator owns the single orchestration flow for one candidate
// profile. The quota, the ledger and the channel session are mutated only
// from its loop goroutine.
type Orchestrator struct {
	cfg   Config
	deps  Deps
	log   *zap.Logger
	clock func() time.Time

	mu      sync.Mutex
	enabled bool
	running bool
	cancel  context.CancelFunc
}

func New(cfg Config, deps Deps) *Orchestrator {
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Orchestrator{
		cfg:   cfg.withDefaults(),
		deps:  deps,
		log:   log,
		clock: time.Now,
	}
}

// Start launches the loop for the given search criteria and returns
// immediately. It fails when a loop is already active.
func (o *Orchestrator) Start(ctx context.Context, params *discovery.SearchParams) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	o.running = true
	o.enabled = true
	o.cancel = cancel

	go func() {
		defer func() {
			o.mu.Lock()
			o.running = false
			o.cancel = nil
			o.mu.Unlock()
		}()
		o.run(runCtx, params)
	}()

	return nil
}

// ScheduleAt arranges for the loop to start at the given instant. A
// non-future instant is rejected synchronously.
func (o *Orchestrator) ScheduleAt(ctx context.Context, at time.Time, params *discovery.SearchParams) error {
	delay := at.Sub(o.clock())
	if delay <= 0 {
		return fmt.Errorf("%w: %s", ErrScheduleInPast, at.Format(time.RFC3339))
	}

	o.log.Info("scheduling run", zap.Time("at", at), zap.Duration("delay", delay))

	go func() {
		if err := utils.WaitFor(ctx, delay); err != nil {
			o.log.Info("scheduled run cancelled", zap.Error(err))
			return
		}
		if err := o.Start(ctx, params); err != nil {
			o.log.Warn("scheduled run not started", zap.Error(err))
		}
	}()

	return nil
}

// Pause suspends the loop before its next cycle or submission. An
// in-flight submission attempt is not interrupted mid-step.
func (o *Orchestrator) Pause() {
	o.mu.Lock()
	o.enabled = false
	o.mu.Unlock()
	o.log.Info("orchestrator paused")
}

// Resume lifts a pause.
func (o *Orchestrator) Resume() {
	o.mu.Lock()
	o.enabled = true
	o.mu.Unlock()
	o.log.Info("orchestrator resumed")
}

// Stop disables the loop and cancels its pending sleeps. The current
// submission, if any, still runs to its terminal state.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	o.enabled = false
	cancel := o.cancel
	o.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	o.log.Info("orchestrator stopped")
}

// IsRunning reports whether the loop goroutine is active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.running
}

func (o *Orchestrator) isEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.enabled
}

// Stats merges ledger aggregates with runtime state.
func (o *Orchestrator) Stats() (*Stats, error) {
	aggregates, err := o.deps.Ledger.Stats()
	if err != nil {
		return nil, err
	}

	return &Stats{
		TotalSubmitted: aggregates.TotalSubmitted,
		SubmittedToday: aggregates.SubmittedToday,
		SuccessRate:    aggregates.SuccessRate,
		AverageScore:   aggregates.AverageScore,
		IsRunning:      o.IsRunning(),
	}, nil
}

// History returns recent application records, most recent first.
func (o *Orchestrator) History(limit int) ([]*ledger.Record, error) {
	return o.deps.Ledger.History(limit)
}

// run is the main loop. It exits when disabled or when the daily quota is
// exhausted.
func (o *Orchestrator) run(ctx context.Context, params *discovery.SearchParams) {
	o.log.Info("orchestration loop started",
		zap.String("keywords", params.Keywords),
		zap.Float64("match_threshold", o.cfg.MatchThreshold),
		zap.Int("max_per_cycle", o.cfg.MaxPerCycle),
	)

	for o.isEnabled() && ctx.Err() == nil {
		if !o.deps.Throttle.AllowMoreToday() {
			o.log.Info("daily quota exhausted, loop finished",
				zap.Int("submitted_today", o.deps.Throttle.SubmittedToday()),
			)
			return
		}

		batch := o.discoverCandidates(ctx, params)
		if batch.Len() == 0 {
			o.log.Info("no suitable postings found, backing off",
				zap.Duration("backoff", o.cfg.EmptyBackoff),
			)
			if utils.WaitFor(ctx, o.cfg.EmptyBackoff) != nil {
				return
			}
			continue
		}

		o.submitBatch(ctx, batch)

		if utils.WaitFor(ctx, o.cfg.CycleInterval) != nil {
			return
		}
	}

	o.log.Info("orchestration loop finished")
}

// rankedPosting pairs a posting with its match result for the submission
// phase.
type rankedPosting struct {
	posting *job.Posting
	match   *job.MatchResult
}

type rankedBatch []rankedPosting

func (b rankedBatch) Len() int { return len(b) }

// discoverCandidates performs one discover → dedup → score → rank → top-N
// pass. Discovery failures are isolated: they produce an empty batch.
func (o *Orchestrator) discoverCandidates(ctx context.Context, params *discovery.SearchParams) rankedBatch {
	postings, err := o.deps.Searcher.Search(ctx, params)
	if err != nil {
		o.log.Warn("discovery failed, treating as empty result", zap.Error(err))
		return nil
	}

	initial := postings.Len()
	if initial == 0 {
		return nil
	}

	dropped := o.dropAlreadyApplied(postings)
	o.log.Info("filtered already applied postings",
		zap.Int("initial", initial),
		zap.Int("dropped", len(dropped)),
		zap.Int("left", postings.Len()),
	)

	var matched rankedBatch
	for _, posting := range postings.Items {
		result := o.deps.Scorer.Score(ctx, posting, o.deps.Profile)
		if !result.Matched(o.cfg.MatchThreshold) {
			o.log.Debug("posting below threshold",
				append(logger.JobFields(posting.ID, posting.Company),
					zap.Float64("score", result.Overall),
					zap.Float64("threshold", o.cfg.MatchThreshold),
				)...)
			continue
		}
		matched = append(matched, rankedPosting{posting: posting, match: result})
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].match.Overall > matched[j].match.Overall
	})

	if len(matched) > o.cfg.MaxPerCycle {
		matched = matched[:o.cfg.MaxPerCycle]
	}

	o.log.Info("candidates ranked",
		zap.Int("scored", postings.Len()),
		zap.Int("matched", len(matched)),
	)

	return matched
}

// dropAlreadyApplied removes postings the ledger already knows, in place,
// and returns the removed ids.
func (o *Orchestrator) dropAlreadyApplied(postings *job.Postings) []string {
	known := make([]string, 0, postings.Len())
	for _, posting := range postings.Items {
		applied, err := o.deps.Ledger.Contains(posting.ID)
		if err != nil {
			o.log.Warn("ledger lookup failed, keeping posting",
				append(logger.JobFields(posting.ID, posting.Company), zap.Error(err))...)
			continue
		}
		if applied {
			known = append(known, posting.ID)
		}
	}

	return postings.Exclude(job.PostingIDField, known)
}

// submitBatch submits ranked candidates in descending-score order, pacing
// each attempt with the throttle delay.
func (o *Orchestrator) submitBatch(ctx context.Context, batch rankedBatch) {
	for _, candidate := range batch {
		if !o.isEnabled() || ctx.Err() != nil {
			return
		}
		if !o.deps.Throttle.AllowMoreToday() {
			o.log.Info("daily quota reached, stopping batch")
			return
		}

		o.submitOne(ctx, candidate.posting, candidate.match)

		if utils.WaitFor(ctx, o.deps.Throttle.NextDelay()) != nil {
			return
		}
	}
}

func (o *Orchestrator) submitOne(ctx context.Context, posting *job.Posting, match *job.MatchResult) {
	log := logger.WithFields(o.log, logger.JobFields(posting.ID, posting.Company)...)

	coverLetter := o.generateLetter(ctx, log, posting)

	// The submission must reach a terminal state even when Stop cancels
	// the loop context mid-attempt.
	result := o.deps.Submit.Run(context.WithoutCancel(ctx), posting, coverLetter)

	score := match.Overall
	rec := &ledger.Record{
		JobID:       posting.ID,
		Title:       posting.Title,
		Company:     posting.Company,
		SubmittedAt: o.clock(),
		MatchScore:  &score,
		CoverLetter: coverLetter != "",
		Status:      ledger.StatusFailed,
		Error:       result.Error,
	}
	if result.Confirmed() {
		rec.Status = ledger.StatusSubmitted
		rec.Error = ""
	}

	if err := o.deps.Ledger.Record(rec); err != nil {
		log.Error("recording application outcome failed", zap.Error(err))
	}

	if result.Confirmed() {
		o.deps.Throttle.RecordSubmission()
		log.Info("application submitted",
			zap.Float64("score", match.Overall),
			zap.Int("submitted_today", o.deps.Throttle.SubmittedToday()),
		)
		return
	}

	log.Warn("application failed",
		zap.Int("steps", result.Steps),
		zap.String("reason", result.Error),
	)
}

func (o *Orchestrator) generateLetter(ctx context.Context, log *zap.Logger, posting *job.Posting) string {
	if !o.cfg.GenerateCoverLetters || o.deps.Letters == nil {
		return ""
	}

	letter, err := o.deps.Letters.Generate(ctx, posting, o.deps.Profile)
	if err != nil {
		log.Warn("cover letter generation failed, submitting without one", zap.Error(err))
		return ""
	}

	return letter
}

// RetryFailed replays failed records through the submission flow, flipping
// them to submitted on success. It respects the quota and the throttle
// delay like first-time submissions. The channel supports one session, so
// a retry pass claims the same run ownership as the main loop: it is
// rejected while the loop is active, and Start is rejected while a retry
// pass is active.
func (o *Orchestrator) RetryFailed(ctx context.Context, maxCount int) (*RetryOutcome, error) {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return nil, ErrAlreadyRunning
	}
	o.running = true
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.running = false
		o.mu.Unlock()
	}()

	if maxCount <= 0 {
		maxCount = 5
	}

	failed, err := o.deps.Ledger.FailedRecords(maxCount)
	if err != nil {
		return nil, fmt.Errorf("load failed records: %w", err)
	}

	outcome := &RetryOutcome{}
	for _, rec := range failed {
		if ctx.Err() != nil {
			break
		}
		if !o.deps.Throttle.AllowMoreToday() {
			o.log.Info("daily quota reached, stopping retries")
			break
		}

		posting := &job.Posting{
			ID:      rec.JobID,
			Title:   rec.Title,
			Company: rec.Company,
		}

		result := o.deps.Submit.Run(context.WithoutCancel(ctx), posting, "")
		outcome.Retried++

		if result.Confirmed() {
			if err := o.deps.Ledger.MarkRetried(rec.ID, o.clock()); err != nil {
				o.log.Error("marking record retried failed",
					append(logger.JobFields(rec.JobID, rec.Company), zap.Error(err))...)
			} else {
				outcome.Succeeded++
				o.deps.Throttle.RecordSubmission()
			}
		}

		if utils.WaitFor(ctx, o.deps.Throttle.NextDelay()) != nil {
			break
		}
	}

	o.log.Info("retry pass finished",
		zap.Int("retried", outcome.Retried),
		zap.Int("succeeded", outcome.Succeeded),
	)

	return outcome, nil
}

// Package scoring combines independent fit signals into one match score.
package scoring

import (
	"context"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/mazholin/jobpilot/internal/ai"
	"github.com/mazholin/jobpilot/internal/job"
	"github.com/mazholin/jobpilot/internal/logger"
)

// Fixed signal weights. They sum to 1.0.
const (
	weightSemantic   = 0.30
	weightSkills     = 0.30
	weightExperience = 0.20
	weightLocation   = 0.10
	weightHolistic   = 0.10
)

// Fallback values used when a signal cannot be computed. A partial provider
// failure degrades the score instead of aborting the caller.
const (
	fallbackSemantic   = 0.5
	fallbackSkills     = 0.3
	fallbackExperience = 0.7
	fallbackLocation   = 0.5
	fallbackHolistic   = 0.5
)

// requiredYears maps a posting's experience-level tag to required years.
// Unknown levels fall back to the mid-level requirement.
var requiredYears = map[string]int{
	"entry":     0,
	"associate": 2,
	"mid":       4,
	"senior":    7,
	"executive": 10,
}

const defaultRequiredYears = 4

// knownSkills is the keyword vocabulary mined out of free-text descriptions
// in addition to the posting's explicit requirement strings.
var knownSkills = []string{
	"python", "java", "javascript", "react", "angular", "vue", "node.js",
	"sql", "postgresql", "mysql", "mongodb", "aws", "azure", "docker",
	"kubernetes", "git", "linux", "fastapi", "django", "flask", "go",
	"golang", "terraform", "grpc", "kafka", "redis",
}

// Engine scores postings against the candidate profile.
type Engine struct {
	embedder ai.Embedder
	judge    ai.Judge
	logger   *zap.Logger
}

func NewEngine(embedder ai.Embedder, judge ai.Judge, logger *zap.Logger) *Engine {
	return &Engine{
		embedder: embedder,
		judge:    judge,
		logger:   logger,
	}
}

// Score computes the weighted match score for one posting. It never fails:
// every signal has an explicit fallback value, so the result is always a
// MatchResult with every component in [0,1].
func (e *Engine) Score(ctx context.Context, posting *job.Posting, profile *job.Profile) *job.MatchResult {
	jobText := posting.Text()

	breakdown := job.Breakdown{
		Semantic:   e.semanticSimilarity(ctx, posting, jobText, profile),
		Skills:     e.skillOverlap(posting, profile),
		Experience: e.experienceFit(posting, profile),
		Location:   e.locationFit(posting, profile),
		Holistic:   e.holisticScore(ctx, posting, jobText, profile),
	}

	overall := breakdown.Semantic*weightSemantic +
		breakdown.Skills*weightSkills +
		breakdown.Experience*weightExperience +
		breakdown.Location*weightLocation +
		breakdown.Holistic*weightHolistic

	return &job.MatchResult{
		JobID:     posting.ID,
		Overall:   clamp01(overall),
		Breakdown: breakdown,
	}
}

// semanticSimilarity is the cosine similarity between the profile embedding
// and the job-text embedding, shifted into [0,1].
func (e *Engine) semanticSimilarity(ctx context.Context, posting *job.Posting, jobText string, profile *job.Profile) float64 {
	if e.embedder == nil || len(profile.Embedding) == 0 {
		return fallbackSemantic
	}

	jobEmbedding, err := e.embedder.Embed(ctx, jobText)
	if err != nil {
		e.logger.Warn("embedding provider failed, using fallback semantic score",
			append(logger.JobFields(posting.ID, posting.Company), zap.Error(err))...)
		return fallbackSemantic
	}

	similarity, ok := cosineSimilarity(profile.Embedding, jobEmbedding)
	if !ok {
		e.logger.Warn("embedding dimensions mismatch, using fallback semantic score",
			zap.String("job_id", posting.ID),
			zap.Int("profile_dim", len(profile.Embedding)),
			zap.Int("job_dim", len(jobEmbedding)),
		)
		return fallbackSemantic
	}

	// Cosine similarity lands in [-1,1]; anything negative is as good as
	// no relation for ranking purposes.
	return clamp01(similarity)
}

// skillOverlap is the size of the intersection of normalized skill tokens
// over the size of the posting's token set.
func (e *Engine) skillOverlap(posting *job.Posting, profile *job.Profile) float64 {
	jobSkills := extractSkillTokens(posting)
	if len(jobSkills) == 0 {
		return fallbackSkills
	}

	userSkills := make(map[string]struct{}, len(profile.Skills))
	for _, skill := range profile.Skills {
		userSkills[normalizeToken(skill)] = struct{}{}
	}

	matching := 0
	for token := range jobSkills {
		if _, ok := userSkills[token]; ok {
			matching++
		}
	}

	return clamp01(float64(matching) / float64(len(jobSkills)))
}

func (e *Engine) experienceFit(posting *job.Posting, profile *job.Profile) float64 {
	level := normalizeToken(posting.ExperienceLevel)
	required, ok := requiredYears[level]
	if !ok {
		required = defaultRequiredYears
	}

	years := float64(profile.YearsProxy())
	switch {
	case years >= float64(required):
		return 1.0
	case years >= float64(required)*0.7:
		return 0.8
	case years >= float64(required)*0.5:
		return 0.6
	default:
		return 0.3
	}
}

func (e *Engine) locationFit(posting *job.Posting, profile *job.Profile) float64 {
	jobLocation := strings.ToLower(posting.Location)

	if strings.Contains(jobLocation, "remote") {
		return 1.0
	}

	userLocation := strings.ToLower(strings.TrimSpace(profile.Location))
	if userLocation != "" && strings.Contains(jobLocation, userLocation) {
		return 1.0
	}

	return fallbackLocation
}

func (e *Engine) holisticScore(ctx context.Context, posting *job.Posting, jobText string, profile *job.Profile) float64 {
	if e.judge == nil {
		return fallbackHolistic
	}

	score, err := e.judge.Judge(ctx, profile.SummaryText(), jobText)
	if err != nil {
		e.logger.Warn("ai judge failed, using fallback holistic score",
			append(logger.JobFields(posting.ID, posting.Company), zap.Error(err))...)
		return fallbackHolistic
	}

	return clamp01(score)
}

// extractSkillTokens collects normalized skill tokens from the posting's
// requirement strings and from known skill keywords found in its free text.
func extractSkillTokens(posting *job.Posting) map[string]struct{} {
	tokens := make(map[string]struct{})

	for _, req := range posting.Requirements {
		token := normalizeToken(req)
		if token != "" {
			tokens[token] = struct{}{}
		}
	}

	text := strings.ToLower(posting.Description + " " + strings.Join(posting.Requirements, " "))
	for _, skill := range knownSkills {
		if strings.Contains(text, skill) {
			tokens[skill] = struct{}{}
		}
	}

	return tokens
}

func normalizeToken(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// cosineSimilarity reports the cosine of the angle between two vectors.
// It returns false when the vectors are unusable (dimension mismatch or
// zero magnitude).
func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) == 0 || len(a) != len(b) {
		return 0, false
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0, false
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), true
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

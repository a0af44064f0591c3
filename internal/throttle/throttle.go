// Package throttle paces submissions with a daily quota and randomized
// inter-action delays.
package throttle

import (
	"math/rand"
	"sync"
	"time"
)

// Config bounds the submission rate.
type Config struct {
	// DailyCeiling is the maximum number of successful submissions per
	// calendar day.
	DailyCeiling int
	// MinDelay and MaxDelay bound the randomized pause between
	// consecutive submission attempts.
	MinDelay time.Duration
	MaxDelay time.Duration
}

// Throttle tracks today's submission count against the ceiling. The day
// boundary is the local calendar date: the counter resets when the observed
// date advances past the stored one.
type Throttle struct {
	cfg   Config
	clock func() time.Time
	rand  *rand.Rand

	mu    sync.Mutex
	date  string
	count int
}

func New(cfg Config) *Throttle {
	return &Throttle{
		cfg:   cfg,
		clock: time.Now,
		rand:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// AllowMoreToday reports whether another submission fits under the daily
// ceiling.
func (t *Throttle) AllowMoreToday() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()
	return t.count < t.cfg.DailyCeiling
}

// SeedToday primes today's counter from a durable source, so a restart
// mid-day does not reopen already spent quota. A seed lower than the
// current count is ignored.
func (t *Throttle) SeedToday(count int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()
	if count > t.count {
		t.count = count
	}
}

// RecordSubmission counts one successful submission against today's quota.
func (t *Throttle) RecordSubmission() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()
	t.count++
}

// SubmittedToday returns today's submission count.
func (t *Throttle) SubmittedToday() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked()
	return t.count
}

// NextDelay returns a uniformly random duration between the configured
// bounds, to be awaited between consecutive submission attempts.
func (t *Throttle) NextDelay() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()

	min, max := t.cfg.MinDelay, t.cfg.MaxDelay
	if max < min {
		max = min
	}
	if max == min {
		return min
	}

	return min + time.Duration(t.rand.Int63n(int64(max-min)))
}

func (t *Throttle) rolloverLocked() {
	today := t.clock().Local().Format("2006-01-02")
	if today != t.date {
		t.date = today
		t.count = 0
	}
}

package throttle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCeilingEnforced(t *testing.T) {
	t.Parallel()

	th := New(Config{DailyCeiling: 2})

	assert.True(t, th.AllowMoreToday())
	th.RecordSubmission()
	assert.True(t, th.AllowMoreToday())
	th.RecordSubmission()
	assert.False(t, th.AllowMoreToday())
	assert.Equal(t, 2, th.SubmittedToday())
}

func TestCounterResetsOnDateAdvance(t *testing.T) {
	t.Parallel()

	th := New(Config{DailyCeiling: 1})

	now := time.Date(2025, 3, 10, 23, 50, 0, 0, time.Local)
	th.clock = func() time.Time { return now }

	th.RecordSubmission()
	assert.False(t, th.AllowMoreToday())

	// Local midnight passes.
	now = now.Add(20 * time.Minute)
	assert.True(t, th.AllowMoreToday())
	assert.Equal(t, 0, th.SubmittedToday())
}

func TestSeedTodayRestoresSpentQuota(t *testing.T) {
	t.Parallel()

	th := New(Config{DailyCeiling: 3})

	// A restart mid-day replays the ledger's count of today's submissions.
	th.SeedToday(2)
	assert.Equal(t, 2, th.SubmittedToday())
	assert.True(t, th.AllowMoreToday())

	th.RecordSubmission()
	assert.False(t, th.AllowMoreToday())

	// A stale lower seed never rolls the counter back.
	th.SeedToday(1)
	assert.Equal(t, 3, th.SubmittedToday())
}

func TestSeedTodayAfterDateAdvance(t *testing.T) {
	t.Parallel()

	th := New(Config{DailyCeiling: 2})

	now := time.Date(2025, 3, 10, 23, 50, 0, 0, time.Local)
	th.clock = func() time.Time { return now }

	th.SeedToday(2)
	assert.False(t, th.AllowMoreToday())

	now = now.Add(20 * time.Minute)
	assert.True(t, th.AllowMoreToday())
	assert.Equal(t, 0, th.SubmittedToday())
}

func TestNoResetWithinSameDay(t *testing.T) {
	t.Parallel()

	th := New(Config{DailyCeiling: 1})

	now := time.Date(2025, 3, 10, 1, 0, 0, 0, time.Local)
	th.clock = func() time.Time { return now }

	th.RecordSubmission()
	now = now.Add(12 * time.Hour)
	assert.False(t, th.AllowMoreToday())
}

func TestNextDelayWithinBounds(t *testing.T) {
	t.Parallel()

	th := New(Config{MinDelay: 30 * time.Second, MaxDelay: 120 * time.Second})

	for i := 0; i < 100; i++ {
		d := th.NextDelay()
		assert.GreaterOrEqual(t, d, 30*time.Second)
		assert.Less(t, d, 120*time.Second)
	}
}

func TestNextDelayDegenerateBounds(t *testing.T) {
	t.Parallel()

	th := New(Config{MinDelay: time.Minute, MaxDelay: time.Minute})
	assert.Equal(t, time.Minute, th.NextDelay())

	th = New(Config{MinDelay: time.Minute, MaxDelay: time.Second})
	assert.Equal(t, time.Minute, th.NextDelay())
}

package ledger

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func score(v float64) *float64 { return &v }

func TestRecordAndContains(t *testing.T) {
	store := openTestStore(t)

	rec := &Record{
		JobID:       "j1",
		Title:       "Go Developer",
		Company:     "Acme",
		Status:      StatusSubmitted,
		MatchScore:  score(0.9),
		CoverLetter: true,
	}
	require.NoError(t, store.Record(rec))
	assert.NotEmpty(t, rec.ID, "id must be generated")

	found, err := store.Contains("j1")
	require.NoError(t, err)
	assert.True(t, found)

	found, err = store.Contains("j2")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAtMostOneSubmittedPerJob(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Record(&Record{JobID: "j1", Status: StatusSubmitted}))

	err := store.Record(&Record{JobID: "j1", Status: StatusSubmitted})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateSubmission))

	// A failed attempt for the same job is still recordable.
	require.NoError(t, store.Record(&Record{JobID: "j1", Status: StatusFailed, Error: "channel error"}))
}

func TestFailedRecordsOrderAndLimit(t *testing.T) {
	store := openTestStore(t)

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	for i, jobID := range []string{"a", "b", "c"} {
		require.NoError(t, store.Record(&Record{
			JobID:       jobID,
			Status:      StatusFailed,
			Error:       "boom",
			SubmittedAt: base.Add(time.Duration(i) * time.Hour),
		}))
	}
	require.NoError(t, store.Record(&Record{JobID: "d", Status: StatusSubmitted, SubmittedAt: base.Add(4 * time.Hour)}))

	failed, err := store.FailedRecords(2)
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, "c", failed[0].JobID, "most recent failure first")
	assert.Equal(t, "b", failed[1].JobID)
}

func TestMarkRetried(t *testing.T) {
	store := openTestStore(t)

	rec := &Record{JobID: "j1", Status: StatusFailed, Error: "channel error"}
	require.NoError(t, store.Record(rec))

	when := time.Date(2025, 3, 11, 9, 0, 0, 0, time.UTC)
	require.NoError(t, store.MarkRetried(rec.ID, when))

	history, err := store.History(10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, StatusSubmitted, history[0].Status)
	assert.Empty(t, history[0].Error)
	require.NotNil(t, history[0].RetriedAt)
	assert.True(t, history[0].RetriedAt.Equal(when))

	// Flipping twice is rejected: the record is no longer failed.
	assert.Error(t, store.MarkRetried(rec.ID, when))
}

func TestStats(t *testing.T) {
	store := openTestStore(t)

	now := time.Now()
	store.clock = func() time.Time { return now }

	require.NoError(t, store.Record(&Record{JobID: "j1", Status: StatusSubmitted, MatchScore: score(0.8), SubmittedAt: now}))
	require.NoError(t, store.Record(&Record{JobID: "j2", Status: StatusSubmitted, MatchScore: score(0.6), SubmittedAt: now.AddDate(0, 0, -2)}))
	require.NoError(t, store.Record(&Record{JobID: "j3", Status: StatusFailed, Error: "boom", SubmittedAt: now}))

	stats, err := store.Stats()
	require.NoError(t, err)

	assert.Equal(t, 3, stats.TotalApplications)
	assert.Equal(t, 2, stats.TotalSubmitted)
	assert.Equal(t, 1, stats.SubmittedToday)
	assert.InDelta(t, 2.0/3.0, stats.SuccessRate, 1e-9)
	assert.InDelta(t, 0.7, stats.AverageScore, 1e-9)
}

func TestStatsCountRetriedAsTodaySubmission(t *testing.T) {
	store := openTestStore(t)

	now := time.Now()
	store.clock = func() time.Time { return now }

	// Failed two days ago, retried successfully today. It spends today's
	// quota, so today's count must include it.
	rec := &Record{JobID: "j1", Status: StatusFailed, Error: "boom", SubmittedAt: now.AddDate(0, 0, -2)}
	require.NoError(t, store.Record(rec))
	require.NoError(t, store.MarkRetried(rec.ID, now))

	// Submitted yesterday, untouched today.
	require.NoError(t, store.Record(&Record{JobID: "j2", Status: StatusSubmitted, SubmittedAt: now.AddDate(0, 0, -1)}))

	stats, err := store.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSubmitted)
	assert.Equal(t, 1, stats.SubmittedToday)
}

func TestContainsIsIdempotent(t *testing.T) {
	store := openTestStore(t)

	require.NoError(t, store.Record(&Record{JobID: "x", Status: StatusSubmitted}))

	ids := []string{"x", "y"}
	filter := func() []string {
		var out []string
		for _, id := range ids {
			found, err := store.Contains(id)
			require.NoError(t, err)
			if !found {
				out = append(out, id)
			}
		}
		return out
	}

	first := filter()
	second := filter()
	assert.Equal(t, []string{"y"}, first)
	assert.Equal(t, first, second, "filtering twice against an unchanged ledger must agree")
}

package memoryrepository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zerodte/internal/models"
	"zerodte/internal/repository"
)

func runFor(id, jobID, day string, forced bool, started time.Time) *models.JobRun {
	return &models.JobRun{
		ID:          id,
		JobID:       jobID,
		MarketDay:   day,
		TriggeredBy: models.TriggerScheduler,
		StartedAt:   started,
		Forced:      forced,
	}
}

func TestClaimRun_ConflictsWithRunningOrSuccess(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)

	require.NoError(t, s.ClaimRun(ctx, runFor("a", "spy", "2025-03-03", false, now)))
	assert.ErrorIs(t, s.ClaimRun(ctx, runFor("b", "spy", "2025-03-03", false, now)), repository.ErrRunConflict)

	// Forced claims bypass the slot.
	require.NoError(t, s.ClaimRun(ctx, runFor("c", "spy", "2025-03-03", true, now)))

	// A different day or job is independent.
	require.NoError(t, s.ClaimRun(ctx, runFor("d", "spy", "2025-03-04", false, now)))
	require.NoError(t, s.ClaimRun(ctx, runFor("e", "qqq", "2025-03-03", false, now)))

	ended := now.Add(time.Second)
	require.NoError(t, s.FinishRun(ctx, &models.JobRun{ID: "a", Status: models.RunFailed, EndedAt: &ended}))
	// A failed run frees the slot.
	require.NoError(t, s.ClaimRun(ctx, runFor("f", "spy", "2025-03-03", false, now)))
}

func TestClaimRun_ConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()

	var wins int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.ClaimRun(ctx, runFor(string(rune('A'+i)), "spy", "2025-03-03", false, now))
			if err == nil {
				atomic.AddInt32(&wins, 1)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins)
}

func TestFinishRun_OnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now().UTC()
	require.NoError(t, s.ClaimRun(ctx, runFor("a", "spy", "2025-03-03", false, now)))

	ended := now.Add(time.Second)
	require.NoError(t, s.FinishRun(ctx, &models.JobRun{ID: "a", Status: models.RunSuccess, EndedAt: &ended, DurationMs: 1000}))
	assert.ErrorIs(t, s.FinishRun(ctx, &models.JobRun{ID: "a", Status: models.RunFailed, EndedAt: &ended}), repository.ErrRunFinalized)

	got, err := s.GetRun(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.RunSuccess, got.Status)

	success, err := s.FindSuccessfulRun(ctx, "spy", "2025-03-03")
	require.NoError(t, err)
	require.NotNil(t, success)
	assert.Equal(t, "a", success.ID)
}

func TestFailStaleRuns(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Date(2025, 3, 3, 16, 0, 0, 0, time.UTC)
	require.NoError(t, s.ClaimRun(ctx, runFor("old", "spy", "2025-03-03", false, now.Add(-time.Hour))))
	require.NoError(t, s.ClaimRun(ctx, runFor("fresh", "qqq", "2025-03-03", false, now.Add(-time.Minute))))

	failed, err := s.FailStaleRuns(ctx, now.Add(-15*time.Minute), now, "stale")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "old", failed[0].ID)
	assert.Equal(t, models.RunFailed, failed[0].Status)
	assert.Equal(t, int64(time.Hour/time.Millisecond), failed[0].DurationMs)

	fresh, err := s.GetRun(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, models.RunRunning, fresh.Status)
}

func TestJobs_UpsertKeepsEnabledAndListRuns(t *testing.T) {
	ctx := context.Background()
	s := New()
	require.NoError(t, s.UpsertJob(ctx, &models.Job{ID: "spy", Name: "SPY", Schedule: "0 45 9 * * 1-5", Enabled: true}))
	require.NoError(t, s.SetJobEnabled(ctx, "spy", false))
	require.NoError(t, s.UpsertJob(ctx, &models.Job{ID: "spy", Name: "SPY open", Schedule: "0 50 9 * * 1-5", Enabled: true}))

	job, err := s.GetJob(ctx, "spy")
	require.NoError(t, err)
	assert.False(t, job.Enabled)
	assert.Equal(t, "SPY open", job.Name)

	assert.ErrorIs(t, s.SetJobEnabled(ctx, "missing", true), repository.ErrJobNotFound)

	base := time.Date(2025, 3, 3, 15, 0, 0, 0, time.UTC)
	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, s.InsertRun(ctx, &models.JobRun{ID: id, JobID: "spy", Status: models.RunSkipped, StartedAt: base.Add(time.Duration(i) * time.Minute)}))
	}
	runs, err := s.ListRuns(ctx, repository.ListRunsParams{JobID: "spy", Limit: 2})
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "r3", runs[0].ID)
	assert.Equal(t, "r2", runs[1].ID)
}

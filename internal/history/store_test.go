package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"startup-positioning-map/config"
	"startup-positioning-map/db"
	"startup-positioning-map/internal/bootstrap"
	"startup-positioning-map/internal/pipeline"
	"startup-positioning-map/internal/stage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	h, err := db.Open(&config.Config{History: config.HistoryConfig{
		SQLitePath: filepath.Join(t.TempDir(), "history.db"),
	}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close() })
	require.NoError(t, db.Migrate(context.Background(), h, "up", nil))

	return NewStore(h, zap.NewNop().Sugar())
}

func sampleRun(id string, started time.Time) pipeline.Run {
	return pipeline.Run{
		ID:        id,
		Mode:      pipeline.ModeFull,
		Stages:    []stage.Name{stage.Scrape, stage.Process},
		Status:    pipeline.RunRunning,
		StartedAt: started,
	}
}

func TestStore_RecordsRunLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	run := sampleRun("run-a", started)
	require.NoError(t, s.RunStarted(ctx, run))

	scrape := pipeline.StageResult{
		Stage:     stage.Scrape,
		Position:  0,
		Status:    pipeline.StageOK,
		StartedAt: started.Add(time.Second),
		Duration:  1500 * time.Millisecond,
	}
	run.Results = append(run.Results, scrape)
	require.NoError(t, s.StageFinished(ctx, run, scrape))

	process := pipeline.StageResult{
		Stage:     stage.Process,
		Position:  1,
		Status:    pipeline.StageFailed,
		StartedAt: started.Add(3 * time.Second),
		Duration:  time.Second,
		Error:     "exit status 1",
	}
	run.Results = append(run.Results, process)
	require.NoError(t, s.StageFinished(ctx, run, process))

	finished := started.Add(5 * time.Second)
	run.FinishedAt = &finished
	run.Status = pipeline.RunFailed
	run.Bootstrap = bootstrap.OutcomeBootstrapped
	run.Error = "stage process failed: exit status 1"
	require.NoError(t, s.RunFinished(ctx, run))

	got, err := s.GetRun(ctx, "run-a")
	require.NoError(t, err)
	require.Equal(t, pipeline.RunFailed, got.Status)
	require.Equal(t, bootstrap.OutcomeBootstrapped, got.Bootstrap)
	require.Equal(t, []stage.Name{stage.Scrape, stage.Process}, got.Stages)
	require.Equal(t, started, got.StartedAt)
	require.NotNil(t, got.FinishedAt)
	require.Equal(t, finished, *got.FinishedAt)
	require.Equal(t, run.Error, got.Error)
	require.Equal(t, []pipeline.StageResult{scrape, process}, got.Results)
}

func TestStore_RunFinishedRecordsSkippedStages(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	run := sampleRun("run-env", time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))
	require.NoError(t, s.RunStarted(ctx, run))

	run.Status = pipeline.RunEnvironmentError
	run.Error = "environment bootstrap failed: python interpreter \"python3\" not found"
	run.Results = []pipeline.StageResult{
		{Stage: stage.Scrape, Position: 0, Status: pipeline.StageSkipped},
		{Stage: stage.Process, Position: 1, Status: pipeline.StageSkipped},
	}
	require.NoError(t, s.RunFinished(ctx, run))

	got, err := s.GetRun(ctx, "run-env")
	require.NoError(t, err)
	require.Len(t, got.Results, 2)
	require.Equal(t, pipeline.StageSkipped, got.Results[1].Status)
	require.True(t, got.Results[1].StartedAt.IsZero())
}

func TestStore_ListRunsNewestFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	for i, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, s.RunStarted(ctx, sampleRun(id, base.Add(time.Duration(i)*time.Minute))))
	}

	runs, err := s.ListRuns(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	require.Equal(t, "r3", runs[0].ID)
	require.Equal(t, "r2", runs[1].ID)
	require.Nil(t, runs[0].FinishedAt)
}

func TestStore_GetRunNotFound(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	require.ErrorIs(t, err, ErrRunNotFound)
}

func TestStore_Disabled(t *testing.T) {
	t.Parallel()

	s := NewStore(nil, nil)
	ctx := context.Background()
	require.False(t, s.Enabled())

	run := sampleRun("r", time.Now())
	require.NoError(t, s.RunStarted(ctx, run))
	require.NoError(t, s.StageFinished(ctx, run, pipeline.StageResult{}))
	require.NoError(t, s.RunFinished(ctx, run))

	_, err := s.ListRuns(ctx, 10)
	require.ErrorIs(t, err, db.ErrHistoryDisabled)
	_, err = s.GetRun(ctx, "r")
	require.ErrorIs(t, err, db.ErrHistoryDisabled)
}

func TestStore_RunFinishedWithoutRecordedStart(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	finished := started.Add(time.Minute)

	run := sampleRun("run-lost-start", started)
	run.Status = pipeline.RunSucceeded
	run.FinishedAt = &finished
	run.Results = []pipeline.StageResult{
		{Stage: stage.Scrape, Position: 0, Status: pipeline.StageOK, StartedAt: started, Duration: time.Second},
		{Stage: stage.Process, Position: 1, Status: pipeline.StageOK, StartedAt: started.Add(time.Second), Duration: time.Second},
	}
	require.NoError(t, s.RunFinished(ctx, run))
	// Redelivery of the same event is harmless.
	require.NoError(t, s.RunFinished(ctx, run))

	got, err := s.GetRun(ctx, "run-lost-start")
	require.NoError(t, err)
	require.Equal(t, pipeline.RunSucceeded, got.Status)
	require.Equal(t, pipeline.ModeFull, got.Mode)
	require.Equal(t, started, got.StartedAt)
	require.Len(t, got.Results, 2)
}

func TestStore_StageFinishedWithoutRecordedStart(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	scrape := pipeline.StageResult{Stage: stage.Scrape, Position: 0, Status: pipeline.StageOK, StartedAt: started, Duration: time.Second}
	require.NoError(t, s.StageFinished(ctx, pipeline.Run{ID: "run-partial"}, scrape))

	got, err := s.GetRun(ctx, "run-partial")
	require.NoError(t, err)
	require.Equal(t, pipeline.RunRunning, got.Status)
	require.Equal(t, started, got.StartedAt)
	require.Equal(t, []pipeline.StageResult{scrape}, got.Results)

	// The finished event fills in what the placeholder row lacked.
	finished := started.Add(time.Minute)
	run := sampleRun("run-partial", started)
	run.Status = pipeline.RunSucceeded
	run.FinishedAt = &finished
	run.Results = []pipeline.StageResult{scrape}
	require.NoError(t, s.RunFinished(ctx, run))

	got, err = s.GetRun(ctx, "run-partial")
	require.NoError(t, err)
	require.Equal(t, pipeline.RunSucceeded, got.Status)
	require.Equal(t, []stage.Name{stage.Scrape, stage.Process}, got.Stages)
}

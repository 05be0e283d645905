package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"startup-positioning-map/internal/bootstrap"
	"startup-positioning-map/internal/console"
	"startup-positioning-map/internal/stage"
)

// trace records the order of everything the runner does.
type trace struct {
	mu     sync.Mutex
	events []string
}

func (t *trace) add(e string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = append(t.events, e)
}

func (t *trace) list() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.events...)
}

type fakeBootstrapper struct {
	tr      *trace
	outcome bootstrap.Outcome
	err     error
}

func (b *fakeBootstrapper) Ensure(context.Context) (bootstrap.Outcome, error) {
	b.tr.add("bootstrap")
	return b.outcome, b.err
}

type fakeLocker struct {
	tr  *trace
	err error
}

func (l *fakeLocker) Acquire(context.Context) (func(context.Context) error, error) {
	if l.err != nil {
		return nil, l.err
	}
	l.tr.add("lock")
	return func(context.Context) error {
		l.tr.add("unlock")
		return nil
	}, nil
}

type fakeStage struct {
	name stage.Name
	tr   *trace
	err  error
	run  func(ctx context.Context) error
}

func (s *fakeStage) Name() stage.Name { return s.name }

func (s *fakeStage) Run(ctx context.Context) error {
	s.tr.add("stage:" + string(s.name))
	if s.run != nil {
		return s.run(ctx)
	}
	return s.err
}

type recordingObserver struct {
	tr  *trace
	err error
}

func (o *recordingObserver) RunStarted(_ context.Context, run Run) error {
	o.tr.add("observe:started")
	return o.err
}

func (o *recordingObserver) StageFinished(_ context.Context, _ Run, res StageResult) error {
	o.tr.add("observe:" + string(res.Stage) + ":" + string(res.Status))
	return o.err
}

func (o *recordingObserver) RunFinished(_ context.Context, run Run) error {
	o.tr.add("observe:finished:" + string(run.Status))
	return o.err
}

type fixture struct {
	tr     *trace
	boot   *fakeBootstrapper
	stages map[stage.Name]*fakeStage
	out    *bytes.Buffer
	runner *Runner
}

func newFixture(t *testing.T, cfg RunnerConfig) *fixture {
	t.Helper()

	tr := &trace{}
	f := &fixture{
		tr:     tr,
		boot:   &fakeBootstrapper{tr: tr, outcome: bootstrap.OutcomeAlreadyReady},
		stages: map[stage.Name]*fakeStage{},
		out:    &bytes.Buffer{},
	}
	var all []stage.Stage
	for _, n := range stage.Order {
		s := &fakeStage{name: n, tr: tr}
		f.stages[n] = s
		all = append(all, s)
	}
	reg, err := stage.NewRegistry(stage.NewRegistryParams{Stages: all})
	require.NoError(t, err)

	cfg.Streams = console.Streams{In: strings.NewReader(""), Out: f.out, Err: f.out}
	cfg.Logger = zap.NewNop().Sugar()
	f.runner = NewRunner(cfg, f.boot, &fakeLocker{tr: tr}, reg)

	clock := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	f.runner.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	f.runner.newID = func() string { return "run-1" }
	return f
}

func stageEvents(events []string) []string {
	var out []string
	for _, e := range events {
		if e == "bootstrap" || strings.HasPrefix(e, "stage:") {
			out = append(out, e)
		}
	}
	return out
}

func TestRunner_NoFlagsBootstrapsOnceThenRunsAllStagesInOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t, RunnerConfig{})
	f.boot.outcome = bootstrap.OutcomeBootstrapped

	plan, err := PlanFor(Flags{})
	require.NoError(t, err)

	summary, err := f.runner.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Equal(t, []string{
		"bootstrap", "stage:scrape", "stage:process", "stage:analyze", "stage:dashboard",
	}, stageEvents(f.tr.list()))

	require.Equal(t, RunSucceeded, summary.Run.Status)
	require.Equal(t, bootstrap.OutcomeBootstrapped, summary.Run.Bootstrap)
	require.Len(t, summary.Run.Results, 4)
	require.Contains(t, f.out.String(), "All requested steps completed successfully!")
	require.Contains(t, f.out.String(), "pipeline --dashboard")
}

func TestRunner_SingleStageRunsOnlyThatStage(t *testing.T) {
	t.Parallel()

	for _, name := range stage.Order {
		t.Run(string(name), func(t *testing.T) {
			f := newFixture(t, RunnerConfig{})

			summary, err := f.runner.Run(context.Background(), SinglePlan(name))
			require.NoError(t, err)
			require.Equal(t, []string{"bootstrap", "stage:" + string(name)}, stageEvents(f.tr.list()))
			require.Len(t, summary.Run.Results, 1)
			require.NotContains(t, f.out.String(), "view the dashboard again")
		})
	}
}

func TestRunner_SetupNeverRunsAStage(t *testing.T) {
	t.Parallel()

	f := newFixture(t, RunnerConfig{})
	f.boot.outcome = bootstrap.OutcomeBootstrapped

	plan, err := PlanFor(Flags{Setup: true})
	require.NoError(t, err)

	summary, err := f.runner.Run(context.Background(), plan)
	require.NoError(t, err)
	require.Equal(t, []string{"bootstrap"}, stageEvents(f.tr.list()))
	require.Empty(t, summary.Run.Results)
	require.Equal(t, RunSucceeded, summary.Run.Status)
}

func TestRunner_DashboardWithReadyEnvironment(t *testing.T) {
	t.Parallel()

	f := newFixture(t, RunnerConfig{})

	summary, err := f.runner.Run(context.Background(), SinglePlan(stage.Dashboard))
	require.NoError(t, err)
	require.Equal(t, bootstrap.OutcomeAlreadyReady, summary.Run.Bootstrap)
	require.Equal(t, []string{"bootstrap", "stage:dashboard"}, stageEvents(f.tr.list()))
}

func TestRunner_BootstrapFailureAbortsBeforeStages(t *testing.T) {
	t.Parallel()

	f := newFixture(t, RunnerConfig{})
	f.boot.err = &bootstrap.EnvironmentError{Reason: "python interpreter \"python3\" not found"}

	summary, err := f.runner.Run(context.Background(), SinglePlan(stage.Analyze))
	require.Error(t, err)
	require.True(t, IsEnvironmentError(err))
	require.Equal(t, []string{"bootstrap"}, stageEvents(f.tr.list()))
	require.Equal(t, RunEnvironmentError, summary.Run.Status)
	require.Equal(t, StageSkipped, summary.Run.Results[0].Status)
	require.NotNil(t, summary.Run.FinishedAt)
}

func TestRunner_LockWrapsBootstrapOnly(t *testing.T) {
	t.Parallel()

	f := newFixture(t, RunnerConfig{})

	_, err := f.runner.Run(context.Background(), SinglePlan(stage.Process))
	require.NoError(t, err)

	var got []string
	for _, e := range f.tr.list() {
		if !strings.HasPrefix(e, "observe:") {
			got = append(got, e)
		}
	}
	require.Equal(t, []string{"lock", "bootstrap", "unlock", "stage:process"}, got)
}

func TestRunner_LockFailureIsEnvironmentError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, RunnerConfig{})
	f.runner.locker = &fakeLocker{tr: f.tr, err: errors.New("locked")}

	_, err := f.runner.Run(context.Background(), SinglePlan(stage.Process))
	require.True(t, IsEnvironmentError(err))
	require.Empty(t, stageEvents(f.tr.list()))
}

func TestRunner_ContinuesAfterStageFailureByDefault(t *testing.T) {
	t.Parallel()

	f := newFixture(t, RunnerConfig{})
	boom := errors.New("exit status 1")
	f.stages[stage.Process].err = boom

	summary, err := f.runner.Run(context.Background(), Plan{Mode: ModeFull, Stages: stage.Order})
	require.Error(t, err)
	require.True(t, errors.Is(err, boom))

	var stageErr *stage.StageError
	require.True(t, errors.As(err, &stageErr))
	require.Equal(t, stage.Process, stageErr.Stage)

	require.Equal(t, []string{
		"bootstrap", "stage:scrape", "stage:process", "stage:analyze", "stage:dashboard",
	}, stageEvents(f.tr.list()))
	require.Equal(t, RunFailed, summary.Run.Status)
	require.Equal(t, []stage.Name{stage.Process}, summary.Run.Failed())
	require.Contains(t, f.out.String(), "Some steps failed")
}

func TestRunner_FailFastSkipsRemainingStages(t *testing.T) {
	t.Parallel()

	f := newFixture(t, RunnerConfig{FailFast: true})
	f.stages[stage.Scrape].err = errors.New("no data")

	summary, err := f.runner.Run(context.Background(), Plan{Mode: ModeFull, Stages: stage.Order})
	require.Error(t, err)
	require.Equal(t, []string{"bootstrap", "stage:scrape"}, stageEvents(f.tr.list()))

	statuses := map[stage.Name]StageStatus{}
	for _, r := range summary.Run.Results {
		statuses[r.Stage] = r.Status
	}
	require.Equal(t, map[stage.Name]StageStatus{
		stage.Scrape:    StageFailed,
		stage.Process:   StageSkipped,
		stage.Analyze:   StageSkipped,
		stage.Dashboard: StageSkipped,
	}, statuses)
}

func TestRunner_InterruptSkipsRemainingStages(t *testing.T) {
	t.Parallel()

	f := newFixture(t, RunnerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	f.stages[stage.Process].run = func(context.Context) error {
		cancel()
		return nil
	}

	summary, err := f.runner.Run(ctx, Plan{Mode: ModeFull, Stages: stage.Order})
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, RunCancelled, summary.Run.Status)
	require.Equal(t, []string{"bootstrap", "stage:scrape", "stage:process"}, stageEvents(f.tr.list()))
	require.Equal(t, StageSkipped, summary.Run.Results[2].Status)
	require.Equal(t, StageSkipped, summary.Run.Results[3].Status)
}

func TestRunner_InterruptDuringLastStageIsCancelled(t *testing.T) {
	t.Parallel()

	f := newFixture(t, RunnerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	f.stages[stage.Scrape].run = func(context.Context) error {
		cancel()
		return errors.New("signal: interrupt")
	}

	summary, err := f.runner.Run(ctx, SinglePlan(stage.Scrape))
	require.True(t, errors.Is(err, context.Canceled))
	require.Equal(t, RunCancelled, summary.Run.Status)
	require.Equal(t, StageFailed, summary.Run.Results[0].Status)
}

func TestRunner_CleanStopOnInterruptSucceeds(t *testing.T) {
	t.Parallel()

	f := newFixture(t, RunnerConfig{})
	ctx, cancel := context.WithCancel(context.Background())
	f.stages[stage.Dashboard].run = func(context.Context) error {
		cancel()
		return nil
	}

	summary, err := f.runner.Run(ctx, SinglePlan(stage.Dashboard))
	require.NoError(t, err)
	require.Equal(t, RunSucceeded, summary.Run.Status)
}

func TestRunner_ObserversSeeEveryEventAndTheirErrorsAreIgnored(t *testing.T) {
	t.Parallel()

	tr := &trace{}
	obs := &recordingObserver{tr: tr, err: errors.New("broker down")}
	f := newFixture(t, RunnerConfig{Observers: []Observer{obs}})
	f.stages[stage.Analyze].err = errors.New("bad input")

	_, err := f.runner.Run(context.Background(), Plan{Mode: ModeFull, Stages: []stage.Name{stage.Process, stage.Analyze}})
	var stageErr *stage.StageError
	require.True(t, errors.As(err, &stageErr))

	require.Equal(t, []string{
		"observe:started",
		"observe:process:ok",
		"observe:analyze:failed",
		"observe:finished:failed",
	}, tr.list())
}

func TestRunner_UnregisteredStageFails(t *testing.T) {
	t.Parallel()

	f := newFixture(t, RunnerConfig{})
	f.runner.stages = stage.Registry{}

	summary, err := f.runner.Run(context.Background(), SinglePlan(stage.Scrape))
	require.Error(t, err)
	require.Equal(t, StageFailed, summary.Run.Results[0].Status)
}

func TestRunner_RecordsTimings(t *testing.T) {
	t.Parallel()

	f := newFixture(t, RunnerConfig{})

	summary, err := f.runner.Run(context.Background(), SinglePlan(stage.Scrape))
	require.NoError(t, err)
	require.Equal(t, "run-1", summary.Run.ID)
	require.Equal(t, time.Second, summary.Run.Results[0].Duration)
	require.True(t, summary.Run.FinishedAt.After(summary.Run.StartedAt))
}

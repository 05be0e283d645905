// Package pipeline plans and executes a pipeline run: environment bootstrap
// followed by the selected stages in fixed order.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"startup-positioning-map/internal/bootstrap"
	"startup-positioning-map/internal/console"
	"startup-positioning-map/internal/stage"
)

type Bootstrapper interface {
	Ensure(ctx context.Context) (bootstrap.Outcome, error)
}

// Locker serializes bootstrap work across processes sharing a project.
type Locker interface {
	Acquire(ctx context.Context) (release func(context.Context) error, err error)
}

type StageSource interface {
	Get(name stage.Name) (stage.Stage, error)
}

type RunnerConfig struct {
	FailFast  bool
	Streams   console.Streams
	Logger    *zap.SugaredLogger
	Observers []Observer
}

type Runner struct {
	cfg          RunnerConfig
	logger       *zap.SugaredLogger
	bootstrapper Bootstrapper
	locker       Locker
	stages       StageSource

	newID func() string
	now   func() time.Time
}

func NewRunner(cfg RunnerConfig, b Bootstrapper, locker Locker, stages StageSource) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Streams.Out == nil {
		cfg.Streams = console.Discard()
	}
	return &Runner{
		cfg:          cfg,
		logger:       logger,
		bootstrapper: b,
		locker:       locker,
		stages:       stages,
		newID:        uuid.NewString,
		now:          time.Now,
	}
}

// Run bootstraps the environment when needed and then runs the planned
// stages. The returned error is the bootstrap error, ctx.Err() when the run
// was interrupted, or the joined stage errors.
func (r *Runner) Run(ctx context.Context, plan Plan) (Summary, error) {
	run := Run{
		ID:        r.newID(),
		Mode:      plan.Mode,
		Stages:    append([]stage.Name(nil), plan.Stages...),
		Status:    RunRunning,
		StartedAt: r.now().UTC(),
	}
	summary := Summary{}

	r.logger.Infow("run_started", "run_id", run.ID, "mode", run.Mode, "stages", run.Stages)
	r.notify(ctx, "run_started", func(o Observer, octx context.Context) error { return o.RunStarted(octx, run) })

	outcome, err := r.ensureEnvironment(ctx)
	run.Bootstrap = outcome
	if err != nil {
		run.Status = RunEnvironmentError
		run.Error = err.Error()
		for i, name := range plan.Stages {
			run.Results = append(run.Results, StageResult{Stage: name, Position: i, Status: StageSkipped})
		}
		summary.Run = r.finish(ctx, run)
		return summary, err
	}

	var interrupted error
	for i, name := range plan.Stages {
		if interrupted == nil {
			interrupted = ctx.Err()
		}
		if interrupted != nil || (r.cfg.FailFast && len(summary.StageErrors) > 0) {
			run.Results = append(run.Results, StageResult{Stage: name, Position: i, Status: StageSkipped})
			continue
		}

		res, serr := r.runStage(ctx, i, name)
		run.Results = append(run.Results, res)
		if serr != nil {
			summary.StageErrors = append(summary.StageErrors, serr)
			// A stage killed by the interrupt counts as cancelled. A stage
			// that stops cleanly on interrupt, like the dashboard, does not.
			interrupted = ctx.Err()
		}
		r.notify(ctx, "stage_finished", func(o Observer, octx context.Context) error { return o.StageFinished(octx, run, res) })
	}

	switch {
	case interrupted != nil:
		run.Status = RunCancelled
		run.Error = interrupted.Error()
	case len(summary.StageErrors) > 0:
		run.Status = RunFailed
		run.Error = summary.Err().Error()
	default:
		run.Status = RunSucceeded
	}
	summary.Run = r.finish(ctx, run)
	r.printSummary(summary)

	if interrupted != nil {
		return summary, interrupted
	}
	return summary, summary.Err()
}

func (r *Runner) ensureEnvironment(ctx context.Context) (bootstrap.Outcome, error) {
	release, err := r.locker.Acquire(ctx)
	if err != nil {
		return "", &bootstrap.EnvironmentError{Reason: "acquire bootstrap lock", Err: err}
	}
	defer func() {
		if rerr := release(context.WithoutCancel(ctx)); rerr != nil {
			r.logger.Warnw("bootstrap_lock_release_failed", "err", rerr.Error())
		}
	}()

	return r.bootstrapper.Ensure(ctx)
}

func (r *Runner) runStage(ctx context.Context, pos int, name stage.Name) (StageResult, error) {
	res := StageResult{Stage: name, Position: pos, StartedAt: r.now().UTC()}

	s, err := r.stages.Get(name)
	if err == nil {
		r.logger.Infow("stage_started", "stage", name)
		err = s.Run(ctx)
	}
	res.Duration = r.now().UTC().Sub(res.StartedAt)

	if err != nil {
		serr := &stage.StageError{Stage: name, Err: err}
		res.Status = StageFailed
		res.Error = err.Error()
		r.logger.Errorw(
			"stage_failed",
			"stage", name,
			"duration", res.Duration.Round(time.Millisecond).String(),
			"err", err.Error(),
		)
		return res, serr
	}

	res.Status = StageOK
	r.logger.Infow("stage_finished", "stage", name, "duration", res.Duration.Round(time.Millisecond).String())
	return res, nil
}

func (r *Runner) finish(ctx context.Context, run Run) Run {
	finished := r.now().UTC()
	run.FinishedAt = &finished

	r.logger.Infow(
		"run_finished",
		"run_id", run.ID,
		"status", run.Status,
		"bootstrap", run.Bootstrap,
		"duration", finished.Sub(run.StartedAt).Round(time.Millisecond).String(),
	)
	r.notify(ctx, "run_finished", func(o Observer, octx context.Context) error { return o.RunFinished(octx, run) })
	return run
}

// notify runs observers on a context that survives an interrupted run so
// the final records still get written.
func (r *Runner) notify(ctx context.Context, event string, fn func(Observer, context.Context) error) {
	octx := context.WithoutCancel(ctx)
	for _, o := range r.cfg.Observers {
		if err := fn(o, octx); err != nil {
			r.logger.Warnw("observer_failed", "event", event, "observer", fmt.Sprintf("%T", o), "err", err.Error())
		}
	}
}

func (r *Runner) printSummary(s Summary) {
	out := r.cfg.Streams.Out
	run := s.Run

	if len(run.Stages) == 0 {
		return
	}
	switch run.Status {
	case RunSucceeded:
		fmt.Fprintln(out, "\n✅ All requested steps completed successfully!")
	case RunCancelled:
		fmt.Fprintln(out, "\n⚠️ Run interrupted. Remaining steps were skipped.")
	default:
		fmt.Fprintln(out, "\n⚠️ Some steps failed. Check the output above for details.")
	}

	if run.Mode == ModeFull {
		fmt.Fprintln(out, "\nTo view the dashboard again, run: pipeline --dashboard")
	}
}

// IsEnvironmentError reports whether err aborted the run before any stage.
func IsEnvironmentError(err error) bool {
	var envErr *bootstrap.EnvironmentError
	return errors.As(err, &envErr)
}

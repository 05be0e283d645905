package pipelinerun

import (
	"context"
	"fmt"
	"strings"

	"startup-positioning-map/internal/pipeline"
	"startup-positioning-map/internal/stage"

	"github.com/inngest/inngestgo"
	"github.com/inngest/inngestgo/step"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const RunRequestedEventName = "pipeline/run.requested"

type RunRequestedEventData struct {
	// Stage is one of scrape, process or analyze. Empty runs all three.
	Stage       string `json:"stage,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

type pipelineRunner interface {
	Run(ctx context.Context, plan pipeline.Plan) (pipeline.Summary, error)
}

type RunResult struct {
	RunID  string                 `json:"run_id"`
	Status pipeline.RunStatus     `json:"status"`
	Failed []stage.Name           `json:"failed,omitempty"`
	Stages []pipeline.StageResult `json:"stages"`
}

type PipelineRunFunction struct {
	runner pipelineRunner
	logger *zap.SugaredLogger
}

type NewPipelineRunFunctionParams struct {
	fx.In

	Runner *pipeline.Runner
	Logger *zap.SugaredLogger
}

func NewPipelineRunFunction(p NewPipelineRunFunctionParams) *PipelineRunFunction {
	return &PipelineRunFunction{runner: p.Runner, logger: p.Logger}
}

// PlanForEvent maps event data to a plan. The dashboard blocks until
// interrupted so it is never started from a background job.
func PlanForEvent(data RunRequestedEventData) (pipeline.Plan, error) {
	raw := strings.ToLower(strings.TrimSpace(data.Stage))
	if raw == "" {
		return pipeline.BatchPlan(), nil
	}

	name, err := stage.ParseName(raw)
	if err != nil {
		return pipeline.Plan{}, err
	}
	if name == stage.Dashboard {
		return pipeline.Plan{}, fmt.Errorf("stage %q only runs in the foreground", name)
	}
	return pipeline.SinglePlan(name), nil
}

func (f *PipelineRunFunction) Handle(ctx context.Context, input inngestgo.Input[RunRequestedEventData]) (any, error) {
	plan, err := PlanForEvent(input.Event.Data)
	if err != nil {
		return nil, inngestgo.NoRetryError(err)
	}

	res, err := step.Run(ctx, "run-pipeline", func(ctx context.Context) (RunResult, error) {
		f.logger.Infow("🏃🏻 inngest_step",
			"step", "run-pipeline",
			"mode", plan.Mode,
			"stages", plan.Stages,
			"requested_by", input.Event.Data.RequestedBy,
		)
		return f.run(ctx, plan)
	})
	if err != nil {
		f.logger.Errorw("❌ inngest_step_failed", "step", "run-pipeline", "err", err.Error())
		return nil, inngestgo.NoRetryError(err)
	}

	f.logger.Infow("✅ done run-pipeline", "run_id", res.RunID, "status", res.Status)
	return res, nil
}

func (f *PipelineRunFunction) run(ctx context.Context, plan pipeline.Plan) (RunResult, error) {
	summary, err := f.runner.Run(ctx, plan)
	res := RunResult{
		RunID:  summary.Run.ID,
		Status: summary.Run.Status,
		Failed: summary.Run.Failed(),
		Stages: summary.Run.Results,
	}
	return res, err
}

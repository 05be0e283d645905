package runrecorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"startup-positioning-map/internal/bootstrap"
	"startup-positioning-map/internal/events"
	"startup-positioning-map/internal/history"
	"startup-positioning-map/internal/pipeline"
	"startup-positioning-map/internal/stage"
)

var ErrUnknownEvent = errors.New("unknown event")

type Handler interface {
	Handle(ctx context.Context, msg Envelope) error
}

// Recorder writes lifecycle events published by remote runners into the
// run history.
type Recorder struct {
	observer pipeline.Observer
	logger   *zap.SugaredLogger
}

func NewRecorder(store *history.Store, logger *zap.SugaredLogger) *Recorder {
	return &Recorder{observer: store, logger: logger}
}

func (r *Recorder) Handle(ctx context.Context, msg Envelope) error {
	switch msg.EventName {
	case events.RunStartedKey:
		var d events.RunData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventName, err)
		}
		run := toRun(d)
		if run.StartedAt.IsZero() {
			run.StartedAt = msg.TS
		}
		return r.observer.RunStarted(ctx, run)

	case events.StageFinishedKey:
		var d events.StageData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventName, err)
		}
		return r.observer.StageFinished(ctx, pipeline.Run{ID: d.RunID}, toResult(d))

	case events.RunFinishedKey:
		var d events.RunData
		if err := json.Unmarshal(msg.Data, &d); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventName, err)
		}
		run := toRun(d)
		if run.FinishedAt == nil {
			ts := msg.TS
			run.FinishedAt = &ts
		}
		return r.observer.RunFinished(ctx, run)

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, msg.EventName)
	}
}

func toRun(d events.RunData) pipeline.Run {
	run := pipeline.Run{
		ID:         d.RunID,
		Mode:       pipeline.Mode(d.Mode),
		Status:     pipeline.RunStatus(d.Status),
		Bootstrap:  bootstrap.Outcome(d.Bootstrap),
		Error:      d.Error,
		StartedAt:  d.StartedAt,
		FinishedAt: d.FinishedAt,
	}
	for _, s := range d.Stages {
		run.Stages = append(run.Stages, stage.Name(s))
	}
	for _, res := range d.Results {
		run.Results = append(run.Results, toResult(res))
	}
	return run
}

func toResult(d events.StageData) pipeline.StageResult {
	return pipeline.StageResult{
		Stage:     stage.Name(d.Stage),
		Position:  d.Position,
		Status:    pipeline.StageStatus(d.Status),
		StartedAt: d.StartedAt,
		Duration:  time.Duration(d.DurationMs) * time.Millisecond,
		Error:     d.Error,
	}
}

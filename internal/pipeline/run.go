package pipeline

import (
	"context"
	"errors"
	"time"

	"startup-positioning-map/internal/bootstrap"
	"startup-positioning-map/internal/stage"
)

type RunStatus string

const (
	RunRunning          RunStatus = "running"
	RunSucceeded        RunStatus = "succeeded"
	RunFailed           RunStatus = "failed"
	RunEnvironmentError RunStatus = "environment_error"
	RunCancelled        RunStatus = "cancelled"
)

type StageStatus string

const (
	StageOK      StageStatus = "ok"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

type StageResult struct {
	Stage     stage.Name    `json:"stage"`
	Position  int           `json:"position"`
	Status    StageStatus   `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Run is the record of one invocation.
type Run struct {
	ID         string            `json:"id"`
	Mode       Mode              `json:"mode"`
	Stages     []stage.Name      `json:"stages"`
	Status     RunStatus         `json:"status"`
	Bootstrap  bootstrap.Outcome `json:"bootstrap,omitempty"`
	Error      string            `json:"error,omitempty"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Results    []StageResult     `json:"results"`
}

func (r Run) Failed() []stage.Name {
	var out []stage.Name
	for _, res := range r.Results {
		if res.Status == StageFailed {
			out = append(out, res.Stage)
		}
	}
	return out
}

type Summary struct {
	Run         Run
	StageErrors []error
}

// Err joins every stage failure of the run, nil when there were none.
func (s Summary) Err() error { return errors.Join(s.StageErrors...) }

// Observer is told about run progress. Errors are logged by the runner and
// never change the outcome of a run.
type Observer interface {
	RunStarted(ctx context.Context, run Run) error
	StageFinished(ctx context.Context, run Run, result StageResult) error
	RunFinished(ctx context.Context, run Run) error
}

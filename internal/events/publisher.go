// Package events publishes run lifecycle events to RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"startup-positioning-map/config"
	"startup-positioning-map/internal/pipeline"
)

const (
	RunStartedKey    = "pipeline.run.started.v1"
	StageFinishedKey = "pipeline.stage.finished.v1"
	RunFinishedKey   = "pipeline.run.finished.v1"
)

type Envelope struct {
	EventName string    `json:"event_name"`
	EventID   string    `json:"event_id"`
	TS        time.Time `json:"ts"`
	Data      any       `json:"data"`
}

type RunData struct {
	RunID      string      `json:"run_id"`
	Mode       string      `json:"mode"`
	Stages     []string    `json:"stages"`
	Status     string      `json:"status"`
	Bootstrap  string      `json:"bootstrap,omitempty"`
	Error      string      `json:"error,omitempty"`
	Failed     []string    `json:"failed,omitempty"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt *time.Time  `json:"finished_at,omitempty"`
	Results    []StageData `json:"results,omitempty"`
}

type StageData struct {
	RunID      string    `json:"run_id"`
	Stage      string    `json:"stage"`
	Position   int       `json:"position"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

type publishFunc func(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error

// Publisher is a pipeline.Observer. Without a channel every call is a no-op.
type Publisher struct {
	exchange string
	logger   *zap.SugaredLogger

	publish publishFunc
	newID   func() string
	now     func() time.Time
}

type NewPublisherParams struct {
	fx.In

	Cfg     *config.Config
	Channel *amqp.Channel `optional:"true"`
	Logger  *zap.SugaredLogger
}

func NewPublisher(p NewPublisherParams) *Publisher {
	var fn publishFunc
	if p.Channel != nil {
		fn = p.Channel.PublishWithContext
	}
	ex := p.Cfg.RabbitMQ.Exchange
	if ex == "" {
		ex = "events"
	}
	return &Publisher{
		exchange: ex,
		logger:   p.Logger,
		publish:  fn,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

func (p *Publisher) Enabled() bool { return p.publish != nil }

func (p *Publisher) RunStarted(ctx context.Context, run pipeline.Run) error {
	return p.send(ctx, RunStartedKey, runData(run))
}

func (p *Publisher) StageFinished(ctx context.Context, run pipeline.Run, res pipeline.StageResult) error {
	return p.send(ctx, StageFinishedKey, stageData(run.ID, res))
}

func (p *Publisher) RunFinished(ctx context.Context, run pipeline.Run) error {
	return p.send(ctx, RunFinishedKey, runData(run))
}

func (p *Publisher) send(ctx context.Context, key string, data any) error {
	if p.publish == nil {
		return nil
	}

	now := p.now().UTC()
	env := Envelope{
		EventName: key,
		EventID:   p.newID(),
		TS:        now,
		Data:      data,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	if err := p.publish(ctx, p.exchange, key, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Timestamp:    now,
		MessageId:    env.EventID,
		Body:         body,
	}); err != nil {
		return fmt.Errorf("publish %s: %w", key, err)
	}

	p.logger.Debugw("event_published", "exchange", p.exchange, "routing_key", key, "event_id", env.EventID)
	return nil
}

func runData(run pipeline.Run) RunData {
	d := RunData{
		RunID:      run.ID,
		Mode:       string(run.Mode),
		Status:     string(run.Status),
		Bootstrap:  string(run.Bootstrap),
		Error:      run.Error,
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
	}
	for _, n := range run.Stages {
		d.Stages = append(d.Stages, string(n))
	}
	for _, n := range run.Failed() {
		d.Failed = append(d.Failed, string(n))
	}
	for _, res := range run.Results {
		d.Results = append(d.Results, stageData(run.ID, res))
	}
	return d
}

func stageData(runID string, res pipeline.StageResult) StageData {
	return StageData{
		RunID:      runID,
		Stage:      string(res.Stage),
		Position:   res.Position,
		Status:     string(res.Status),
		StartedAt:  res.StartedAt,
		DurationMs: res.Duration.Milliseconds(),
		Error:      res.Error,
	}
}

var _ pipeline.Observer = (*Publisher)(nil)

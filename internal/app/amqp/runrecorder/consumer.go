// Package runrecorder consumes run lifecycle events from RabbitMQ and
// records them in the run history.
package runrecorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"startup-positioning-map/config"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultQueue = "pipeline.history.v1"
	bindingKey   = "pipeline.#"
)

var ErrHandlerMissing = errors.New("runrecorder handler missing")

type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Cancel(consumer string, noWait bool) error
}

type Consumer struct {
	cfg     *config.Config
	channel channel
	handler Handler
	logger  *zap.SugaredLogger

	consumerTag string
	done        chan struct{}
}

type NewConsumerParams struct {
	fx.In

	Config  *config.Config
	Channel *amqp.Channel `optional:"true"`
	Handler Handler       `optional:"true"`
	Logger  *zap.SugaredLogger
}

func NewConsumer(p NewConsumerParams) *Consumer {
	h := p.Handler
	if h == nil {
		h = missingHandler{}
	}

	c := &Consumer{
		cfg:         p.Config,
		handler:     h,
		logger:      p.Logger,
		consumerTag: "runrecorder",
	}
	if p.Channel != nil {
		c.channel = p.Channel
	}
	return c
}

func (c *Consumer) queue() string {
	if q := strings.TrimSpace(c.cfg.RabbitMQ.Queue); q != "" {
		return q
	}
	return defaultQueue
}

func (c *Consumer) exchange() string {
	if ex := strings.TrimSpace(c.cfg.RabbitMQ.Exchange); ex != "" {
		return ex
	}
	return "events"
}

// Start begins consuming. Deliveries are handled one at a time so events of
// a run are recorded in publish order.
func (c *Consumer) Start(ctx context.Context) error {
	if c.channel == nil {
		c.logger.Infow("runrecorder_disabled", "reason", "missing RABBITMQ_URL")
		return nil
	}

	if c.cfg.RabbitMQ.DeclareTopology {
		if err := c.declareTopology(); err != nil {
			return err
		}
	}

	prefetch := c.cfg.RabbitMQ.Prefetch
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := c.channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("rabbitmq qos: %w", err)
	}

	deliveries, err := c.channel.Consume(
		c.queue(),
		c.consumerTag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("rabbitmq consume: %w", err)
	}

	c.logger.Infow("runrecorder_started", "queue", c.queue(), "prefetch", prefetch)

	// The start context ends once fx has started; deliveries outlive it.
	runCtx := context.WithoutCancel(ctx)
	c.done = make(chan struct{})
	go func() {
		defer close(c.done)
		for d := range deliveries {
			c.handleDelivery(runCtx, d)
		}
	}()

	return nil
}

// Stop cancels the consumer and waits for the in-flight delivery.
func (c *Consumer) Stop(ctx context.Context) error {
	if c.channel == nil {
		return nil
	}
	_ = c.channel.Cancel(c.consumerTag, false)
	if c.done == nil {
		return nil
	}
	select {
	case <-c.done:
	case <-ctx.Done():
	}
	return nil
}

func (c *Consumer) declareTopology() error {
	ex := c.exchange()
	queueName := c.queue()
	dlx := ex + ".dlx"
	dlq := queueName + ".dlq"

	if err := c.channel.ExchangeDeclare(ex, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq exchange declare %q: %w", ex, err)
	}
	if err := c.channel.ExchangeDeclare(dlx, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq dlx exchange declare %q: %w", dlx, err)
	}

	args := amqp.Table{
		"x-dead-letter-exchange": dlx,
	}
	if _, err := c.channel.QueueDeclare(queueName, true, false, false, false, args); err != nil {
		return fmt.Errorf("rabbitmq queue declare %q: %w", queueName, err)
	}
	if _, err := c.channel.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq dlq declare %q: %w", dlq, err)
	}

	if err := c.channel.QueueBind(queueName, bindingKey, ex, false, nil); err != nil {
		return fmt.Errorf("rabbitmq queue bind queue=%q key=%q ex=%q: %w", queueName, bindingKey, ex, err)
	}
	if err := c.channel.QueueBind(dlq, bindingKey, dlx, false, nil); err != nil {
		return fmt.Errorf("rabbitmq dlq bind queue=%q key=%q ex=%q: %w", dlq, bindingKey, dlx, err)
	}

	c.logger.Infow(
		"runrecorder_topology_declared",
		"exchange", ex,
		"queue", queueName,
		"routing_key", bindingKey,
		"dlx", dlx,
		"dlq", dlq,
	)
	return nil
}

func (c *Consumer) handleDelivery(ctx context.Context, d amqp.Delivery) {
	var msg Envelope
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		c.logger.Errorw("runrecorder_invalid_json", "err", err, "message_id", d.MessageId)
		_ = d.Reject(false)
		return
	}
	if strings.TrimSpace(msg.EventName) == "" {
		msg.EventName = d.RoutingKey
	}
	if strings.TrimSpace(msg.EventID) == "" {
		msg.EventID = d.MessageId
	}

	if err := c.handler.Handle(ctx, msg); err != nil {
		c.logger.Errorw("runrecorder_handle_failed",
			"err", err,
			"event_id", msg.EventID,
			"event_name", msg.EventName,
		)
		_ = d.Reject(false)
		return
	}

	c.logger.Debugw("runrecorder_recorded", "event_id", msg.EventID, "event_name", msg.EventName)
	_ = d.Ack(false)
}

type missingHandler struct{}

func (missingHandler) Handle(context.Context, Envelope) error {
	return ErrHandlerMissing
}

package worker

import (
	"PanShare/internal/metrics"
	"PanShare/internal/mq"
	"PanShare/internal/repo"
	"PanShare/model"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/time/rate"
)

type dlqMessage struct {
	Message  json.RawMessage `json:"message"`
	Attempt  int             `json:"attempt"`
	Error    string          `json:"error"`
	FailedAt time.Time       `json:"failed_at"`
}

// AuditSink persists audit rows.
type AuditSink interface {
	CreateAuditLog(ctx context.Context, entry *model.AuditLog) error
}

// RetryPublisher parks failed events for another attempt or gives up on them.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, body []byte, delay time.Duration) error
	PublishDLQ(ctx context.Context, body []byte) error
}

type AuditOptions struct {
	Prefetch    int
	Concurrency int
	Rate        float64
	Burst       int
	RetryMax    int
	RetryDelays []time.Duration
}

// AuditConsumer moves audit events from RabbitMQ into the audit_log table.
type AuditConsumer struct {
	sink    AuditSink
	queue   RetryPublisher
	limiter *rate.Limiter
	opts    AuditOptions
	now     func() time.Time
}

func NewAuditConsumer(sink AuditSink, queue RetryPublisher, opts AuditOptions) *AuditConsumer {
	if opts.Prefetch <= 0 {
		opts.Prefetch = 1
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Burst <= 0 {
		opts.Burst = 1
	}
	if opts.RetryMax < 0 {
		opts.RetryMax = 0
	}
	limiter := rate.NewLimiter(rate.Inf, opts.Burst)
	if opts.Rate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), opts.Burst)
	}
	return &AuditConsumer{sink: sink, queue: queue, limiter: limiter, opts: opts, now: time.Now}
}

// Run consumes audit events until ctx is done.
func (c *AuditConsumer) Run(ctx context.Context, client *mq.Client) error {
	if err := client.DeclareTopology(); err != nil {
		return err
	}
	if err := client.Channel.Qos(c.opts.Prefetch, 0, false); err != nil {
		return err
	}
	deliveries, err := client.Channel.Consume(mq.QueueAudit, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	sem := make(chan struct{}, c.opts.Concurrency)
	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("audit worker: delivery channel closed")
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				c.handle(ctx, d)
			}(delivery)
		}
	}
}

func (c *AuditConsumer) handle(ctx context.Context, delivery amqp.Delivery) {
	var msg mq.AuditMessage
	if err := json.Unmarshal(delivery.Body, &msg); err != nil || msg.Event.Name == "" {
		slog.Warn("audit worker: invalid message", "error", err)
		_ = delivery.Ack(false)
		return
	}

	if err := c.limiter.Wait(ctx); err != nil {
		_ = delivery.Nack(false, true)
		return
	}

	err := c.sink.CreateAuditLog(ctx, msg.Event.Entry())
	switch {
	case err == nil:
		metrics.AuditEventsTotal.WithLabelValues("stored").Inc()
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		_ = delivery.Nack(false, true)
		return
	case !shouldRetry(err):
		// A duplicate row never succeeds on retry.
		slog.Info("audit worker: duplicate event dropped", "event", msg.Event.Name)
	default:
		if err := c.scheduleRetry(ctx, msg, err); err != nil {
			slog.Error("audit worker: retry schedule failed", "error", err)
			_ = delivery.Nack(false, true)
			return
		}
	}
	_ = delivery.Ack(false)
}

func shouldRetry(err error) bool {
	return !errors.Is(err, repo.ErrDuplicateKey)
}

func (c *AuditConsumer) scheduleRetry(ctx context.Context, msg mq.AuditMessage, procErr error) error {
	next := msg.Attempt + 1
	if c.opts.RetryMax == 0 || next > c.opts.RetryMax {
		return c.markFailed(ctx, msg, procErr)
	}

	delay := pickRetryDelay(next, c.opts.RetryDelays)
	msg.Attempt = next
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	metrics.AuditEventsTotal.WithLabelValues("retry").Inc()
	slog.Warn("audit worker: store failed, retrying", "event", msg.Event.Name, "attempt", next, "delay", delay, "error", procErr)
	return c.queue.PublishRetry(ctx, body, delay)
}

func (c *AuditConsumer) markFailed(ctx context.Context, msg mq.AuditMessage, procErr error) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	body, err := json.Marshal(dlqMessage{
		Message:  raw,
		Attempt:  msg.Attempt,
		Error:    procErr.Error(),
		FailedAt: c.now(),
	})
	if err != nil {
		return err
	}
	metrics.AuditEventsTotal.WithLabelValues("dead").Inc()
	if err := c.queue.PublishDLQ(ctx, body); err != nil {
		slog.Error("audit worker: dlq publish failed", "error", err)
	}
	return nil
}

func pickRetryDelay(attempt int, delays []time.Duration) time.Duration {
	if len(delays) == 0 {
		return 0
	}
	index := attempt - 1
	if index < 0 {
		index = 0
	}
	if index >= len(delays) {
		return delays[len(delays)-1]
	}
	return delays[index]
}

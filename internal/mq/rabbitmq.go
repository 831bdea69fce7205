package mq

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeAudit = "audit.exchange"
	ExchangeRetry = "audit.retry.exchange"
	ExchangeDLQ   = "audit.dlq.exchange"

	QueueAudit = "audit.queue"
	QueueRetry = "audit.retry.queue"
	QueueDLQ   = "audit.dlq.queue"

	RoutingAudit = "audit"
	RoutingRetry = "audit.retry"
	RoutingDLQ   = "audit.dlq"
)

type Client struct {
	Conn      *amqp.Connection
	Channel   *amqp.Channel
	publishMu sync.Mutex
}

func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Client{Conn: conn, Channel: ch}, nil
}

// Closed reports whether the connection or channel has gone away.
func (c *Client) Closed() bool {
	return c == nil || c.Conn.IsClosed() || c.Channel.IsClosed()
}

func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.Channel != nil {
		_ = c.Channel.Close()
	}
	if c.Conn != nil {
		_ = c.Conn.Close()
	}
}

// DeclareTopology declares the audit exchange and queue, a retry queue
// that dead-letters back into the audit exchange when a message TTL runs
// out, and a dead-letter queue for events that gave up.
func (c *Client) DeclareTopology() error {
	for _, ex := range []string{ExchangeAudit, ExchangeRetry, ExchangeDLQ} {
		if err := c.Channel.ExchangeDeclare(ex, "direct", true, false, false, false, nil); err != nil {
			return fmt.Errorf("declare exchange %s: %w", ex, err)
		}
	}

	queues := []struct {
		name string
		args amqp.Table
	}{
		{QueueAudit, nil},
		{QueueRetry, amqp.Table{
			"x-dead-letter-exchange":    ExchangeAudit,
			"x-dead-letter-routing-key": RoutingAudit,
		}},
		{QueueDLQ, nil},
	}
	for _, q := range queues {
		if _, err := c.Channel.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("declare queue %s: %w", q.name, err)
		}
	}

	bindings := []struct{ queue, key, exchange string }{
		{QueueAudit, RoutingAudit, ExchangeAudit},
		{QueueRetry, RoutingRetry, ExchangeRetry},
		{QueueDLQ, RoutingDLQ, ExchangeDLQ},
	}
	for _, b := range bindings {
		if err := c.Channel.QueueBind(b.queue, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", b.queue, err)
		}
	}
	return nil
}

func (c *Client) PublishEvent(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeAudit, RoutingAudit, body, "")
}

// PublishRetry parks body in the retry queue for delay before it returns
// to the audit queue.
func (c *Client) PublishRetry(ctx context.Context, body []byte, delay time.Duration) error {
	if delay < 0 {
		delay = 0
	}
	expiration := fmt.Sprintf("%d", delay.Milliseconds())
	return c.publish(ctx, ExchangeRetry, RoutingRetry, body, expiration)
}

func (c *Client) PublishDLQ(ctx context.Context, body []byte) error {
	return c.publish(ctx, ExchangeDLQ, RoutingDLQ, body, "")
}

func (c *Client) publish(ctx context.Context, exchange, key string, body []byte, expiration string) error {
	c.publishMu.Lock()
	defer c.publishMu.Unlock()
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now(),
	}
	if expiration != "" {
		msg.Expiration = expiration
	}
	return c.Channel.PublishWithContext(ctx, exchange, key, false, false, msg)
}

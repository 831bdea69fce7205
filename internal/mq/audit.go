package mq

import (
	"PanShare/internal/metrics"
	"PanShare/internal/service"
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// AuditMessage is the queue payload for one audit event.
type AuditMessage struct {
	Event   service.Event `json:"event"`
	Attempt int           `json:"attempt"`
}

// EventPublisher is the part of Client the audit publisher needs.
type EventPublisher interface {
	PublishEvent(ctx context.Context, body []byte) error
}

// AuditPublisher sends audit events to RabbitMQ. When publishing fails the
// event goes to the fallback log, if any; the caller never sees an error.
type AuditPublisher struct {
	mu       sync.Mutex
	pub      EventPublisher
	dial     func() (EventPublisher, error)
	fallback service.AuditLog
	timeout  time.Duration
}

// NewAuditPublisher publishes through a client dialed from url, redialing
// after the connection drops.
func NewAuditPublisher(url string, fallback service.AuditLog) *AuditPublisher {
	return newAuditPublisher(func() (EventPublisher, error) {
		client, err := Dial(url)
		if err != nil {
			return nil, err
		}
		if err := client.DeclareTopology(); err != nil {
			client.Close()
			return nil, err
		}
		return client, nil
	}, fallback)
}

func newAuditPublisher(dial func() (EventPublisher, error), fallback service.AuditLog) *AuditPublisher {
	return &AuditPublisher{dial: dial, fallback: fallback, timeout: 3 * time.Second}
}

func (p *AuditPublisher) publisher() (EventPublisher, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pub != nil {
		if c, ok := p.pub.(*Client); !ok || !c.Closed() {
			return p.pub, nil
		}
		p.pub.(*Client).Close()
		p.pub = nil
	}
	pub, err := p.dial()
	if err != nil {
		return nil, err
	}
	p.pub = pub
	return pub, nil
}

func (p *AuditPublisher) Record(ctx context.Context, e service.Event) {
	body, err := json.Marshal(AuditMessage{Event: e})
	if err == nil {
		var pub EventPublisher
		if pub, err = p.publisher(); err == nil {
			pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout)
			err = pub.PublishEvent(pubCtx, body)
			cancel()
		}
	}
	if err == nil {
		metrics.AuditEventsTotal.WithLabelValues("published").Inc()
		return
	}

	metrics.AuditEventsTotal.WithLabelValues("publish_error").Inc()
	slog.Warn("audit publish failed", "event", e.Name, "error", err)
	if p.fallback != nil {
		p.fallback.Record(ctx, e)
	}
}

// Close drops the underlying connection.
func (p *AuditPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.pub.(*Client); ok {
		c.Close()
	}
	p.pub = nil
}

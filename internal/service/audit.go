package service

import (
	"PanShare/internal/metrics"
	"PanShare/model"
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

const (
	EventShareCreate   = "share.create"
	EventShareUpdate   = "share.update"
	EventShareDelete   = "share.delete"
	EventShareDownload = "share.download"
	EventShareSweep    = "share.sweep"
	EventFileUpload    = "file.upload"
	EventFileRecycle   = "file.recycle"
	EventFileRestore   = "file.restore"
	EventFilePurge     = "file.purge"
	EventFileGrant     = "file.grant"
	EventFileRevoke    = "file.revoke"
	EventUserRegister  = "user.register"
	EventUserLogin     = "user.login"
	EventUserPassword  = "user.password"
	EventUserRole      = "user.role"
	EventUserActive    = "user.active"
)

// Event is one audit record.
type Event struct {
	Name       string         `json:"name"`
	ActorID    *uint64        `json:"actor_id,omitempty"`
	TargetType string         `json:"target_type"`
	TargetID   uint64         `json:"target_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	IP         string         `json:"ip,omitempty"`
	At         time.Time      `json:"at"`
}

// Entry converts the event into its table row.
func (e Event) Entry() *model.AuditLog {
	entry := &model.AuditLog{
		Event:      e.Name,
		ActorID:    e.ActorID,
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		IP:         e.IP,
		CreatedAt:  e.At,
	}
	if len(e.Metadata) > 0 {
		if raw, err := json.Marshal(e.Metadata); err == nil {
			entry.Metadata = string(raw)
		}
	}
	return entry
}

// AuditLog records events. Record never fails the caller.
type AuditLog interface {
	Record(ctx context.Context, e Event)
}

type NopAuditLog struct{}

func (NopAuditLog) Record(context.Context, Event) {}

// DBAuditLog writes events straight to the audit_log table.
type DBAuditLog struct {
	repo AuditRepository
}

func NewDBAuditLog(repo AuditRepository) *DBAuditLog {
	return &DBAuditLog{repo: repo}
}

func (l *DBAuditLog) Record(ctx context.Context, e Event) {
	if err := l.repo.CreateAuditLog(ctx, e.Entry()); err != nil {
		metrics.AuditEventsTotal.WithLabelValues("error").Inc()
		slog.Warn("audit write failed", "event", e.Name, "error", err)
		return
	}
	metrics.AuditEventsTotal.WithLabelValues("stored").Inc()
}

type clientIPKey struct{}

// WithClientIP attaches the caller's address for audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPKey{}, ip)
}

func clientIP(ctx context.Context) string {
	ip, _ := ctx.Value(clientIPKey{}).(string)
	return ip
}

func record(ctx context.Context, log AuditLog, now Clock, e Event) {
	if e.IP == "" {
		e.IP = clientIP(ctx)
	}
	if e.At.IsZero() {
		e.At = now()
	}
	log.Record(ctx, e)
}

func actor(id uint64) *uint64 {
	if id == 0 {
		return nil
	}
	return &id
}

package repo

import (
	"PanShare/model"
	"context"
)

// AuditFilter narrows ListAuditLogs.
type AuditFilter struct {
	Event   string
	ActorID *uint64
	Page
}

func (s *Store) CreateAuditLog(ctx context.Context, entry *model.AuditLog) error {
	return translate(s.db.WithContext(ctx).Create(entry).Error)
}

// ListAuditLogs returns audit entries, newest first, with the total count.
func (s *Store) ListAuditLogs(ctx context.Context, f AuditFilter) ([]model.AuditLog, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.AuditLog{})
	if f.Event != "" {
		q = q.Where("event = ?", f.Event)
	}
	if f.ActorID != nil {
		q = q.Where("actor_id = ?", *f.ActorID)
	}
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	var logs []model.AuditLog
	if err := f.Page.apply(q.Order("id DESC")).Find(&logs).Error; err != nil {
		return nil, 0, translate(err)
	}
	return logs, total, nil
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.User{}).Count(&n).Error
	return n, translate(err)
}

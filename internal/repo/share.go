package repo

import (
	"PanShare/model"
	"context"
	"time"

	"gorm.io/gorm"
)

// ShareFilter narrows ListSharesByOwner.
type ShareFilter struct {
	FileID         *uint64
	IncludeDeleted bool
	Page
}

// CreateShare inserts a share. A token collision surfaces as ErrDuplicateKey.
func (s *Store) CreateShare(ctx context.Context, share *model.FileShare) error {
	return translate(s.db.WithContext(ctx).Create(share).Error)
}

// GetShareByID returns a share including soft-deleted rows.
func (s *Store) GetShareByID(ctx context.Context, id uint64) (*model.FileShare, error) {
	var share model.FileShare
	if err := s.db.WithContext(ctx).First(&share, id).Error; err != nil {
		return nil, translate(err)
	}
	return &share, nil
}

// FindActiveShareByToken returns the share for token only while it is
// active and not deleted. Expiry and limits are left to the caller.
func (s *Store) FindActiveShareByToken(ctx context.Context, token string) (*model.FileShare, error) {
	var share model.FileShare
	err := s.db.WithContext(ctx).
		Where("token = ? AND is_active = ? AND deleted_at IS NULL", token, true).
		First(&share).Error
	if err != nil {
		return nil, translate(err)
	}
	return &share, nil
}

// UpdateShareFields applies column updates to a live share and returns the
// number of rows changed. A new download_limit only applies while the
// current count does not exceed it.
func (s *Store) UpdateShareFields(ctx context.Context, id uint64, fields map[string]any) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	q := s.db.WithContext(ctx).
		Model(&model.FileShare{}).
		Where("id = ? AND deleted_at IS NULL", id)
	if limit, ok := fields["download_limit"].(int64); ok {
		q = q.Where("download_count <= ?", limit)
	}
	res := q.Updates(fields)
	return res.RowsAffected, translate(res.Error)
}

// SoftDeleteShare deactivates a share. Already-deleted rows are left
// untouched so deleted_at keeps its first value.
func (s *Store) SoftDeleteShare(ctx context.Context, id uint64, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&model.FileShare{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Updates(map[string]any{
			"is_active":  false,
			"deleted_at": now,
		})
	return res.RowsAffected, translate(res.Error)
}

// TryIncrementDownload bumps download_count in one conditional UPDATE.
// Zero rows affected means the share is gone, expired or at its limit.
func (s *Store) TryIncrementDownload(ctx context.Context, id uint64, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&model.FileShare{}).
		Where("id = ? AND is_active = ? AND deleted_at IS NULL", id, true).
		Where("expires_at IS NULL OR expires_at > ?", now).
		Where("download_limit IS NULL OR download_count < download_limit").
		Updates(map[string]any{
			"download_count":   gorm.Expr("download_count + ?", 1),
			"last_accessed_at": now,
		})
	return res.RowsAffected, translate(res.Error)
}

// FindExpiredActiveShares lists live shares whose expiry has passed.
func (s *Store) FindExpiredActiveShares(ctx context.Context, now time.Time, limit int) ([]model.FileShare, error) {
	var shares []model.FileShare
	err := expiredActive(s.db.WithContext(ctx), now).
		Order("expires_at ASC").
		Limit(limit).
		Find(&shares).Error
	return shares, translate(err)
}

// SoftDeleteExpired deactivates every live share whose expiry has passed
// and returns how many rows changed.
func (s *Store) SoftDeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res := expiredActive(s.db.WithContext(ctx), now).
		Updates(map[string]any{
			"is_active":  false,
			"deleted_at": now,
		})
	return res.RowsAffected, translate(res.Error)
}

func expiredActive(q *gorm.DB, now time.Time) *gorm.DB {
	return q.Model(&model.FileShare{}).
		Where("is_active = ? AND deleted_at IS NULL", true).
		Where("expires_at IS NOT NULL AND expires_at <= ?", now)
}

// ListSharesByOwner returns one page of an owner's shares, newest first,
// with the total count.
func (s *Store) ListSharesByOwner(ctx context.Context, ownerID uint64, f ShareFilter) ([]model.FileShare, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.FileShare{}).Where("owner_id = ?", ownerID)
	if f.FileID != nil {
		q = q.Where("file_id = ?", *f.FileID)
	}
	if !f.IncludeDeleted {
		q = q.Where("deleted_at IS NULL")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	var shares []model.FileShare
	if err := f.Page.apply(q.Order("id DESC")).Find(&shares).Error; err != nil {
		return nil, 0, translate(err)
	}
	return shares, total, nil
}

// ShareCounts summarizes share rows for the admin console.
type ShareCounts struct {
	Active         int64 `json:"active"`
	ExpiredPending int64 `json:"expired_pending"`
	Deleted        int64 `json:"deleted"`
}

func (s *Store) CountShares(ctx context.Context, now time.Time) (ShareCounts, error) {
	var c ShareCounts
	db := s.db.WithContext(ctx)
	if err := db.Model(&model.FileShare{}).
		Where("is_active = ? AND deleted_at IS NULL", true).
		Count(&c.Active).Error; err != nil {
		return c, translate(err)
	}
	if err := expiredActive(db, now).Count(&c.ExpiredPending).Error; err != nil {
		return c, translate(err)
	}
	if err := db.Model(&model.FileShare{}).
		Where("deleted_at IS NOT NULL").
		Count(&c.Deleted).Error; err != nil {
		return c, translate(err)
	}
	return c, nil
}

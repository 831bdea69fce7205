package repo

import (
	"PanShare/model"
	"context"
)

// FindPermissions returns every grant on a file.
func (s *Store) FindPermissions(ctx context.Context, fileID uint64) ([]model.FilePermission, error) {
	var perms []model.FilePermission
	err := s.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("id ASC").
		Find(&perms).Error
	return perms, translate(err)
}

func (s *Store) GrantPermission(ctx context.Context, perm *model.FilePermission) error {
	return translate(s.db.WithContext(ctx).Create(perm).Error)
}

// RevokePermission deletes one grant on a file.
func (s *Store) RevokePermission(ctx context.Context, fileID, permID uint64) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("id = ? AND file_id = ?", permID, fileID).
		Delete(&model.FilePermission{})
	return res.RowsAffected, translate(res.Error)
}

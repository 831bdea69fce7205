package repo

import (
	"PanShare/model"
	"context"

	"gorm.io/gorm"
)

func (s *Store) GetUser(ctx context.Context, id uint64) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

func (s *Store) GetUserByName(ctx context.Context, name string) (*model.User, error) {
	var user model.User
	if err := s.db.WithContext(ctx).Where("user_name = ?", name).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// CreateUser inserts a user; a taken name or email yields ErrDuplicateKey.
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	return translate(s.db.WithContext(ctx).Create(user).Error)
}

func (s *Store) UpdateUserPassword(ctx context.Context, id uint64, hash string) error {
	return s.updateUser(ctx, id, "pass_word", hash)
}

func (s *Store) SetUserRole(ctx context.Context, id uint64, role string) error {
	return s.updateUser(ctx, id, "role", role)
}

func (s *Store) SetUserActive(ctx context.Context, id uint64, active bool) error {
	return s.updateUser(ctx, id, "is_active", active)
}

func (s *Store) updateUser(ctx context.Context, id uint64, column string, value any) error {
	res := s.db.WithContext(ctx).Model(&model.User{}).Where("id = ?", id).Update(column, value)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		// MySQL reports zero rows when the value is unchanged; confirm the
		// row exists before calling it missing.
		if _, err := s.GetUser(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// ListUsers returns one page of users ordered by id with the total count.
func (s *Store) ListUsers(ctx context.Context, p Page) ([]model.User, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.User{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	var users []model.User
	if err := p.apply(q.Order("id ASC")).Find(&users).Error; err != nil {
		return nil, 0, translate(err)
	}
	return users, total, nil
}

// AddUsedSpace adjusts a user's storage usage by delta bytes, never
// dropping below zero.
func (s *Store) AddUsedSpace(ctx context.Context, id uint64, delta int64) error {
	expr := gorm.Expr("use_space + ?", delta)
	if delta < 0 {
		expr = gorm.Expr("CASE WHEN use_space > ? THEN use_space - ? ELSE 0 END", -delta, -delta)
	}
	return translate(s.db.WithContext(ctx).Model(&model.User{}).
		Where("id = ?", id).
		Update("use_space", expr).Error)
}

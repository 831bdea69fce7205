package repo

import (
	"PanShare/model"
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

var allowedOrderBy = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"name":       "name",
	"size":       "size",
	"id":         "id",
}

func sanitizeOrderBy(orderBy string) string {
	key := strings.ToLower(strings.TrimSpace(orderBy))
	return allowedOrderBy[key]
}

// FileFilter narrows ListFiles. A nil UserID lists every tenant.
type FileFilter struct {
	UserID    *uint64
	Deleted   bool
	Query     string
	OrderBy   string
	OrderDesc bool
	Page
}

// GetFile returns a file row, recycled or not.
func (s *Store) GetFile(ctx context.Context, id uint64) (*model.UserFile, error) {
	var file model.UserFile
	if err := s.db.WithContext(ctx).First(&file, id).Error; err != nil {
		return nil, translate(err)
	}
	return &file, nil
}

// GetFileWithObject loads a file together with its blob record.
func (s *Store) GetFileWithObject(ctx context.Context, id uint64) (*model.UserFile, error) {
	var file model.UserFile
	if err := s.db.WithContext(ctx).Preload("Object").First(&file, id).Error; err != nil {
		return nil, translate(err)
	}
	if file.Object == nil {
		return nil, ErrNotFound
	}
	return &file, nil
}

// FindObjectByHash returns the stored blob with the given content hash.
func (s *Store) FindObjectByHash(ctx context.Context, hash string) (*model.FileObject, error) {
	var obj model.FileObject
	if err := s.db.WithContext(ctx).Where("hash = ?", hash).First(&obj).Error; err != nil {
		return nil, translate(err)
	}
	return &obj, nil
}

// errObjectRaced reports that another upload inserted the same hash
// between our lookup and insert.
var errObjectRaced = errors.New("file object inserted concurrently")

// CreateFile inserts file pointing at the blob described by obj. When a
// blob with the same hash already exists its ref_count is bumped and it is
// reused; reused reports that case so the caller can drop a freshly
// uploaded duplicate. Losing the insert race to a concurrent upload of the
// same content falls back to reuse.
func (s *Store) CreateFile(ctx context.Context, file *model.UserFile, obj *model.FileObject) (reused bool, err error) {
	for attempt := 0; ; attempt++ {
		reused, err = s.createFile(ctx, file, obj)
		if !errors.Is(err, errObjectRaced) || attempt > 0 {
			break
		}
		obj.ID = 0
	}
	if errors.Is(err, errObjectRaced) {
		return false, ErrDuplicateKey
	}
	return reused, translate(err)
}

func (s *Store) createFile(ctx context.Context, file *model.UserFile, obj *model.FileObject) (reused bool, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing model.FileObject
		findErr := tx.Where("hash = ?", obj.Hash).First(&existing).Error
		switch {
		case findErr == nil:
			if err := tx.Model(&model.FileObject{}).
				Where("id = ?", existing.ID).
				Update("ref_count", gorm.Expr("ref_count + ?", 1)).Error; err != nil {
				return err
			}
			*obj = existing
			reused = true
		case errors.Is(findErr, gorm.ErrRecordNotFound):
			obj.RefCount = 1
			if err := tx.Create(obj).Error; err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) || isDuplicateMessage(err) {
					return errObjectRaced
				}
				return err
			}
		default:
			return findErr
		}
		file.ObjectID = obj.ID
		return tx.Create(file).Error
	})
	return reused, err
}

// ListFiles returns one page of files and the total count.
func (s *Store) ListFiles(ctx context.Context, f FileFilter) ([]model.UserFile, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.UserFile{}).Where("is_deleted = ?", f.Deleted)
	if f.UserID != nil {
		q = q.Where("user_id = ?", *f.UserID)
	}
	if query := strings.TrimSpace(f.Query); query != "" {
		q = q.Where("name LIKE ?", "%"+query+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	order := "created_at DESC"
	if orderBy := sanitizeOrderBy(f.OrderBy); orderBy != "" {
		if f.OrderDesc {
			order = orderBy + " DESC"
		} else {
			order = orderBy + " ASC"
		}
	}
	var files []model.UserFile
	if err := f.Page.apply(q.Order(order + ", id DESC")).Find(&files).Error; err != nil {
		return nil, 0, translate(err)
	}
	return files, total, nil
}

// RenameFile renames a live file.
func (s *Store) RenameFile(ctx context.Context, id uint64, name string) error {
	res := s.db.WithContext(ctx).
		Model(&model.UserFile{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Update("name", name)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MoveToRecycle flags a live file as deleted.
func (s *Store) MoveToRecycle(ctx context.Context, id uint64, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&model.UserFile{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]any{"is_deleted": true, "deleted_at": now})
	return res.RowsAffected, translate(res.Error)
}

// RestoreFile takes a file back out of the recycle bin.
func (s *Store) RestoreFile(ctx context.Context, id uint64) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&model.UserFile{}).
		Where("id = ? AND is_deleted = ?", id, true).
		Updates(map[string]any{"is_deleted": false, "deleted_at": nil})
	return res.RowsAffected, translate(res.Error)
}

// PurgeFile hard-deletes a file row and releases its blob reference.
// orphan is non-nil when the last reference went away; its blob should be
// removed from storage by the caller.
func (s *Store) PurgeFile(ctx context.Context, id uint64) (orphan *model.FileObject, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var file model.UserFile
		if err := tx.First(&file, id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&model.UserFile{}, file.ID).Error; err != nil {
			return err
		}
		if err := tx.Where("file_id = ?", file.ID).Delete(&model.FilePermission{}).Error; err != nil {
			return err
		}

		if err := tx.Model(&model.FileObject{}).
			Where("id = ? AND ref_count > 0", file.ObjectID).
			Update("ref_count", gorm.Expr("ref_count - ?", 1)).Error; err != nil {
			return err
		}
		var obj model.FileObject
		if err := tx.First(&obj, file.ObjectID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if obj.RefCount > 0 {
			return nil
		}
		if err := tx.Delete(&model.FileObject{}, obj.ID).Error; err != nil {
			return err
		}
		orphan = &obj
		return nil
	})
	return orphan, translate(err)
}

// FileTotals summarizes live files for the admin console.
type FileTotals struct {
	Files int64 `json:"files"`
	Bytes int64 `json:"bytes"`
}

func (s *Store) CountFiles(ctx context.Context) (FileTotals, error) {
	var t FileTotals
	q := s.db.WithContext(ctx).Model(&model.UserFile{}).Where("is_deleted = ?", false)
	if err := q.Count(&t.Files).Error; err != nil {
		return t, translate(err)
	}
	var bytes struct{ Total int64 }
	if err := s.db.WithContext(ctx).Model(&model.UserFile{}).
		Select("COALESCE(SUM(size), 0) AS total").
		Where("is_deleted = ?", false).
		Scan(&bytes).Error; err != nil {
		return t, translate(err)
	}
	t.Bytes = bytes.Total
	return t, nil
}

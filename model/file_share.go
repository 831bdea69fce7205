package model

import (
	"time"
)

// FileShare is a public link to one file. Rows are never hard-deleted so a
// token is never handed out twice.
type FileShare struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	Token string `gorm:"column:token;size:64;uniqueIndex;not null" json:"token"`

	FileID  uint64 `gorm:"column:file_id;not null;index" json:"file_id"`
	OwnerID uint64 `gorm:"column:owner_id;not null;index" json:"owner_id"`

	PasswordHash *string `gorm:"column:password_hash;size:255" json:"-"`

	ExpiresAt     *time.Time `gorm:"column:expires_at;index" json:"expires_at"`
	DownloadLimit *int64     `gorm:"column:download_limit" json:"download_limit"`
	DownloadCount int64      `gorm:"column:download_count;not null;default:0" json:"download_count"`
	AllowPreview  bool       `gorm:"column:allow_preview;not null;default:false" json:"allow_preview"`
	IsActive      bool       `gorm:"column:is_active;not null;default:true" json:"is_active"`

	LastAccessedAt *time.Time `gorm:"column:last_accessed_at" json:"last_accessed_at"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `gorm:"column:deleted_at;index" json:"deleted_at,omitempty"`
}

// TableName returns the database table name.
func (FileShare) TableName() string {
	return "file_share"
}

// HasPassword reports whether the share is password gated.
func (s *FileShare) HasPassword() bool {
	return s.PasswordHash != nil && *s.PasswordHash != ""
}

// Resolvable reports whether the share may still be used for new access.
func (s *FileShare) Resolvable() bool {
	return s.IsActive && s.DeletedAt == nil
}

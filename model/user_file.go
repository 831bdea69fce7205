package model

import (
	"time"
)

// UserFile is a file owned by exactly one user. Recycled files keep their
// row with IsDeleted set until purged.
type UserFile struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	UserID uint64 `gorm:"column:user_id;not null;index" json:"user_id"`

	Name string `gorm:"column:name;size:255;not null" json:"name"`

	ObjectID uint64      `gorm:"column:object_id;index;not null" json:"object_id"`
	Object   *FileObject `gorm:"foreignKey:ObjectID;references:ID" json:"-"`

	Size        int64  `gorm:"column:size;not null;default:0" json:"size"`
	MimeType    string `gorm:"column:mime_type;size:128;not null;default:''" json:"mime_type"`
	ContentHash string `gorm:"column:content_hash;size:64;not null;default:''" json:"content_hash"`

	IsDeleted bool       `gorm:"column:is_deleted;not null;default:false;index" json:"is_deleted"`
	DeletedAt *time.Time `gorm:"column:deleted_at" json:"deleted_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName returns the database table name.
func (UserFile) TableName() string {
	return "user_file"
}

/*
IsDeleted/DeletedAt are plain columns rather than gorm.DeletedAt:
recycled files must stay visible to the recycle bin and to share
resolution, which filters on is_deleted explicitly.
*/

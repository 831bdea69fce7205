package model

import "time"

// FileObject is a stored blob shared by every UserFile with the same hash.
type FileObject struct {
	ID uint64 `gorm:"primaryKey"`

	Hash string `gorm:"column:hash;size:64;uniqueIndex;not null"`

	BucketName string `gorm:"column:bucket_name;size:64;not null"`
	ObjectName string `gorm:"column:object_name;size:512;not null"`

	Size     int64  `gorm:"column:size;not null"`
	MimeType string `gorm:"column:mime_type;size:128;not null;default:''"`

	RefCount int `gorm:"column:ref_count;not null;default:1"`

	CreatedAt time.Time
}

// TableName returns the database table name.
func (FileObject) TableName() string {
	return "file_object"
}

package model

import "time"

const (
	LevelRead  = "read"
	LevelWrite = "write"
	LevelOwner = "owner"
)

// LevelRank orders permission levels; unknown levels rank 0.
func LevelRank(level string) int {
	switch level {
	case LevelRead:
		return 1
	case LevelWrite:
		return 2
	case LevelOwner:
		return 3
	default:
		return 0
	}
}

// FilePermission grants a user, or every user with a role, access to a file.
type FilePermission struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	FileID uint64  `gorm:"column:file_id;not null;index" json:"file_id"`
	UserID *uint64 `gorm:"column:user_id;index" json:"user_id,omitempty"`
	Role   *string `gorm:"column:role;size:16" json:"role,omitempty"`

	Level     string     `gorm:"column:level;size:16;not null" json:"level"`
	ExpiresAt *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	GrantedBy uint64     `gorm:"column:granted_by;not null" json:"granted_by"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (FilePermission) TableName() string {
	return "file_permission"
}

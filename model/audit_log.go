package model

import "time"

type AuditLog struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	Event      string  `gorm:"column:event;size:64;not null;index" json:"event"`
	ActorID    *uint64 `gorm:"column:actor_id;index" json:"actor_id,omitempty"`
	TargetType string  `gorm:"column:target_type;size:32;not null;default:''" json:"target_type"`
	TargetID   uint64  `gorm:"column:target_id;not null;default:0" json:"target_id"`
	Metadata   string  `gorm:"column:metadata;type:text" json:"metadata"`
	IP         string  `gorm:"column:ip;size:64;not null;default:''" json:"ip"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName returns the database table name.
func (AuditLog) TableName() string {
	return "audit_log"
}

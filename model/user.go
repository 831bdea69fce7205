package model

import (
	"gorm.io/gorm"
	"time"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	UserName string `gorm:"column:user_name;type:varchar(50);not null;unique" json:"user_name"`

	// Password always holds a bcrypt hash.
	Password string `gorm:"column:pass_word;type:varchar(255);not null" json:"-"`

	Email string `gorm:"column:email;type:varchar(255);not null;unique" json:"email"`

	Role string `gorm:"column:role;type:varchar(16);not null;default:'user'" json:"role"`

	IsActive bool `gorm:"column:is_active;not null;default:false" json:"is_active"`

	UseSpace  uint64         `gorm:"column:use_space;not null;default:0" json:"use_space"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName returns the database table name.
func (User) TableName() string {
	return "user_db"
}

// IsAdmin reports whether the user holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

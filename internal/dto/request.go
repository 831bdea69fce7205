package dto

import "time"

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RegisterRequest struct {
	Username      string `json:"username" binding:"required"`
	FirstPassword string `json:"first-password" binding:"required"`
	LastPassword  string `json:"second-password" binding:"required"`
	Email         string `json:"email" binding:"required"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// ListQuery is the common paging query string.
type ListQuery struct {
	Page      int    `form:"page"`
	PageSize  int    `form:"page_size"`
	Query     string `form:"q"`
	OrderBy   string `form:"order_by"`
	OrderDesc bool   `form:"order_desc"`
}

type FileRenameRequest struct {
	NewName string `json:"new_name" binding:"required"`
}

type FileURLRequest struct {
	ExpiresIn int `form:"expires_in"`
}

type GrantPermissionRequest struct {
	UserID    *uint64    `json:"user_id"`
	Role      *string    `json:"role"`
	Level     string     `json:"level" binding:"required"`
	ExpiresAt *time.Time `json:"expires_at"`
}

type CreateShareRequest struct {
	FileID        uint64     `json:"file_id" binding:"required"`
	ExpiresAt     *time.Time `json:"expires_at"`
	ExpireDays    int        `json:"expire_days"`
	Password      string     `json:"password"`
	DownloadLimit *int64     `json:"download_limit"`
	AllowPreview  bool       `json:"allow_preview"`
}

type ListSharesQuery struct {
	FileID         *uint64 `form:"file_id"`
	IncludeDeleted bool    `form:"include_deleted"`
	Page           int     `form:"page"`
	PageSize       int     `form:"page_size"`
}

type SharePasswordRequest struct {
	Password string `json:"password"`
}

type AdminCreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Role     string `json:"role"`
}

type SetRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

type SetActiveRequest struct {
	Active *bool `json:"active" binding:"required"`
}

type AuditLogQuery struct {
	Event    string  `form:"event"`
	ActorID  *uint64 `form:"actor_id"`
	Page     int     `form:"page"`
	PageSize int     `form:"page_size"`
}

type ExpiredSharesQuery struct {
	Limit int `form:"limit"`
}

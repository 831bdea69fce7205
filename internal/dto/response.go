package dto

import (
	"PanShare/model"
	"time"
)

type LoginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// CreateShareResponse carries the token once; owners can list it later.
type CreateShareResponse struct {
	ID            uint64     `json:"id"`
	Token         string     `json:"token"`
	URL           string     `json:"url"`
	ExpiresAt     *time.Time `json:"expires_at"`
	DownloadLimit *int64     `json:"download_limit"`
	AllowPreview  bool       `json:"allow_preview"`
	HasPassword   bool       `json:"has_password"`
}

// PublicShareResponse is what an anonymous visitor sees for a valid link.
type PublicShareResponse struct {
	FileName           string     `json:"file_name"`
	Size               int64      `json:"size"`
	MimeType           string     `json:"mime_type"`
	ExpiresAt          *time.Time `json:"expires_at"`
	RemainingDownloads *int64     `json:"remaining_downloads"`
	AllowPreview       bool       `json:"allow_preview"`
}

type FileURLResponse struct {
	URL       string    `json:"url"`
	ExpiresAt time.Time `json:"expires_at"`
}

type SweepResponse struct {
	Swept int64 `json:"swept"`
}

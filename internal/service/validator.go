package service

import (
	"PanShare/internal/metrics"
	"PanShare/internal/repo"
	"PanShare/model"
	"PanShare/utils"
	"context"
	"errors"
	"log/slog"
	"strings"
)

// Reason explains why a share token was rejected.
type Reason string

const (
	ReasonNone          Reason = ""
	ReasonNotFound      Reason = "NOT_FOUND"
	ReasonExpired       Reason = "EXPIRED"
	ReasonLimitExceeded Reason = "LIMIT_EXCEEDED"
	ReasonBadPassword   Reason = "BAD_PASSWORD"
)

// Err maps a rejection reason to its sentinel error.
func (r Reason) Err() error {
	switch r {
	case ReasonNone:
		return nil
	case ReasonExpired:
		return ErrExpired
	case ReasonLimitExceeded:
		return ErrLimitExceeded
	case ReasonBadPassword:
		return ErrBadPassword
	default:
		return ErrNotFound
	}
}

func (r Reason) label() string {
	if r == ReasonNone {
		return "valid"
	}
	return strings.ToLower(string(r))
}

type ValidationResult struct {
	Valid  bool
	Share  *model.FileShare
	File   *model.UserFile
	Reason Reason
}

// AccessValidator resolves a share token into an allow/deny decision.
// It never mutates state and always reads current storage.
type AccessValidator struct {
	shares ShareRepository
	files  FileRepository
	now    Clock
}

func NewAccessValidator(shares ShareRepository, files FileRepository, clock Clock) *AccessValidator {
	return &AccessValidator{shares: shares, files: files, now: clock}
}

// Validate checks token and optional password. A rejected token returns a
// result carrying the Reason together with the matching sentinel error;
// storage failures return a nil result.
func (v *AccessValidator) Validate(ctx context.Context, token string, password *string) (*ValidationResult, error) {
	res, err := v.validate(ctx, token, password)
	if err != nil {
		return nil, err
	}
	metrics.ShareValidationsTotal.WithLabelValues(res.Reason.label()).Inc()
	if !res.Valid {
		slog.Debug("share rejected", "token", utils.MaskToken(token), "reason", res.Reason)
		return res, res.Reason.Err()
	}
	return res, nil
}

func (v *AccessValidator) validate(ctx context.Context, token string, password *string) (*ValidationResult, error) {
	deny := func(share *model.FileShare, r Reason) (*ValidationResult, error) {
		return &ValidationResult{Share: share, Reason: r}, nil
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return deny(nil, ReasonNotFound)
	}
	share, err := v.shares.FindActiveShareByToken(ctx, token)
	if errors.Is(err, repo.ErrNotFound) {
		return deny(nil, ReasonNotFound)
	}
	if err != nil {
		return nil, err
	}

	if share.ExpiresAt != nil && !share.ExpiresAt.After(v.now()) {
		return deny(share, ReasonExpired)
	}
	if share.DownloadLimit != nil && share.DownloadCount >= *share.DownloadLimit {
		return deny(share, ReasonLimitExceeded)
	}
	if share.HasPassword() {
		if password == nil || !utils.CheckPwd(*password, *share.PasswordHash) {
			return deny(share, ReasonBadPassword)
		}
	}

	file, err := v.files.GetFileWithObject(ctx, share.FileID)
	if errors.Is(err, repo.ErrNotFound) {
		return deny(share, ReasonNotFound)
	}
	if err != nil {
		return nil, err
	}
	if file.IsDeleted {
		return deny(share, ReasonNotFound)
	}

	return &ValidationResult{Valid: true, Share: share, File: file}, nil
}

package service

import (
	"PanShare/internal/metrics"
	"PanShare/internal/repo"
	"PanShare/model"
	"PanShare/utils"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

type CreateShareOptions struct {
	ExpiresAt     *time.Time
	Password      string
	DownloadLimit *int64
	AllowPreview  bool
}

// ShareHandle is what the owner gets back from CreateShare.
type ShareHandle struct {
	Share *model.FileShare
	Token string
	URL   string
}

const (
	ShareStatusActive    = "active"
	ShareStatusExpired   = "expired"
	ShareStatusExhausted = "exhausted"
	ShareStatusDeleted   = "deleted"
)

// ShareView is a share as shown to its owner.
type ShareView struct {
	model.FileShare
	URL         string `json:"url"`
	Status      string `json:"status"`
	HasPassword bool   `json:"has_password"`
}

type ListSharesOptions struct {
	FileID         *uint64
	IncludeDeleted bool
	Page           int
	PageSize       int
}

type SharePage struct {
	Items []ShareView `json:"items"`
	Total int64       `json:"total"`
}

// ShareManager owns the share lifecycle: creation, owner updates, deletion
// and the expiry sweep.
type ShareManager struct {
	shares   ShareRepository
	gate     *AccessGate
	tokens   TokenGenerator
	audit    AuditLog
	notifier ExpiryNotifier
	now      Clock
	baseURL  string
}

func NewShareManager(shares ShareRepository, gate *AccessGate, tokens TokenGenerator, audit AuditLog, clock Clock, baseURL string) *ShareManager {
	return &ShareManager{
		shares:  shares,
		gate:    gate,
		tokens:  tokens,
		audit:   audit,
		now:     clock,
		baseURL: baseURL,
	}
}

// SetExpiryNotifier enables early sweeps at share expiry.
func (m *ShareManager) SetExpiryNotifier(n ExpiryNotifier) {
	m.notifier = n
}

// ShareURL is the public link for token.
func (m *ShareManager) ShareURL(token string) string {
	return m.baseURL + "/s/" + token
}

// CreateShare issues a new link to fileID. The requester needs write
// access to the file.
func (m *ShareManager) CreateShare(ctx context.Context, fileID, requesterID uint64, opts CreateShareOptions) (*ShareHandle, error) {
	ok, err := m.gate.CanAccess(ctx, fileID, requesterID, model.LevelWrite)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccessDenied
	}

	now := m.now()
	if opts.DownloadLimit != nil && *opts.DownloadLimit <= 0 {
		return nil, invalidArgf("download_limit must be positive")
	}
	var expiresAt *time.Time
	if opts.ExpiresAt != nil {
		if !opts.ExpiresAt.After(now) {
			return nil, invalidArgf("expires_at must be in the future")
		}
		t := opts.ExpiresAt.UTC()
		expiresAt = &t
	}
	var passwordHash *string
	if opts.Password != "" {
		hash, err := hashSharePassword(opts.Password)
		if err != nil {
			return nil, err
		}
		passwordHash = &hash
	}

	// Regenerate once on a token collision, then give up.
	for attempt := 0; attempt < 2; attempt++ {
		token, err := m.tokens.Generate()
		if err != nil {
			return nil, fmt.Errorf("generate token: %w", err)
		}
		share := &model.FileShare{
			Token:         token,
			FileID:        fileID,
			OwnerID:       requesterID,
			PasswordHash:  passwordHash,
			ExpiresAt:     expiresAt,
			DownloadLimit: opts.DownloadLimit,
			AllowPreview:  opts.AllowPreview,
			IsActive:      true,
		}
		err = m.shares.CreateShare(ctx, share)
		if errors.Is(err, repo.ErrDuplicateKey) {
			slog.Warn("share token collision", "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, err
		}

		m.arm(ctx, share)
		record(ctx, m.audit, m.now, Event{
			Name:       EventShareCreate,
			ActorID:    actor(requesterID),
			TargetType: "share",
			TargetID:   share.ID,
			Metadata: map[string]any{
				"file_id":        fileID,
				"has_password":   passwordHash != nil,
				"download_limit": opts.DownloadLimit,
				"expires_at":     expiresAt,
			},
		})
		return &ShareHandle{Share: share, Token: token, URL: m.ShareURL(token)}, nil
	}
	return nil, fmt.Errorf("%w: share token collision", ErrConflict)
}

// loadManaged returns a live share the requester may manage.
func (m *ShareManager) loadManaged(ctx context.Context, shareID, requesterID uint64, allowDeleted bool) (*model.FileShare, error) {
	share, err := m.shares.GetShareByID(ctx, shareID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if share.DeletedAt != nil && !allowDeleted {
		return nil, ErrNotFound
	}
	ok, err := m.gate.CanManageShare(ctx, share, requesterID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccessDenied
	}
	return share, nil
}

// UpdateShare applies an owner's changes to a live share.
func (m *ShareManager) UpdateShare(ctx context.Context, shareID, requesterID uint64, u ShareUpdate) error {
	share, err := m.loadManaged(ctx, shareID, requesterID, false)
	if err != nil {
		return err
	}
	if u.Empty() {
		return invalidArgf("no fields to update")
	}

	fields := make(map[string]any)
	if u.ExpiresAt.Set {
		if u.ExpiresAt.Clear {
			fields["expires_at"] = nil
		} else {
			if !u.ExpiresAt.Value.After(m.now()) {
				return invalidArgf("expires_at must be in the future")
			}
			fields["expires_at"] = u.ExpiresAt.Value.UTC()
		}
	}
	if u.DownloadLimit.Set {
		if u.DownloadLimit.Clear {
			fields["download_limit"] = nil
		} else {
			limit := u.DownloadLimit.Value
			if limit <= 0 {
				return invalidArgf("download_limit must be positive")
			}
			if limit < share.DownloadCount {
				return invalidArgf("download_limit %d is below the current download count %d", limit, share.DownloadCount)
			}
			fields["download_limit"] = limit
		}
	}
	if u.AllowPreview.Set && !u.AllowPreview.Clear {
		fields["allow_preview"] = u.AllowPreview.Value
	}
	if u.Password.Set {
		if u.Password.Clear || u.Password.Value == "" {
			fields["password_hash"] = nil
		} else {
			hash, err := hashSharePassword(u.Password.Value)
			if err != nil {
				return err
			}
			fields["password_hash"] = hash
		}
	}

	n, err := m.shares.UpdateShareFields(ctx, share.ID, fields)
	if err != nil {
		return err
	}
	if n == 0 {
		// Either deleted meanwhile, or downloads overtook the new limit.
		current, err := m.shares.GetShareByID(ctx, share.ID)
		if err != nil {
			return err
		}
		if current.DeletedAt != nil {
			return ErrNotFound
		}
		if limit, ok := fields["download_limit"].(int64); ok && current.DownloadCount > limit {
			return invalidArgf("download_limit %d is below the current download count %d", limit, current.DownloadCount)
		}
	}

	if u.ExpiresAt.Set {
		if u.ExpiresAt.Clear {
			m.disarm(ctx, share.ID)
		} else {
			share.ExpiresAt = &u.ExpiresAt.Value
			m.arm(ctx, share)
		}
	}
	changed := make([]string, 0, len(fields))
	for k := range fields {
		changed = append(changed, k)
	}
	sort.Strings(changed)
	record(ctx, m.audit, m.now, Event{
		Name:       EventShareUpdate,
		ActorID:    actor(requesterID),
		TargetType: "share",
		TargetID:   share.ID,
		Metadata:   map[string]any{"fields": changed},
	})
	return nil
}

// DeleteShare soft-deletes a share. Deleting twice succeeds and keeps the
// first deleted_at.
func (m *ShareManager) DeleteShare(ctx context.Context, shareID, requesterID uint64) error {
	share, err := m.loadManaged(ctx, shareID, requesterID, true)
	if err != nil {
		return err
	}
	if share.DeletedAt != nil {
		return nil
	}
	n, err := m.shares.SoftDeleteShare(ctx, share.ID, m.now())
	if err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	m.disarm(ctx, share.ID)
	record(ctx, m.audit, m.now, Event{
		Name:       EventShareDelete,
		ActorID:    actor(requesterID),
		TargetType: "share",
		TargetID:   share.ID,
	})
	return nil
}

// GetShare returns one share for its owner or an admin.
func (m *ShareManager) GetShare(ctx context.Context, shareID, requesterID uint64) (*ShareView, error) {
	share, err := m.loadManaged(ctx, shareID, requesterID, true)
	if err != nil {
		return nil, err
	}
	view := m.view(*share)
	return &view, nil
}

// ListShares returns the requester's own shares, newest first.
func (m *ShareManager) ListShares(ctx context.Context, requesterID uint64, opts ListSharesOptions) (*SharePage, error) {
	shares, total, err := m.shares.ListSharesByOwner(ctx, requesterID, repo.ShareFilter{
		FileID:         opts.FileID,
		IncludeDeleted: opts.IncludeDeleted,
		Page:           pageWindow(opts.Page, opts.PageSize),
	})
	if err != nil {
		return nil, err
	}
	page := &SharePage{Items: make([]ShareView, 0, len(shares)), Total: total}
	for _, s := range shares {
		page.Items = append(page.Items, m.view(s))
	}
	return page, nil
}

// CleanupExpiredShares deactivates every live share whose expiry has
// passed and returns how many it changed. Safe to run concurrently and
// repeatedly; already-deleted shares are never counted again.
func (m *ShareManager) CleanupExpiredShares(ctx context.Context) (int64, error) {
	n, err := m.shares.SoftDeleteExpired(ctx, m.now())
	if err != nil {
		return 0, fmt.Errorf("sweep expired shares: %w", err)
	}
	if n > 0 {
		metrics.SharesSweptTotal.Add(float64(n))
		slog.Info("expired shares swept", "count", n)
		record(ctx, m.audit, m.now, Event{
			Name:       EventShareSweep,
			TargetType: "share",
			Metadata:   map[string]any{"count": n},
		})
	}
	return n, nil
}

// PendingExpired lists live shares already past expiry, oldest first.
func (m *ShareManager) PendingExpired(ctx context.Context, limit int) ([]model.FileShare, error) {
	return m.shares.FindExpiredActiveShares(ctx, m.now(), limit)
}

// hashSharePassword bcrypt-hashes a share password.
func hashSharePassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", invalidArgf("password must be at most %d bytes", maxPasswordBytes)
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hash share password: %w", err)
	}
	return hash, nil
}

func (m *ShareManager) view(s model.FileShare) ShareView {
	v := ShareView{
		FileShare:   s,
		URL:         m.ShareURL(s.Token),
		HasPassword: s.HasPassword(),
	}
	switch {
	case !s.Resolvable():
		v.Status = ShareStatusDeleted
	case s.ExpiresAt != nil && !s.ExpiresAt.After(m.now()):
		v.Status = ShareStatusExpired
	case s.DownloadLimit != nil && s.DownloadCount >= *s.DownloadLimit:
		v.Status = ShareStatusExhausted
	default:
		v.Status = ShareStatusActive
	}
	return v
}

func (m *ShareManager) arm(ctx context.Context, share *model.FileShare) {
	if m.notifier == nil || share.ExpiresAt == nil {
		return
	}
	if err := m.notifier.Arm(ctx, share.ID, *share.ExpiresAt); err != nil {
		slog.Warn("arm share expiry failed", "share_id", share.ID, "error", err)
	}
}

func (m *ShareManager) disarm(ctx context.Context, shareID uint64) {
	if m.notifier == nil {
		return
	}
	if err := m.notifier.Disarm(ctx, shareID); err != nil {
		slog.Warn("disarm share expiry failed", "share_id", shareID, "error", err)
	}
}

package service

import (
	"PanShare/internal/repo"
	"PanShare/internal/storage"
	"PanShare/model"
	"context"
	"time"
)

// Clock returns the current time. Services compare expiries against it.
type Clock func() time.Time

// SystemClock is the wall clock in UTC, truncated to what every supported
// database can store.
func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

type ShareRepository interface {
	CreateShare(ctx context.Context, share *model.FileShare) error
	GetShareByID(ctx context.Context, id uint64) (*model.FileShare, error)
	FindActiveShareByToken(ctx context.Context, token string) (*model.FileShare, error)
	UpdateShareFields(ctx context.Context, id uint64, fields map[string]any) (int64, error)
	SoftDeleteShare(ctx context.Context, id uint64, now time.Time) (int64, error)
	TryIncrementDownload(ctx context.Context, id uint64, now time.Time) (int64, error)
	FindExpiredActiveShares(ctx context.Context, now time.Time, limit int) ([]model.FileShare, error)
	SoftDeleteExpired(ctx context.Context, now time.Time) (int64, error)
	ListSharesByOwner(ctx context.Context, ownerID uint64, f repo.ShareFilter) ([]model.FileShare, int64, error)
}

type FileRepository interface {
	GetFile(ctx context.Context, id uint64) (*model.UserFile, error)
	GetFileWithObject(ctx context.Context, id uint64) (*model.UserFile, error)
	FindObjectByHash(ctx context.Context, hash string) (*model.FileObject, error)
	CreateFile(ctx context.Context, file *model.UserFile, obj *model.FileObject) (bool, error)
	ListFiles(ctx context.Context, f repo.FileFilter) ([]model.UserFile, int64, error)
	RenameFile(ctx context.Context, id uint64, name string) error
	MoveToRecycle(ctx context.Context, id uint64, now time.Time) (int64, error)
	RestoreFile(ctx context.Context, id uint64) (int64, error)
	PurgeFile(ctx context.Context, id uint64) (*model.FileObject, error)
}

type PermissionRepository interface {
	FindPermissions(ctx context.Context, fileID uint64) ([]model.FilePermission, error)
	GrantPermission(ctx context.Context, perm *model.FilePermission) error
	RevokePermission(ctx context.Context, fileID, permID uint64) (int64, error)
}

type UserRepository interface {
	GetUser(ctx context.Context, id uint64) (*model.User, error)
	GetUserByName(ctx context.Context, name string) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUserPassword(ctx context.Context, id uint64, hash string) error
	ListUsers(ctx context.Context, p repo.Page) ([]model.User, int64, error)
	SetUserRole(ctx context.Context, id uint64, role string) error
	SetUserActive(ctx context.Context, id uint64, active bool) error
	AddUsedSpace(ctx context.Context, id uint64, delta int64) error
}

type AuditRepository interface {
	CreateAuditLog(ctx context.Context, entry *model.AuditLog) error
	ListAuditLogs(ctx context.Context, f repo.AuditFilter) ([]model.AuditLog, int64, error)
}

type StatsRepository interface {
	CountUsers(ctx context.Context) (int64, error)
	CountFiles(ctx context.Context) (repo.FileTotals, error)
	CountShares(ctx context.Context, now time.Time) (repo.ShareCounts, error)
}

// ExpiryNotifier schedules an early sweep at a share's expiry.
type ExpiryNotifier interface {
	Arm(ctx context.Context, shareID uint64, expiresAt time.Time) error
	Disarm(ctx context.Context, shareID uint64) error
}

// ActivationStore holds one-time account activation tokens.
type ActivationStore interface {
	Save(ctx context.Context, token string, userID uint64, ttl time.Duration) error
	Take(ctx context.Context, token string) (uint64, error)
}

type Mailer interface {
	SendActivation(ctx context.Context, to, link string) error
}

// Deps carries everything the services need. Optional fields may be nil.
type Deps struct {
	Shares      ShareRepository
	Files       FileRepository
	Permissions PermissionRepository
	Users       UserRepository
	Audits      AuditRepository
	Stats       StatsRepository

	Blobs  storage.Store
	Bucket string

	Audit       AuditLog
	Notifier    ExpiryNotifier
	Activations ActivationStore
	Mailer      Mailer
	Tokens      TokenGenerator
	Clock       Clock

	BaseURL            string
	ActivationRequired bool
	ActivationTTL      time.Duration
	MaxUploadBytes     int64
}

// Services is the wired service layer.
type Services struct {
	Gate       *AccessGate
	Validator  *AccessValidator
	Accountant *DownloadAccountant
	Shares     *ShareManager
	Downloads  *ShareDownloader
	Files      *FileService
	Users      *UserService
	Admin      *AdminService
}

// New wires the service layer from d, filling defaults for the clock,
// token generator and audit log.
func New(d Deps) *Services {
	if d.Clock == nil {
		d.Clock = SystemClock
	}
	if d.Tokens == nil {
		d.Tokens = NewTokenGenerator()
	}
	if d.Audit == nil {
		d.Audit = NopAuditLog{}
	}

	gate := NewAccessGate(d.Files, d.Permissions, d.Users, d.Clock)
	validator := NewAccessValidator(d.Shares, d.Files, d.Clock)
	accountant := NewDownloadAccountant(d.Shares, d.Clock)
	shares := NewShareManager(d.Shares, gate, d.Tokens, d.Audit, d.Clock, d.BaseURL)
	if d.Notifier != nil {
		shares.SetExpiryNotifier(d.Notifier)
	}
	users := NewUserService(d.Users, d.Activations, d.Mailer, d.Tokens, d.Audit, d.Clock, UserOptions{
		BaseURL:            d.BaseURL,
		ActivationRequired: d.ActivationRequired,
		ActivationTTL:      d.ActivationTTL,
	})

	return &Services{
		Gate:       gate,
		Validator:  validator,
		Accountant: accountant,
		Shares:     shares,
		Downloads:  NewShareDownloader(validator, accountant, d.Blobs, d.Audit),
		Files:      NewFileService(d.Files, d.Permissions, d.Users, gate, d.Blobs, d.Bucket, d.Audit, d.Clock, d.MaxUploadBytes),
		Users:      users,
		Admin:      NewAdminService(d.Users, d.Files, d.Audits, d.Stats, users, shares, d.Audit, d.Clock),
	}
}

// pageWindow turns a 1-based page and size into an offset window, clamping
// size to [1, 100] with a default of 20.
func pageWindow(page, size int) repo.Page {
	if size <= 0 {
		size = 20
	}
	if size > 100 {
		size = 100
	}
	if page <= 0 {
		page = 1
	}
	return repo.Page{Offset: (page - 1) * size, Limit: size}
}

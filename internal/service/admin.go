package service

import (
	"PanShare/internal/repo"
	"PanShare/model"
	"context"
	"errors"
)

type Stats struct {
	Users  int64            `json:"users"`
	Files  repo.FileTotals  `json:"files"`
	Shares repo.ShareCounts `json:"shares"`
}

type UserPage struct {
	Items []model.User `json:"items"`
	Total int64        `json:"total"`
}

type AuditPage struct {
	Items []model.AuditLog `json:"items"`
	Total int64            `json:"total"`
}

type AuditListOptions struct {
	Event    string
	ActorID  *uint64
	Page     int
	PageSize int
}

// AdminService backs the admin console. Every method re-checks that the
// actor holds the admin role.
type AdminService struct {
	users     UserRepository
	files     FileRepository
	audits    AuditRepository
	stats     StatsRepository
	accounts  *UserService
	shares    *ShareManager
	audit     AuditLog
	now       Clock
	fileLists *FileService
}

func NewAdminService(users UserRepository, files FileRepository, audits AuditRepository, stats StatsRepository,
	accounts *UserService, shares *ShareManager, audit AuditLog, clock Clock) *AdminService {
	return &AdminService{
		users:     users,
		files:     files,
		audits:    audits,
		stats:     stats,
		accounts:  accounts,
		shares:    shares,
		audit:     audit,
		now:       clock,
		fileLists: &FileService{files: files},
	}
}

func (s *AdminService) requireAdmin(ctx context.Context, actorID uint64) error {
	user, err := s.users.GetUser(ctx, actorID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrAccessDenied
	}
	if err != nil {
		return err
	}
	if !user.IsAdmin() || !user.IsActive {
		return ErrAccessDenied
	}
	return nil
}

func (s *AdminService) ListUsers(ctx context.Context, actorID uint64, page, size int) (*UserPage, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	users, total, err := s.users.ListUsers(ctx, pageWindow(page, size))
	if err != nil {
		return nil, err
	}
	return &UserPage{Items: users, Total: total}, nil
}

// CreateUser adds an active account with the given role.
func (s *AdminService) CreateUser(ctx context.Context, actorID uint64, in RegisterInput, role string) (*model.User, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if role != model.RoleUser && role != model.RoleAdmin {
		return nil, invalidArgf("unknown role %q", role)
	}
	return s.accounts.create(ctx, in, role, true)
}

// SetRole changes another user's role. Admins cannot change their own.
func (s *AdminService) SetRole(ctx context.Context, actorID, userID uint64, role string) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if role != model.RoleUser && role != model.RoleAdmin {
		return invalidArgf("unknown role %q", role)
	}
	if actorID == userID {
		return invalidArgf("cannot change your own role")
	}
	if err := s.users.SetUserRole(ctx, userID, role); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	record(ctx, s.audit, s.now, Event{Name: EventUserRole, ActorID: actor(actorID), TargetType: "user", TargetID: userID,
		Metadata: map[string]any{"role": role}})
	return nil
}

// SetActive enables or disables another user's account.
func (s *AdminService) SetActive(ctx context.Context, actorID, userID uint64, active bool) error {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	if actorID == userID {
		return invalidArgf("cannot change your own account state")
	}
	if err := s.users.SetUserActive(ctx, userID, active); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	record(ctx, s.audit, s.now, Event{Name: EventUserActive, ActorID: actor(actorID), TargetType: "user", TargetID: userID,
		Metadata: map[string]any{"active": active}})
	return nil
}

// ListFiles lists files across every tenant.
func (s *AdminService) ListFiles(ctx context.Context, actorID uint64, opts FileListOptions) (*FilePage, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	return s.fileLists.list(ctx, nil, opts)
}

func (s *AdminService) ListLogs(ctx context.Context, actorID uint64, opts AuditListOptions) (*AuditPage, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	logs, total, err := s.audits.ListAuditLogs(ctx, repo.AuditFilter{
		Event:   opts.Event,
		ActorID: opts.ActorID,
		Page:    pageWindow(opts.Page, opts.PageSize),
	})
	if err != nil {
		return nil, err
	}
	return &AuditPage{Items: logs, Total: total}, nil
}

func (s *AdminService) Stats(ctx context.Context, actorID uint64) (*Stats, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	var st Stats
	var err error
	if st.Users, err = s.stats.CountUsers(ctx); err != nil {
		return nil, err
	}
	if st.Files, err = s.stats.CountFiles(ctx); err != nil {
		return nil, err
	}
	if st.Shares, err = s.stats.CountShares(ctx, s.now()); err != nil {
		return nil, err
	}
	return &st, nil
}

// ExpiredShares lists live shares already past expiry, oldest first. These
// are what the next sweep deactivates. limit defaults to 50, at most 500.
func (s *AdminService) ExpiredShares(ctx context.Context, actorID uint64, limit int) ([]ShareView, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}
	shares, err := s.shares.PendingExpired(ctx, limit)
	if err != nil {
		return nil, err
	}
	views := make([]ShareView, 0, len(shares))
	for _, sh := range shares {
		views = append(views, s.shares.view(sh))
	}
	return views, nil
}

// Sweep runs the expired-share cleanup on demand.
func (s *AdminService) Sweep(ctx context.Context, actorID uint64) (int64, error) {
	if err := s.requireAdmin(ctx, actorID); err != nil {
		return 0, err
	}
	return s.shares.CleanupExpiredShares(ctx)
}

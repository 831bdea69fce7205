package service

import (
	"PanShare/internal/repo"
	"PanShare/model"
	"context"
	"errors"
)

// AccessGate decides who may act on a file or a share.
type AccessGate struct {
	files FileRepository
	perms PermissionRepository
	users UserRepository
	now   Clock
}

func NewAccessGate(files FileRepository, perms PermissionRepository, users UserRepository, clock Clock) *AccessGate {
	return &AccessGate{files: files, perms: perms, users: users, now: clock}
}

// CanAccess reports whether userID holds at least level on fileID.
// Missing and recycled files deny everyone. Owners and admins always
// pass; anyone else needs an unexpired grant for the user or their role.
func (g *AccessGate) CanAccess(ctx context.Context, fileID, userID uint64, level string) (bool, error) {
	want := model.LevelRank(level)
	if want == 0 {
		return false, invalidArgf("unknown permission level %q", level)
	}
	file, err := g.files.GetFile(ctx, fileID)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if file.IsDeleted {
		return false, nil
	}
	if file.UserID == userID {
		return true, nil
	}

	user, err := g.lookupUser(ctx, userID)
	if err != nil || user == nil {
		return false, err
	}
	if user.IsAdmin() {
		return true, nil
	}

	perms, err := g.perms.FindPermissions(ctx, fileID)
	if err != nil {
		return false, err
	}
	now := g.now()
	for _, p := range perms {
		if p.ExpiresAt != nil && !p.ExpiresAt.After(now) {
			continue
		}
		matches := (p.UserID != nil && *p.UserID == userID) ||
			(p.Role != nil && *p.Role == user.Role)
		if matches && model.LevelRank(p.Level) >= want {
			return true, nil
		}
	}
	return false, nil
}

// CanManageFile reports whether userID may recycle, restore or purge the
// file regardless of its recycle state: owners and admins only.
func (g *AccessGate) CanManageFile(ctx context.Context, file *model.UserFile, userID uint64) (bool, error) {
	if file.UserID == userID {
		return true, nil
	}
	return g.isAdmin(ctx, userID)
}

// CanManageShare reports whether userID owns the share or is an admin.
func (g *AccessGate) CanManageShare(ctx context.Context, share *model.FileShare, userID uint64) (bool, error) {
	if share.OwnerID == userID {
		return true, nil
	}
	return g.isAdmin(ctx, userID)
}

func (g *AccessGate) isAdmin(ctx context.Context, userID uint64) (bool, error) {
	user, err := g.lookupUser(ctx, userID)
	if err != nil || user == nil {
		return false, err
	}
	return user.IsAdmin(), nil
}

// lookupUser returns nil without error for unknown or disabled users.
func (g *AccessGate) lookupUser(ctx context.Context, userID uint64) (*model.User, error) {
	if userID == 0 {
		return nil, nil
	}
	user, err := g.users.GetUser(ctx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, nil
	}
	return user, nil
}

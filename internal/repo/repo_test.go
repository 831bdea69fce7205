package repo

import (
	"PanShare/model"
	"bytes"
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewStore(db)
}

func seedShare(t *testing.T, s *Store, token string, mutate func(*model.FileShare)) *model.FileShare {
	t.Helper()
	share := &model.FileShare{Token: token, FileID: 1, OwnerID: 1, IsActive: true}
	if mutate != nil {
		mutate(share)
	}
	require.NoError(t, s.CreateShare(context.Background(), share))
	return share
}

func int64p(v int64) *int64 { return &v }

func TestCreateShareDuplicateToken(t *testing.T) {
	s := newTestStore(t)
	seedShare(t, s, "tok", nil)

	err := s.CreateShare(context.Background(), &model.FileShare{Token: "tok", FileID: 2, OwnerID: 1, IsActive: true})
	assert.ErrorIs(t, err, ErrDuplicateKey)
}

func TestFindActiveShareByToken(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	live := seedShare(t, s, "live", nil)
	gone := seedShare(t, s, "gone", nil)
	_, err := s.SoftDeleteShare(ctx, gone.ID, t0)
	require.NoError(t, err)

	got, err := s.FindActiveShareByToken(ctx, "live")
	require.NoError(t, err)
	assert.Equal(t, live.ID, got.ID)

	_, err = s.FindActiveShareByToken(ctx, "gone")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindActiveShareByToken(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTryIncrementDownload(t *testing.T) {
	ctx := context.Background()
	past := t0.Add(-time.Minute)

	tests := []struct {
		name   string
		mutate func(*model.FileShare)
		want   int64
	}{
		{"unlimited", nil, 1},
		{"under limit", func(s *model.FileShare) { s.DownloadLimit = int64p(2); s.DownloadCount = 1 }, 1},
		{"at limit", func(s *model.FileShare) { s.DownloadLimit = int64p(2); s.DownloadCount = 2 }, 0},
		{"expired", func(s *model.FileShare) { s.ExpiresAt = &past }, 0},
		{"deleted", func(s *model.FileShare) { s.DeletedAt = &past }, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStore(t)
			share := seedShare(t, s, "tok", tt.mutate)

			n, err := s.TryIncrementDownload(ctx, share.ID, t0)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)

			got, err := s.GetShareByID(ctx, share.ID)
			require.NoError(t, err)
			assert.Equal(t, share.DownloadCount+tt.want, got.DownloadCount)
			if tt.want == 1 {
				require.NotNil(t, got.LastAccessedAt)
				assert.True(t, got.LastAccessedAt.Equal(t0))
			}
		})
	}
}

func TestSoftDeleteShareKeepsFirstTimestamp(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	share := seedShare(t, s, "tok", nil)

	n, err := s.SoftDeleteShare(ctx, share.ID, t0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	n, err = s.SoftDeleteShare(ctx, share.ID, t0.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	got, err := s.GetShareByID(ctx, share.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	require.NotNil(t, got.DeletedAt)
	assert.True(t, got.DeletedAt.Equal(t0))
}

func TestSoftDeleteExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	past := t0.Add(-time.Second)
	future := t0.Add(time.Hour)

	seedShare(t, s, "a", func(sh *model.FileShare) { sh.ExpiresAt = &past })
	seedShare(t, s, "b", func(sh *model.FileShare) { sh.ExpiresAt = &t0 })
	seedShare(t, s, "c", func(sh *model.FileShare) { sh.ExpiresAt = &future })
	seedShare(t, s, "d", nil)

	pending, err := s.FindExpiredActiveShares(ctx, t0, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	n, err := s.SoftDeleteExpired(ctx, t0)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.SoftDeleteExpired(ctx, t0)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	counts, err := s.CountShares(ctx, t0)
	require.NoError(t, err)
	assert.Equal(t, ShareCounts{Active: 2, ExpiredPending: 0, Deleted: 2}, counts)
}

func TestListSharesByOwner(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedShare(t, s, "a", nil)
	b := seedShare(t, s, "b", func(sh *model.FileShare) { sh.FileID = 2 })
	seedShare(t, s, "c", func(sh *model.FileShare) { sh.OwnerID = 9 })
	_, err := s.SoftDeleteShare(ctx, b.ID, t0)
	require.NoError(t, err)

	shares, total, err := s.ListSharesByOwner(ctx, 1, ShareFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Len(t, shares, 1)

	shares, total, err = s.ListSharesByOwner(ctx, 1, ShareFilter{IncludeDeleted: true, Page: Page{Limit: 1}})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, shares, 1)
	assert.Equal(t, b.ID, shares[0].ID)

	fileID := uint64(2)
	_, total, err = s.ListSharesByOwner(ctx, 1, ShareFilter{FileID: &fileID, IncludeDeleted: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestCreateFileDedupAndPurge(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &model.UserFile{UserID: 1, Name: "a.txt", Size: 3}
	reused, err := s.CreateFile(ctx, first, &model.FileObject{Hash: "h1", BucketName: "b", ObjectName: "o1", Size: 3})
	require.NoError(t, err)
	assert.False(t, reused)

	second := &model.UserFile{UserID: 2, Name: "b.txt", Size: 3}
	obj := &model.FileObject{Hash: "h1", BucketName: "b", ObjectName: "o2", Size: 3}
	reused, err = s.CreateFile(ctx, second, obj)
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, "o1", obj.ObjectName)
	assert.Equal(t, first.ObjectID, second.ObjectID)

	orphan, err := s.PurgeFile(ctx, first.ID)
	require.NoError(t, err)
	assert.Nil(t, orphan)

	orphan, err = s.PurgeFile(ctx, second.ID)
	require.NoError(t, err)
	require.NotNil(t, orphan)
	assert.Equal(t, "o1", orphan.ObjectName)

	_, err = s.FindObjectByHash(ctx, "h1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.PurgeFile(ctx, second.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateFileReusesObjectAfterLostRace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &model.UserFile{UserID: 1, Name: "a.txt", Size: 3}
	_, err := s.CreateFile(ctx, first, &model.FileObject{Hash: "h1", BucketName: "b", ObjectName: "o1", Size: 3})
	require.NoError(t, err)

	// The next hash lookup misses as if the other upload had not committed yet.
	var staleMisses atomic.Int32
	staleMisses.Store(1)
	require.NoError(t, s.DB().Callback().Query().After("gorm:query").Register("test:stale_lookup", func(tx *gorm.DB) {
		if tx.Statement.Table == "file_object" && staleMisses.Add(-1) == 0 {
			tx.Error = gorm.ErrRecordNotFound
		}
	}))

	second := &model.UserFile{UserID: 2, Name: "b.txt", Size: 3}
	obj := &model.FileObject{Hash: "h1", BucketName: "b", ObjectName: "o2", Size: 3}
	reused, err := s.CreateFile(ctx, second, obj)
	require.NoError(t, err)
	assert.True(t, reused)
	assert.Equal(t, first.ObjectID, second.ObjectID)

	stored, err := s.FindObjectByHash(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, 2, stored.RefCount)
}

func TestGormLoggerSkipsMissingRows(t *testing.T) {
	var buf bytes.Buffer
	base := newTestStore(t)
	s := NewStore(base.DB().Session(&gorm.Session{Logger: gormLogger(&buf)}))
	ctx := context.Background()

	_, err := s.GetShareByID(ctx, 999)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.FindObjectByHash(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, buf.String())

	require.Error(t, s.DB().Exec("SELECT * FROM no_such_table").Error)
	assert.Contains(t, buf.String(), "no_such_table")
}

func TestRecycleAndRestore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	file := &model.UserFile{UserID: 1, Name: "report.pdf", Size: 10}
	_, err := s.CreateFile(ctx, file, &model.FileObject{Hash: "h", BucketName: "b", ObjectName: "o", Size: 10})
	require.NoError(t, err)

	n, err := s.MoveToRecycle(ctx, file.ID, t0)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	uid := uint64(1)
	files, total, err := s.ListFiles(ctx, FileFilter{UserID: &uid, Deleted: true})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.True(t, files[0].IsDeleted)

	n, err = s.RestoreFile(ctx, file.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	files, _, err = s.ListFiles(ctx, FileFilter{UserID: &uid, Query: "report"})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Nil(t, files[0].DeletedAt)

	totals, err := s.CountFiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, FileTotals{Files: 1, Bytes: 10}, totals)
}

func TestUserUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	user := &model.User{UserName: "alice", Password: "hash", Email: "a@example.com", Role: model.RoleUser}
	require.NoError(t, s.CreateUser(ctx, user))

	dup := &model.User{UserName: "alice", Password: "hash", Email: "b@example.com", Role: model.RoleUser}
	assert.ErrorIs(t, s.CreateUser(ctx, dup), ErrDuplicateKey)

	require.NoError(t, s.SetUserRole(ctx, user.ID, model.RoleAdmin))
	require.NoError(t, s.SetUserActive(ctx, user.ID, true))
	require.NoError(t, s.AddUsedSpace(ctx, user.ID, 100))
	require.NoError(t, s.AddUsedSpace(ctx, user.ID, -150))
	assert.ErrorIs(t, s.SetUserRole(ctx, 999, model.RoleAdmin), ErrNotFound)

	got, err := s.GetUserByName(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, got.IsAdmin())
	assert.True(t, got.IsActive)
	assert.EqualValues(t, 0, got.UseSpace)
}

func TestPermissionsAndAudit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	uid := uint64(5)
	perm := &model.FilePermission{FileID: 1, UserID: &uid, Level: model.LevelRead, GrantedBy: 1}
	require.NoError(t, s.GrantPermission(ctx, perm))

	perms, err := s.FindPermissions(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, perms, 1)

	n, err := s.RevokePermission(ctx, 2, perm.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
	n, err = s.RevokePermission(ctx, 1, perm.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	require.NoError(t, s.CreateAuditLog(ctx, &model.AuditLog{Event: "share.create", ActorID: &uid}))
	require.NoError(t, s.CreateAuditLog(ctx, &model.AuditLog{Event: "share.delete"}))
	logs, total, err := s.ListAuditLogs(ctx, AuditFilter{Event: "share.create"})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "share.create", logs[0].Event)
}

func TestShareExpireKey(t *testing.T) {
	id, ok := ParseShareExpireKey(ShareExpireKey(42))
	assert.True(t, ok)
	assert.EqualValues(t, 42, id)

	_, ok = ParseShareExpireKey("share:abc")
	assert.False(t, ok)
	_, ok = ParseShareExpireKey("share:expire:x")
	assert.False(t, ok)
}

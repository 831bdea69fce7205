package service

import (
	"PanShare/internal/repo"
	"PanShare/internal/storage"
	"PanShare/model"
	"PanShare/utils"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestMain(m *testing.M) {
	utils.PasswordCost = bcrypt.MinCost
	os.Exit(m.Run())
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	store *repo.Store
	blobs *storage.MemoryStore
	clock *fakeClock
	svc   *Services

	owner *model.User
	other *model.User
	admin *model.User
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, nil)
}

func newTestEnvWith(t *testing.T, mutate func(*Deps)) *testEnv {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := repo.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", name))
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	env := &testEnv{
		store: repo.NewStore(db),
		blobs: storage.NewMemoryStore(),
		clock: &fakeClock{now: t0},
	}
	d := Deps{
		Shares:      env.store,
		Files:       env.store,
		Permissions: env.store,
		Users:       env.store,
		Audits:      env.store,
		Stats:       env.store,
		Blobs:       env.blobs,
		Bucket:      "pan-test",
		Audit:       NewDBAuditLog(env.store),
		Clock:       env.clock.Now,
		BaseURL:     "http://pan.test",
	}
	if mutate != nil {
		mutate(&d)
	}
	env.svc = New(d)

	env.owner = env.createUser(t, "owner", model.RoleUser)
	env.other = env.createUser(t, "other", model.RoleUser)
	env.admin = env.createUser(t, "admin", model.RoleAdmin)
	return env
}

func (e *testEnv) createUser(t *testing.T, name, role string) *model.User {
	t.Helper()
	hash, err := utils.HashPassword("password1")
	require.NoError(t, err)
	u := &model.User{UserName: name, Password: hash, Email: name + "@pan.test", Role: role, IsActive: true}
	require.NoError(t, e.store.CreateUser(context.Background(), u))
	return u
}

func (e *testEnv) upload(t *testing.T, owner *model.User, name, content string) *model.UserFile {
	t.Helper()
	f, err := e.svc.Files.Upload(context.Background(), owner.ID, name, strings.NewReader(content), int64(len(content)))
	require.NoError(t, err)
	return f
}

func (e *testEnv) share(t *testing.T, file *model.UserFile, opts CreateShareOptions) *ShareHandle {
	t.Helper()
	h, err := e.svc.Shares.CreateShare(context.Background(), file.ID, file.UserID, opts)
	require.NoError(t, err)
	return h
}

func (e *testEnv) reload(t *testing.T, shareID uint64) *model.FileShare {
	t.Helper()
	s, err := e.store.GetShareByID(context.Background(), shareID)
	require.NoError(t, err)
	return s
}

func int64p(v int64) *int64 { return &v }

func strp(v string) *string { return &v }

func timep(v time.Time) *time.Time { return &v }

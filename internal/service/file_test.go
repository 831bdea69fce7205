package service

import (
	"PanShare/model"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUploadDeduplicatesContent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := env.upload(t, env.owner, "a.txt", "same bytes")
	b := env.upload(t, env.other, "b.txt", "same bytes")
	assert.Equal(t, a.ObjectID, b.ObjectID)
	assert.Equal(t, a.ContentHash, b.ContentHash)
	assert.Equal(t, 1, env.blobs.Len())

	obj, err := env.store.FindObjectByHash(ctx, a.ContentHash)
	require.NoError(t, err)
	assert.Equal(t, 2, obj.RefCount)
	assert.Equal(t, BuildObjectName(a.ContentHash), obj.ObjectName)

	owner, err := env.store.GetUser(ctx, env.owner.ID)
	require.NoError(t, err)
	assert.Equal(t, uint64(len("same bytes")), owner.UseSpace)

	// The blob survives until its last reference is purged.
	require.NoError(t, env.svc.Files.Purge(ctx, a.ID, env.owner.ID))
	assert.Equal(t, 1, env.blobs.Len())
	require.NoError(t, env.svc.Files.Purge(ctx, b.ID, env.other.ID))
	assert.Equal(t, 0, env.blobs.Len())

	owner, err = env.store.GetUser(ctx, env.owner.ID)
	require.NoError(t, err)
	assert.Zero(t, owner.UseSpace)
}

func TestUploadValidation(t *testing.T) {
	env := newTestEnvWith(t, func(d *Deps) { d.MaxUploadBytes = 4 })
	ctx := context.Background()

	_, err := env.svc.Files.Upload(ctx, env.owner.ID, "big.bin", strings.NewReader("12345"), 5)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = env.svc.Files.Upload(ctx, env.owner.ID, "", strings.NewReader("1"), 1)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	_, err = env.svc.Files.Upload(ctx, env.owner.ID, "short.bin", strings.NewReader("12"), 3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Zero(t, env.blobs.Len())
}

func TestUploadDetectsContentType(t *testing.T) {
	env := newTestEnv(t)
	png := "\x89PNG\r\n\x1a\n" + strings.Repeat("\x00", 16)

	img := env.upload(t, env.owner, "picture", png)
	assert.Equal(t, "image/png", img.MimeType)

	doc := env.upload(t, env.owner, "page.html", "just words")
	assert.Contains(t, doc.MimeType, "text/html")
}

func TestFileOpenAndPermissions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	file := env.upload(t, env.owner, "a.txt", "hello")

	_, err := env.svc.Files.Open(ctx, file.ID, env.other.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)
	assert.ErrorIs(t, env.svc.Files.Rename(ctx, file.ID, env.other.ID, "b.txt"), ErrAccessDenied)

	perm, err := env.svc.Files.Grant(ctx, file.ID, env.owner.ID, GrantOptions{UserID: &env.other.ID, Level: model.LevelRead})
	require.NoError(t, err)

	d, err := env.svc.Files.Open(ctx, file.ID, env.other.ID)
	require.NoError(t, err)
	body, err := io.ReadAll(d.Reader)
	require.NoError(t, err)
	d.Reader.Close()
	assert.Equal(t, "hello", string(body))

	assert.ErrorIs(t, env.svc.Files.Rename(ctx, file.ID, env.other.ID, "b.txt"), ErrAccessDenied)
	assert.ErrorIs(t, env.svc.Files.Recycle(ctx, file.ID, env.other.ID), ErrAccessDenied)
	_, err = env.svc.Files.Permissions(ctx, file.ID, env.other.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)

	perms, err := env.svc.Files.Permissions(ctx, file.ID, env.owner.ID)
	require.NoError(t, err)
	require.Len(t, perms, 1)

	require.NoError(t, env.svc.Files.Revoke(ctx, file.ID, env.owner.ID, perm.ID))
	assert.ErrorIs(t, env.svc.Files.Revoke(ctx, file.ID, env.owner.ID, perm.ID), ErrNotFound)
	_, err = env.svc.Files.Open(ctx, file.ID, env.other.ID)
	assert.ErrorIs(t, err, ErrAccessDenied)

	require.NoError(t, env.svc.Files.Rename(ctx, file.ID, env.owner.ID, "../renamed.txt"))
	got, err := env.svc.Files.Get(ctx, file.ID, env.owner.ID)
	require.NoError(t, err)
	assert.NotContains(t, got.Name, "/")
}

func TestGrantValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	file := env.upload(t, env.owner, "a.txt", "hello")
	role := "guest"
	userRole := model.RoleUser
	missing := uint64(9999)

	tests := []struct {
		name string
		opts GrantOptions
	}{
		{"bad level", GrantOptions{UserID: &env.other.ID, Level: "all"}},
		{"no subject", GrantOptions{Level: model.LevelRead}},
		{"both subjects", GrantOptions{UserID: &env.other.ID, Role: &userRole, Level: model.LevelRead}},
		{"unknown role", GrantOptions{Role: &role, Level: model.LevelRead}},
		{"unknown user", GrantOptions{UserID: &missing, Level: model.LevelRead}},
		{"expired", GrantOptions{UserID: &env.other.ID, Level: model.LevelRead, ExpiresAt: timep(t0)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Files.Grant(ctx, file.ID, env.owner.ID, tt.opts)
			assert.ErrorIs(t, err, ErrInvalidArgument)
		})
	}
}

func TestRecycleBin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	keep := env.upload(t, env.owner, "keep.txt", "keep")
	bin := env.upload(t, env.owner, "bin.txt", "bin")

	require.NoError(t, env.svc.Files.Recycle(ctx, bin.ID, env.owner.ID))
	require.NoError(t, env.svc.Files.Recycle(ctx, bin.ID, env.owner.ID))

	live, err := env.svc.Files.List(ctx, env.owner.ID, FileListOptions{})
	require.NoError(t, err)
	require.Len(t, live.Items, 1)
	assert.Equal(t, keep.ID, live.Items[0].ID)

	recycled, err := env.svc.Files.List(ctx, env.owner.ID, FileListOptions{Deleted: true})
	require.NoError(t, err)
	require.Len(t, recycled.Items, 1)
	assert.Equal(t, bin.ID, recycled.Items[0].ID)

	_, err = env.svc.Files.Get(ctx, bin.ID, env.owner.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, env.svc.Files.Restore(ctx, bin.ID, env.other.ID), ErrAccessDenied)

	require.NoError(t, env.svc.Files.Restore(ctx, bin.ID, env.owner.ID))
	live, err = env.svc.Files.List(ctx, env.owner.ID, FileListOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), live.Total)
}

func TestPresignUnsupportedByMemoryStore(t *testing.T) {
	env := newTestEnv(t)
	file := env.upload(t, env.owner, "a.txt", "hello")
	_, err := env.svc.Files.PresignURL(context.Background(), file.ID, env.owner.ID, 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	var s Store = NewMemoryStore()

	require.NoError(t, s.PutObject(ctx, "b", "k", strings.NewReader("hello"), 5, PutOptions{ContentType: "text/plain"}))

	rc, info, err := s.GetObject(ctx, "b", "k")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))
	assert.EqualValues(t, 5, info.Size)
	assert.Equal(t, "text/plain", info.ContentType)

	require.NoError(t, s.RemoveObject(ctx, "b", "k"))
	_, err = s.StatObject(ctx, "b", "k")
	assert.ErrorIs(t, err, ErrObjectNotFound)

	_, err = s.PresignedGetObject(ctx, "b", "k", 0)
	assert.ErrorIs(t, err, ErrPresignUnsupported)
}

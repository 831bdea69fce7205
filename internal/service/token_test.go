package service

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenGeneratorUnique(t *testing.T) {
	gen := NewTokenGenerator()
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		tok, err := gen.Generate()
		require.NoError(t, err)
		require.Len(t, tok, 32)
		_, err = hex.DecodeString(tok)
		require.NoError(t, err)
		_, dup := seen[tok]
		require.False(t, dup, "duplicate token %s", tok)
		seen[tok] = struct{}{}
	}
	assert.Len(t, seen, 10000)
}

type fixedTokens struct {
	tokens []string
	i      int
}

func (f *fixedTokens) Generate() (string, error) {
	tok := f.tokens[f.i%len(f.tokens)]
	f.i++
	return tok, nil
}

func TestCreateShareRetriesOnCollision(t *testing.T) {
	gen := &fixedTokens{tokens: []string{"aaaa1111", "aaaa1111", "bbbb2222"}}
	env := newTestEnvWith(t, func(d *Deps) { d.Tokens = gen })
	file := env.upload(t, env.owner, "a.txt", "hello")

	first := env.share(t, file, CreateShareOptions{})
	assert.Equal(t, "aaaa1111", first.Token)

	second := env.share(t, file, CreateShareOptions{})
	assert.Equal(t, "bbbb2222", second.Token)
	assert.Equal(t, "http://pan.test/s/bbbb2222", second.URL)
}

func TestCreateShareGivesUpAfterSecondCollision(t *testing.T) {
	gen := &fixedTokens{tokens: []string{"same"}}
	env := newTestEnvWith(t, func(d *Deps) { d.Tokens = gen })
	file := env.upload(t, env.owner, "a.txt", "hello")
	env.share(t, file, CreateShareOptions{})

	_, err := env.svc.Shares.CreateShare(context.Background(), file.ID, env.owner.ID, CreateShareOptions{})
	assert.ErrorIs(t, err, ErrConflict)
}

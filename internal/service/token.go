package service

import (
	"crypto/rand"
	"encoding/hex"
)

// TokenGenerator produces share tokens.
type TokenGenerator interface {
	Generate() (string, error)
}

// RandomTokenGenerator hex-encodes Size bytes from crypto/rand.
type RandomTokenGenerator struct {
	Size int
}

// NewTokenGenerator returns a generator for 128-bit tokens (32 hex chars).
func NewTokenGenerator() *RandomTokenGenerator {
	return &RandomTokenGenerator{Size: 16}
}

func (g *RandomTokenGenerator) Generate() (string, error) {
	size := g.Size
	if size <= 0 {
		size = 16
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

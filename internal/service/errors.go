package service

import (
	"errors"
	"fmt"
)

var (
	ErrAccessDenied    = errors.New("access denied")
	ErrNotFound        = errors.New("not found")
	ErrExpired         = errors.New("share expired")
	ErrLimitExceeded   = errors.New("download limit reached")
	ErrBadPassword     = errors.New("password required or incorrect")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrConflict        = errors.New("conflict")
)

func invalidArgf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

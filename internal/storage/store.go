package storage

import (
	"PanShare/config"
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

var (
	ErrObjectNotFound     = errors.New("object not found")
	ErrPresignUnsupported = errors.New("presigned urls not supported by this store")
)

// PutOptions describes upload options for object storage.
type PutOptions struct {
	ContentType string
}

type ObjectInfo struct {
	ObjectName  string
	Size        int64
	ContentType string
}

// Store abstracts object storage operations.
type Store interface {
	PutObject(ctx context.Context, bucket, object string, reader io.Reader, size int64, opts PutOptions) error
	GetObject(ctx context.Context, bucket, object string) (io.ReadCloser, ObjectInfo, error)
	StatObject(ctx context.Context, bucket, object string) (ObjectInfo, error)
	RemoveObject(ctx context.Context, bucket, object string) error
	PresignedGetObject(ctx context.Context, bucket, object string, expiry time.Duration) (string, error)
}

// New builds the store selected by STORAGE_DRIVER and makes sure the
// bucket exists.
func New(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.StorageDriver {
	case "minio", "":
		store, err := NewMinio(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "s3":
		store, err := NewS3(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}

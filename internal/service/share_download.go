package service

import (
	"PanShare/internal/storage"
	"PanShare/model"
	"context"
	"errors"
	"fmt"
	"io"
)

// SharedDownload is an opened share ready to stream. The caller closes Reader.
type SharedDownload struct {
	Share       *model.FileShare
	File        *model.UserFile
	Reader      io.ReadCloser
	Size        int64
	ContentType string
}

// ShareDownloader is the public surface behind a share link: validate,
// count, then open the blob.
type ShareDownloader struct {
	validator  *AccessValidator
	accountant *DownloadAccountant
	blobs      storage.Store
	audit      AuditLog
}

func NewShareDownloader(validator *AccessValidator, accountant *DownloadAccountant, blobs storage.Store, audit AuditLog) *ShareDownloader {
	return &ShareDownloader{validator: validator, accountant: accountant, blobs: blobs, audit: audit}
}

// Preview validates a token without counting a download.
func (d *ShareDownloader) Preview(ctx context.Context, token string, password *string) (*ValidationResult, error) {
	return d.validator.Validate(ctx, token, password)
}

// Open validates token, records one download and opens the file content.
func (d *ShareDownloader) Open(ctx context.Context, token string, password *string) (*SharedDownload, error) {
	res, err := d.validator.Validate(ctx, token, password)
	if err != nil {
		return nil, err
	}
	return d.open(ctx, res, "attachment")
}

// OpenInline is Open for in-browser viewing. Shares without allow_preview
// refuse with ErrAccessDenied before anything is counted.
func (d *ShareDownloader) OpenInline(ctx context.Context, token string, password *string) (*SharedDownload, error) {
	res, err := d.validator.Validate(ctx, token, password)
	if err != nil {
		return nil, err
	}
	if !res.Share.AllowPreview {
		return nil, ErrAccessDenied
	}
	return d.open(ctx, res, "inline")
}

func (d *ShareDownloader) open(ctx context.Context, res *ValidationResult, mode string) (*SharedDownload, error) {
	if err := d.accountant.RecordDownload(ctx, res.Share.ID); err != nil {
		return nil, err
	}

	obj := res.File.Object
	rc, info, err := d.blobs.GetObject(ctx, obj.BucketName, obj.ObjectName)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open shared object: %w", err)
	}

	contentType := res.File.MimeType
	if contentType == "" {
		contentType = info.ContentType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	record(ctx, d.audit, d.validator.now, Event{
		Name:       EventShareDownload,
		TargetType: "share",
		TargetID:   res.Share.ID,
		Metadata:   map[string]any{"file_id": res.File.ID, "mode": mode},
	})
	return &SharedDownload{
		Share:       res.Share,
		File:        res.File,
		Reader:      rc,
		Size:        info.Size,
		ContentType: contentType,
	}, nil
}

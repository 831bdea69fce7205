package service

import (
	"PanShare/internal/repo"
	"PanShare/internal/storage"
	"PanShare/model"
	"PanShare/utils"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

type FileListOptions struct {
	Query     string
	OrderBy   string
	OrderDesc bool
	Deleted   bool
	Page      int
	PageSize  int
}

type FilePage struct {
	Items []model.UserFile `json:"items"`
	Total int64            `json:"total"`
}

type GrantOptions struct {
	UserID    *uint64
	Role      *string
	Level     string
	ExpiresAt *time.Time
}

// FileDownload is an opened file owned or readable by the caller.
type FileDownload struct {
	File        *model.UserFile
	Reader      io.ReadCloser
	Size        int64
	ContentType string
}

// FileService handles uploads, the recycle bin and per-file grants.
type FileService struct {
	files     FileRepository
	perms     PermissionRepository
	users     UserRepository
	gate      *AccessGate
	blobs     storage.Store
	bucket    string
	audit     AuditLog
	now       Clock
	maxUpload int64
}

func NewFileService(files FileRepository, perms PermissionRepository, users UserRepository, gate *AccessGate,
	blobs storage.Store, bucket string, audit AuditLog, clock Clock, maxUpload int64) *FileService {
	return &FileService{
		files:     files,
		perms:     perms,
		users:     users,
		gate:      gate,
		blobs:     blobs,
		bucket:    bucket,
		audit:     audit,
		now:       clock,
		maxUpload: maxUpload,
	}
}

// BuildObjectName is the blob key for a content hash.
func BuildObjectName(hash string) string {
	return fmt.Sprintf("files/%s/%s", hash[:2], hash)
}

// GetContentBook returns content type by file extension.
func GetContentBook(filename string) string {
	if ct := mime.TypeByExtension(strings.ToLower(path.Ext(filename))); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// detectContentType sniffs the first bytes of r, falling back to the
// extension when the content is generic.
func detectContentType(r io.Reader, name string) string {
	mt, err := mimetype.DetectReader(r)
	if err != nil || mt.Is("application/octet-stream") || mt.Is("text/plain") {
		if byExt := GetContentBook(name); byExt != "application/octet-stream" {
			return byExt
		}
	}
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}

// Upload stores content for userID. Identical content is stored once and
// shared between files through the blob's reference count.
func (s *FileService) Upload(ctx context.Context, userID uint64, name string, content io.ReadSeeker, size int64) (*model.UserFile, error) {
	name = utils.SanitizeFilename(name)
	if name == "" {
		return nil, invalidArgf("file name is required")
	}
	if size < 0 {
		return nil, invalidArgf("invalid size")
	}
	if s.maxUpload > 0 && size > s.maxUpload {
		return nil, invalidArgf("file exceeds %d bytes", s.maxUpload)
	}

	h := sha256.New()
	n, err := io.Copy(h, content)
	if err != nil {
		return nil, fmt.Errorf("hash upload: %w", err)
	}
	if n != size {
		return nil, invalidArgf("size mismatch: declared %d, read %d", size, n)
	}
	hash := hex.EncodeToString(h.Sum(nil))

	if _, err := content.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	contentType := detectContentType(content, name)

	obj := &model.FileObject{
		Hash:       hash,
		BucketName: s.bucket,
		ObjectName: BuildObjectName(hash),
		Size:       size,
		MimeType:   contentType,
	}
	existing, err := s.files.FindObjectByHash(ctx, hash)
	switch {
	case err == nil:
		// Same content already stored; only a new reference is needed.
		obj = existing
	case errors.Is(err, repo.ErrNotFound):
		if _, err := content.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		if err := s.blobs.PutObject(ctx, obj.BucketName, obj.ObjectName, content, size, storage.PutOptions{ContentType: contentType}); err != nil {
			return nil, fmt.Errorf("store object: %w", err)
		}
	default:
		return nil, err
	}

	file := &model.UserFile{
		UserID:      userID,
		Name:        name,
		Size:        size,
		MimeType:    contentType,
		ContentHash: hash,
	}
	if _, err := s.files.CreateFile(ctx, file, obj); err != nil {
		return nil, err
	}
	if err := s.users.AddUsedSpace(ctx, userID, size); err != nil {
		slog.Warn("update used space failed", "user_id", userID, "error", err)
	}

	record(ctx, s.audit, s.now, Event{
		Name:       EventFileUpload,
		ActorID:    actor(userID),
		TargetType: "file",
		TargetID:   file.ID,
		Metadata:   map[string]any{"size": size, "hash": hash},
	})
	return file, nil
}

// List returns the caller's files, or their recycle bin when Deleted is set.
func (s *FileService) List(ctx context.Context, userID uint64, opts FileListOptions) (*FilePage, error) {
	return s.list(ctx, &userID, opts)
}

func (s *FileService) list(ctx context.Context, userID *uint64, opts FileListOptions) (*FilePage, error) {
	files, total, err := s.files.ListFiles(ctx, repo.FileFilter{
		UserID:    userID,
		Deleted:   opts.Deleted,
		Query:     opts.Query,
		OrderBy:   opts.OrderBy,
		OrderDesc: opts.OrderDesc,
		Page:      pageWindow(opts.Page, opts.PageSize),
	})
	if err != nil {
		return nil, err
	}
	return &FilePage{Items: files, Total: total}, nil
}

// authorize loads fileID and checks level for userID.
func (s *FileService) authorize(ctx context.Context, fileID, userID uint64, level string) (*model.UserFile, error) {
	file, err := s.files.GetFile(ctx, fileID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if file.IsDeleted {
		return nil, ErrNotFound
	}
	ok, err := s.gate.CanAccess(ctx, fileID, userID, level)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccessDenied
	}
	return file, nil
}

// authorizeManage loads fileID, recycled or not, for an owner or admin.
func (s *FileService) authorizeManage(ctx context.Context, fileID, userID uint64) (*model.UserFile, error) {
	file, err := s.files.GetFile(ctx, fileID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ok, err := s.gate.CanManageFile(ctx, file, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccessDenied
	}
	return file, nil
}

func (s *FileService) Get(ctx context.Context, fileID, userID uint64) (*model.UserFile, error) {
	return s.authorize(ctx, fileID, userID, model.LevelRead)
}

// Open streams a file the caller can read.
func (s *FileService) Open(ctx context.Context, fileID, userID uint64) (*FileDownload, error) {
	if _, err := s.authorize(ctx, fileID, userID, model.LevelRead); err != nil {
		return nil, err
	}
	file, err := s.files.GetFileWithObject(ctx, fileID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rc, info, err := s.blobs.GetObject(ctx, file.Object.BucketName, file.Object.ObjectName)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	contentType := file.MimeType
	if contentType == "" {
		contentType = GetContentBook(file.Name)
	}
	return &FileDownload{File: file, Reader: rc, Size: info.Size, ContentType: contentType}, nil
}

// PresignURL returns a time-limited direct link when the store supports it.
func (s *FileService) PresignURL(ctx context.Context, fileID, userID uint64, expiry time.Duration) (string, error) {
	if _, err := s.authorize(ctx, fileID, userID, model.LevelRead); err != nil {
		return "", err
	}
	file, err := s.files.GetFileWithObject(ctx, fileID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	url, err := s.blobs.PresignedGetObject(ctx, file.Object.BucketName, file.Object.ObjectName, expiry)
	if errors.Is(err, storage.ErrPresignUnsupported) {
		return "", invalidArgf("direct links are not available")
	}
	return url, err
}

// Rename changes a file's display name; requires write access.
func (s *FileService) Rename(ctx context.Context, fileID, userID uint64, name string) error {
	name = utils.SanitizeFilename(name)
	if name == "" {
		return invalidArgf("file name is required")
	}
	if _, err := s.authorize(ctx, fileID, userID, model.LevelWrite); err != nil {
		return err
	}
	if err := s.files.RenameFile(ctx, fileID, name); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// Recycle moves a file to the recycle bin. Its shares stop resolving.
func (s *FileService) Recycle(ctx context.Context, fileID, userID uint64) error {
	file, err := s.authorizeManage(ctx, fileID, userID)
	if err != nil {
		return err
	}
	if file.IsDeleted {
		return nil
	}
	if _, err := s.files.MoveToRecycle(ctx, fileID, s.now()); err != nil {
		return err
	}
	record(ctx, s.audit, s.now, Event{Name: EventFileRecycle, ActorID: actor(userID), TargetType: "file", TargetID: fileID})
	return nil
}

func (s *FileService) Restore(ctx context.Context, fileID, userID uint64) error {
	file, err := s.authorizeManage(ctx, fileID, userID)
	if err != nil {
		return err
	}
	if !file.IsDeleted {
		return nil
	}
	if _, err := s.files.RestoreFile(ctx, fileID); err != nil {
		return err
	}
	record(ctx, s.audit, s.now, Event{Name: EventFileRestore, ActorID: actor(userID), TargetType: "file", TargetID: fileID})
	return nil
}

// Purge hard-deletes a file. The blob goes when its last reference does;
// shares of the file keep their rows and resolve as not found.
func (s *FileService) Purge(ctx context.Context, fileID, userID uint64) error {
	file, err := s.authorizeManage(ctx, fileID, userID)
	if err != nil {
		return err
	}
	orphan, err := s.files.PurgeFile(ctx, fileID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if orphan != nil {
		if err := s.blobs.RemoveObject(ctx, orphan.BucketName, orphan.ObjectName); err != nil {
			slog.Warn("remove orphan object failed", "object", orphan.ObjectName, "error", err)
		}
	}
	if err := s.users.AddUsedSpace(ctx, file.UserID, -file.Size); err != nil {
		slog.Warn("update used space failed", "user_id", file.UserID, "error", err)
	}
	record(ctx, s.audit, s.now, Event{Name: EventFilePurge, ActorID: actor(userID), TargetType: "file", TargetID: fileID})
	return nil
}

// Grant gives a user or a role access to a file. Requires owner level.
func (s *FileService) Grant(ctx context.Context, fileID, requesterID uint64, opts GrantOptions) (*model.FilePermission, error) {
	if model.LevelRank(opts.Level) == 0 {
		return nil, invalidArgf("unknown permission level %q", opts.Level)
	}
	if (opts.UserID == nil) == (opts.Role == nil) {
		return nil, invalidArgf("exactly one of user_id or role is required")
	}
	if opts.Role != nil && *opts.Role != model.RoleUser && *opts.Role != model.RoleAdmin {
		return nil, invalidArgf("unknown role %q", *opts.Role)
	}
	if opts.ExpiresAt != nil && !opts.ExpiresAt.After(s.now()) {
		return nil, invalidArgf("expires_at must be in the future")
	}
	if _, err := s.authorize(ctx, fileID, requesterID, model.LevelOwner); err != nil {
		return nil, err
	}
	if opts.UserID != nil {
		if _, err := s.users.GetUser(ctx, *opts.UserID); err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return nil, invalidArgf("unknown user %d", *opts.UserID)
			}
			return nil, err
		}
	}

	perm := &model.FilePermission{
		FileID:    fileID,
		UserID:    opts.UserID,
		Role:      opts.Role,
		Level:     opts.Level,
		ExpiresAt: opts.ExpiresAt,
		GrantedBy: requesterID,
	}
	if err := s.perms.GrantPermission(ctx, perm); err != nil {
		return nil, err
	}
	record(ctx, s.audit, s.now, Event{
		Name:       EventFileGrant,
		ActorID:    actor(requesterID),
		TargetType: "file",
		TargetID:   fileID,
		Metadata:   map[string]any{"permission_id": perm.ID, "level": perm.Level},
	})
	return perm, nil
}

func (s *FileService) Revoke(ctx context.Context, fileID, requesterID, permID uint64) error {
	if _, err := s.authorize(ctx, fileID, requesterID, model.LevelOwner); err != nil {
		return err
	}
	n, err := s.perms.RevokePermission(ctx, fileID, permID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	record(ctx, s.audit, s.now, Event{
		Name:       EventFileRevoke,
		ActorID:    actor(requesterID),
		TargetType: "file",
		TargetID:   fileID,
		Metadata:   map[string]any{"permission_id": permID},
	})
	return nil
}

func (s *FileService) Permissions(ctx context.Context, fileID, requesterID uint64) ([]model.FilePermission, error) {
	if _, err := s.authorize(ctx, fileID, requesterID, model.LevelOwner); err != nil {
		return nil, err
	}
	return s.perms.FindPermissions(ctx, fileID)
}

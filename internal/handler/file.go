package handler

import (
	"PanShare/internal/dto"
	"PanShare/internal/service"
	"PanShare/utils"
	"fmt"
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const maxURLExpiry = 24 * time.Hour

// UploadFile stores the multipart "file" field for the caller.
func (h *Handler) UploadFile(c *gin.Context) {
	fh, err := c.FormFile("file")
	if err != nil {
		utils.FailWithStatus(c, http.StatusBadRequest, "file is required")
		return
	}
	name := c.PostForm("name")
	if name == "" {
		name = fh.Filename
	}
	f, err := fh.Open()
	if err != nil {
		failErr(c, err)
		return
	}
	defer f.Close()

	file, err := h.svc.Files.Upload(reqCtx(c), utils.CurrentUserID(c), name, f, fh.Size)
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, file)
}

func (h *Handler) listFiles(c *gin.Context, deleted bool) {
	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.Fail(c, err)
		return
	}
	page, err := h.svc.Files.List(reqCtx(c), utils.CurrentUserID(c), service.FileListOptions{
		Query:     q.Query,
		OrderBy:   q.OrderBy,
		OrderDesc: q.OrderDesc,
		Deleted:   deleted,
		Page:      q.Page,
		PageSize:  q.PageSize,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, page)
}

// ListFiles lists the caller's live files.
func (h *Handler) ListFiles(c *gin.Context) { h.listFiles(c, false) }

// ListRecycleFiles lists the caller's recycle bin.
func (h *Handler) ListRecycleFiles(c *gin.Context) { h.listFiles(c, true) }

func (h *Handler) GetFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	file, err := h.svc.Files.Get(reqCtx(c), id, utils.CurrentUserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, file)
}

// DownloadFile streams a file the caller can read.
func (h *Handler) DownloadFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	d, err := h.svc.Files.Open(reqCtx(c), id, utils.CurrentUserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	defer d.Reader.Close()
	stream(c, "attachment", d.File.Name, d.ContentType, d.Size, d.Reader)
}

// FileURL returns a presigned direct link when the store supports one.
func (h *Handler) FileURL(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var q dto.FileURLRequest
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.Fail(c, err)
		return
	}
	expiry := time.Duration(q.ExpiresIn) * time.Second
	if expiry <= 0 || expiry > maxURLExpiry {
		expiry = 15 * time.Minute
	}
	url, err := h.svc.Files.PresignURL(reqCtx(c), id, utils.CurrentUserID(c), expiry)
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, dto.FileURLResponse{URL: url, ExpiresAt: time.Now().Add(expiry).UTC()})
}

func (h *Handler) RenameFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.FileRenameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, err)
		return
	}
	if err := h.svc.Files.Rename(reqCtx(c), id, utils.CurrentUserID(c), req.NewName); err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, nil)
}

// RecycleFile moves a file to the recycle bin.
func (h *Handler) RecycleFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Files.Recycle(reqCtx(c), id, utils.CurrentUserID(c)); err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, nil)
}

func (h *Handler) RestoreFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Files.Restore(reqCtx(c), id, utils.CurrentUserID(c)); err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, nil)
}

// PurgeFile deletes a file for good.
func (h *Handler) PurgeFile(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Files.Purge(reqCtx(c), id, utils.CurrentUserID(c)); err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, nil)
}

func (h *Handler) ListPermissions(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	perms, err := h.svc.Files.Permissions(reqCtx(c), id, utils.CurrentUserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, perms)
}

func (h *Handler) GrantPermission(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.GrantPermissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, err)
		return
	}
	perm, err := h.svc.Files.Grant(reqCtx(c), id, utils.CurrentUserID(c), service.GrantOptions{
		UserID:    req.UserID,
		Role:      req.Role,
		Level:     req.Level,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, perm)
}

func (h *Handler) RevokePermission(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	permID, ok := paramID(c, "permID")
	if !ok {
		return
	}
	if err := h.svc.Files.Revoke(reqCtx(c), id, utils.CurrentUserID(c), permID); err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, nil)
}

// inlineTypes may render in the browser. Anything else, including HTML
// and SVG, is served inline as opaque bytes.
var inlineTypes = map[string]bool{
	"text/plain":      true,
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
	"audio/mpeg":      true,
	"audio/ogg":       true,
	"video/mp4":       true,
	"video/webm":      true,
}

func inlineContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil || !inlineTypes[mediaType] {
		return "application/octet-stream"
	}
	return contentType
}

// stream writes content with download headers.
func stream(c *gin.Context, disposition, name, contentType string, size int64, r io.Reader) {
	safeName := utils.SanitizeHeaderFilename(name)
	headers := map[string]string{
		"Content-Disposition":    fmt.Sprintf(`%s; filename="%s"`, disposition, safeName),
		"X-Content-Type-Options": "nosniff",
	}
	if disposition == "inline" {
		contentType = inlineContentType(contentType)
		headers["Content-Security-Policy"] = "sandbox"
	}
	c.DataFromReader(http.StatusOK, size, contentType, r, headers)
}

package handler

import (
	"PanShare/internal/dto"
	"PanShare/utils"
	"net/http"

	"github.com/gin-gonic/gin"
)

const sharePasswordHeader = "X-Share-Password"

// sharePassword reads the share password from the header, the query
// string or, for POST, the JSON or form body. nil means none was sent.
func sharePassword(c *gin.Context) *string {
	if v := c.GetHeader(sharePasswordHeader); v != "" {
		return &v
	}
	if v, ok := c.GetQuery("password"); ok {
		return &v
	}
	if c.Request.Method == http.MethodPost {
		if v, ok := c.GetPostForm("password"); ok {
			return &v
		}
		var req dto.SharePasswordRequest
		if err := c.ShouldBindJSON(&req); err == nil && req.Password != "" {
			return &req.Password
		}
	}
	return nil
}

// ShareInfo shows what a link points to without counting a download.
func (h *Handler) ShareInfo(c *gin.Context) {
	res, err := h.svc.Downloads.Preview(reqCtx(c), c.Param("token"), sharePassword(c))
	if err != nil {
		failPublic(c, err)
		return
	}
	var remaining *int64
	if limit := res.Share.DownloadLimit; limit != nil {
		left := *limit - res.Share.DownloadCount
		remaining = &left
	}
	utils.Success(c, dto.PublicShareResponse{
		FileName:           res.File.Name,
		Size:               res.File.Size,
		MimeType:           res.File.MimeType,
		ExpiresAt:          res.Share.ExpiresAt,
		RemainingDownloads: remaining,
		AllowPreview:       res.Share.AllowPreview,
	})
}

// ShareDownload counts one download and streams the file.
func (h *Handler) ShareDownload(c *gin.Context) {
	d, err := h.svc.Downloads.Open(reqCtx(c), c.Param("token"), sharePassword(c))
	if err != nil {
		failPublic(c, err)
		return
	}
	defer d.Reader.Close()
	stream(c, "attachment", d.File.Name, d.ContentType, d.Size, d.Reader)
}

// SharePreview streams the file inline when the owner allowed previews.
func (h *Handler) SharePreview(c *gin.Context) {
	d, err := h.svc.Downloads.OpenInline(reqCtx(c), c.Param("token"), sharePassword(c))
	if err != nil {
		failPublic(c, err)
		return
	}
	defer d.Reader.Close()
	stream(c, "inline", d.File.Name, d.ContentType, d.Size, d.Reader)
}

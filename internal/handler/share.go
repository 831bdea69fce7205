package handler

import (
	"PanShare/internal/dto"
	"PanShare/internal/service"
	"PanShare/utils"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// CreateShare creates a share link.
func (h *Handler) CreateShare(c *gin.Context) {
	var req dto.CreateShareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, err)
		return
	}
	expiresAt := req.ExpiresAt
	if expiresAt == nil && req.ExpireDays > 0 {
		t := time.Now().UTC().Add(time.Duration(req.ExpireDays) * 24 * time.Hour)
		expiresAt = &t
	}
	handle, err := h.svc.Shares.CreateShare(reqCtx(c), req.FileID, utils.CurrentUserID(c), service.CreateShareOptions{
		ExpiresAt:     expiresAt,
		Password:      req.Password,
		DownloadLimit: req.DownloadLimit,
		AllowPreview:  req.AllowPreview,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	s := handle.Share
	utils.Success(c, dto.CreateShareResponse{
		ID:            s.ID,
		Token:         handle.Token,
		URL:           handle.URL,
		ExpiresAt:     s.ExpiresAt,
		DownloadLimit: s.DownloadLimit,
		AllowPreview:  s.AllowPreview,
		HasPassword:   s.HasPassword(),
	})
}

func (h *Handler) ListShares(c *gin.Context) {
	var q dto.ListSharesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.Fail(c, err)
		return
	}
	page, err := h.svc.Shares.ListShares(reqCtx(c), utils.CurrentUserID(c), service.ListSharesOptions{
		FileID:         q.FileID,
		IncludeDeleted: q.IncludeDeleted,
		Page:           q.Page,
		PageSize:       q.PageSize,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, page)
}

func (h *Handler) GetShare(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	view, err := h.svc.Shares.GetShare(reqCtx(c), id, utils.CurrentUserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, view)
}

// UpdateShare applies a partial update. Only expires_at, download_limit,
// allow_preview and password are accepted; null clears a field.
func (h *Handler) UpdateShare(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var raw map[string]json.RawMessage
	if err := c.ShouldBindJSON(&raw); err != nil {
		utils.FailWithStatus(c, http.StatusBadRequest, "body must be a JSON object")
		return
	}
	update, err := service.ParseShareUpdate(raw)
	if err != nil {
		failErr(c, err)
		return
	}
	if err := h.svc.Shares.UpdateShare(reqCtx(c), id, utils.CurrentUserID(c), update); err != nil {
		failErr(c, err)
		return
	}
	view, err := h.svc.Shares.GetShare(reqCtx(c), id, utils.CurrentUserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, view)
}

func (h *Handler) DeleteShare(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Shares.DeleteShare(reqCtx(c), id, utils.CurrentUserID(c)); err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, nil)
}

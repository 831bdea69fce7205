package handler

import (
	"PanShare/internal/dto"
	"PanShare/internal/service"
	"PanShare/model"
	"PanShare/utils"

	"github.com/gin-gonic/gin"
)

func (h *Handler) AdminListUsers(c *gin.Context) {
	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.Fail(c, err)
		return
	}
	page, err := h.svc.Admin.ListUsers(reqCtx(c), utils.CurrentUserID(c), q.Page, q.PageSize)
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, page)
}

func (h *Handler) AdminCreateUser(c *gin.Context) {
	var req dto.AdminCreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, err)
		return
	}
	role := req.Role
	if role == "" {
		role = model.RoleUser
	}
	user, err := h.svc.Admin.CreateUser(reqCtx(c), utils.CurrentUserID(c), service.RegisterInput{
		UserName: req.Username,
		Password: req.Password,
		Email:    req.Email,
	}, role)
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, user)
}

func (h *Handler) AdminSetRole(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.SetRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, err)
		return
	}
	if err := h.svc.Admin.SetRole(reqCtx(c), utils.CurrentUserID(c), id, req.Role); err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, nil)
}

func (h *Handler) AdminSetActive(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req dto.SetActiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, err)
		return
	}
	if err := h.svc.Admin.SetActive(reqCtx(c), utils.CurrentUserID(c), id, *req.Active); err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, nil)
}

// AdminListFiles lists files of every user.
func (h *Handler) AdminListFiles(c *gin.Context) {
	var q dto.ListQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.Fail(c, err)
		return
	}
	page, err := h.svc.Admin.ListFiles(reqCtx(c), utils.CurrentUserID(c), service.FileListOptions{
		Query:     q.Query,
		OrderBy:   q.OrderBy,
		OrderDesc: q.OrderDesc,
		Page:      q.Page,
		PageSize:  q.PageSize,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, page)
}

func (h *Handler) AdminListLogs(c *gin.Context) {
	var q dto.AuditLogQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.Fail(c, err)
		return
	}
	page, err := h.svc.Admin.ListLogs(reqCtx(c), utils.CurrentUserID(c), service.AuditListOptions{
		Event:    q.Event,
		ActorID:  q.ActorID,
		Page:     q.Page,
		PageSize: q.PageSize,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, page)
}

func (h *Handler) AdminStats(c *gin.Context) {
	st, err := h.svc.Admin.Stats(reqCtx(c), utils.CurrentUserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, st)
}

// AdminExpiredShares lists shares waiting for the next sweep.
func (h *Handler) AdminExpiredShares(c *gin.Context) {
	var q dto.ExpiredSharesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.Fail(c, err)
		return
	}
	views, err := h.svc.Admin.ExpiredShares(reqCtx(c), utils.CurrentUserID(c), q.Limit)
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, views)
}

// AdminSweep deactivates expired shares now.
func (h *Handler) AdminSweep(c *gin.Context) {
	n, err := h.svc.Admin.Sweep(reqCtx(c), utils.CurrentUserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, dto.SweepResponse{Swept: n})
}

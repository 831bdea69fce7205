package handler

import (
	"PanShare/internal/dto"
	"PanShare/internal/service"
	"PanShare/utils"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Register creates an account, sending an activation mail when required.
func (h *Handler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, err)
		return
	}
	if req.FirstPassword != req.LastPassword {
		utils.FailWithStatus(c, http.StatusBadRequest, "passwords do not match")
		return
	}
	user, err := h.svc.Users.Register(reqCtx(c), service.RegisterInput{
		UserName: req.Username,
		Password: req.FirstPassword,
		Email:    req.Email,
	})
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, user)
}

// Activate activates a user account.
func (h *Handler) Activate(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		utils.FailWithStatus(c, http.StatusBadRequest, "token missing")
		return
	}
	if err := h.svc.Users.Activate(reqCtx(c), token); err != nil {
		if statusOf(err) == http.StatusNotFound {
			utils.FailWithStatus(c, http.StatusBadRequest, "link invalid or expired")
			return
		}
		failErr(c, err)
		return
	}
	utils.Success(c, gin.H{"msg": "account activated"})
}

// Login authenticates a user and returns a token.
func (h *Handler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, err)
		return
	}
	user, err := h.svc.Users.Authenticate(reqCtx(c), req.Username, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	token, err := h.tokens.GenerateToken(user.ID, user.UserName, user.Role)
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, dto.LoginResponse{Token: token, User: user})
}

func (h *Handler) Me(c *gin.Context) {
	user, err := h.svc.Users.Me(reqCtx(c), utils.CurrentUserID(c))
	if err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, user)
}

func (h *Handler) ChangePassword(c *gin.Context) {
	var req dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.Fail(c, err)
		return
	}
	if err := h.svc.Users.ChangePassword(reqCtx(c), utils.CurrentUserID(c), req.OldPassword, req.NewPassword); err != nil {
		failErr(c, err)
		return
	}
	utils.Success(c, nil)
}

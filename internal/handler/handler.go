package handler

import (
	"PanShare/internal/service"
	"PanShare/utils"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping() error
}

// Handler serves the HTTP API on top of the service layer.
type Handler struct {
	svc    *service.Services
	tokens *utils.TokenIssuer
	db     Pinger
}

func New(svc *service.Services, tokens *utils.TokenIssuer, db Pinger) *Handler {
	return &Handler{svc: svc, tokens: tokens, db: db}
}

const (
	msgLinkGone    = "link is no longer valid"
	msgLinkUnknown = "share not found"
)

// statusOf maps a service error to its HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrBadPassword):
		return http.StatusUnauthorized
	case errors.Is(err, service.ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, service.ErrExpired), errors.Is(err, service.ErrLimitExceeded):
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

// failErr writes err with its mapped status. Internal errors are logged
// and hidden from the client.
func failErr(c *gin.Context, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
		utils.FailWithStatus(c, status, "internal error")
		return
	}
	utils.FailWithStatus(c, status, err.Error())
}

// failPublic is failErr for anonymous share routes: expiry and exhausted
// limits read the same, and nothing about the share leaks.
func failPublic(c *gin.Context, err error) {
	status := statusOf(err)
	switch status {
	case http.StatusGone:
		utils.FailWithStatus(c, status, msgLinkGone)
	case http.StatusNotFound:
		utils.FailWithStatus(c, status, msgLinkUnknown)
	case http.StatusUnauthorized:
		utils.FailWithStatus(c, status, service.ErrBadPassword.Error())
	case http.StatusForbidden:
		utils.FailWithStatus(c, status, "preview disabled")
	default:
		failErr(c, err)
	}
}

// reqCtx is the request context tagged with the client address.
func reqCtx(c *gin.Context) context.Context {
	return service.WithClientIP(c.Request.Context(), c.ClientIP())
}

func paramID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.FailWithStatus(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// Healthz reports process and database health.
func (h *Handler) Healthz(c *gin.Context) {
	if h.db != nil {
		if err := h.db.Ping(); err != nil {
			utils.FailWithStatus(c, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	utils.Success(c, gin.H{"status": "ok"})
}

package main

import (
	"PanShare/config"
	"PanShare/internal/app"
	"PanShare/internal/handler"
	"PanShare/internal/logging"
	"PanShare/router"
	"PanShare/utils"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
)

// main initializes services and starts the HTTP server.
func main() {
	config.InitConfig()
	cfg := config.AppConfig
	logging.Setup(cfg.LogLevel, cfg.LogFormat)
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	a.RunBackground(ctx)

	tokens := utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	limiter := utils.NewIPRateLimiter(cfg.ShareRate, cfg.ShareBurst)
	h := handler.New(a.Services, tokens, a.Store)

	srv := &http.Server{
		Addr:              cfg.AppAddr,
		Handler:           router.InitRouter(h, tokens, limiter, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("http server listening", "addr", cfg.AppAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", "error", err)
	}
	slog.Info("server stopped")
}

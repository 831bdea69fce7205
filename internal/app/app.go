package app

import (
	"PanShare/config"
	"PanShare/internal/mq"
	"PanShare/internal/repo"
	"PanShare/internal/service"
	"PanShare/internal/storage"
	"PanShare/internal/worker"
	"PanShare/utils"
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// App holds the wired dependencies shared by the API server and the worker.
type App struct {
	Config   config.Config
	DB       *gorm.DB
	Store    *repo.Store
	Redis    *redis.Client
	Blobs    storage.Store
	Services *service.Services
	Sweeper  *worker.Sweeper

	closers []func()
}

// New connects every backing service named by cfg. Redis is optional:
// without it activation mail, expiry notifications and the sweep lock
// are disabled.
func New(ctx context.Context, cfg config.Config) (*App, error) {
	db, err := repo.Open(cfg)
	if err != nil {
		return nil, err
	}
	a := &App{Config: cfg, DB: db, Store: repo.NewStore(db)}
	a.closers = append(a.closers, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	if rdb, err := repo.NewRedis(ctx, cfg); err != nil {
		slog.Warn("redis unavailable, continuing without it", "error", err)
	} else {
		a.Redis = rdb
		a.closers = append(a.closers, func() { _ = rdb.Close() })
	}

	if a.Blobs, err = storage.New(ctx, cfg); err != nil {
		a.Close()
		return nil, err
	}

	d := service.Deps{
		Shares:             a.Store,
		Files:              a.Store,
		Permissions:        a.Store,
		Users:              a.Store,
		Audits:             a.Store,
		Stats:              a.Store,
		Blobs:              a.Blobs,
		Bucket:             cfg.BucketName,
		Audit:              a.auditLog(),
		BaseURL:            cfg.BaseURL,
		ActivationRequired: cfg.ActivationRequired,
		ActivationTTL:      cfg.ActivationTTL,
		MaxUploadBytes:     cfg.MaxUploadBytes,
	}
	mailer := &utils.SMTPMailer{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		User:     cfg.SMTPUser,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	}
	if mailer.Configured() {
		d.Mailer = mailer
	}
	if a.Redis != nil {
		d.Activations = repo.NewActivationStore(a.Redis)
		d.Notifier = repo.NewShareExpiryNotifier(a.Redis)
	}
	if cfg.ActivationRequired && (d.Activations == nil || d.Mailer == nil) {
		slog.Warn("activation required but redis or smtp is missing; new accounts cannot be activated")
	}
	a.Services = service.New(d)

	if a.Redis != nil {
		a.Sweeper = worker.NewRedisSweeper(a.Services.Shares, a.Redis, cfg.SweepInterval)
	} else {
		a.Sweeper = worker.NewSweeper(a.Services.Shares, nil, cfg.SweepInterval)
	}
	return a, nil
}

func (a *App) auditLog() service.AuditLog {
	direct := service.NewDBAuditLog(a.Store)
	if a.Config.AuditDriver != "mq" {
		return direct
	}
	pub := mq.NewAuditPublisher(a.Config.RabbitMQURL, direct)
	a.closers = append(a.closers, pub.Close)
	return pub
}

// RunBackground starts the periodic sweeper and, with Redis, the expiry
// listener. Both stop with ctx.
func (a *App) RunBackground(ctx context.Context) {
	go a.Sweeper.Run(ctx)
	if a.Redis == nil {
		return
	}
	go func() {
		if err := worker.RunExpiryListener(ctx, a.Redis, a.Sweeper); err != nil {
			slog.Warn("share expiry listener stopped", "error", err)
		}
	}()
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

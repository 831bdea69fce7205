package main

import (
	"PanShare/config"
	"PanShare/internal/app"
	"PanShare/internal/logging"
	"PanShare/internal/mq"
	"PanShare/internal/worker"
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	config.InitConfig()
	cfg := config.AppConfig
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer a.Close()
	a.RunBackground(ctx)

	client, err := mq.Dial(cfg.RabbitMQURL)
	if err != nil {
		slog.Error("rabbitmq dial failed", "error", err)
		os.Exit(1)
	}
	defer client.Close()

	consumer := worker.NewAuditConsumer(a.Store, client, worker.AuditOptions{
		Prefetch:    cfg.RabbitMQPrefetch,
		Concurrency: cfg.AuditConcurrency,
		Rate:        cfg.AuditRate,
		Burst:       cfg.AuditBurst,
		RetryMax:    cfg.AuditRetryMax,
		RetryDelays: cfg.AuditRetryDelays,
	})
	slog.Info("audit worker started")
	if err := consumer.Run(ctx, client); err != nil {
		slog.Error("audit worker stopped", "error", err)
		os.Exit(1)
	}
}

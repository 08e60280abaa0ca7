package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"slotbook/backend/internal/app"
	"slotbook/backend/internal/config"
	"slotbook/backend/internal/logging"
	"slotbook/backend/internal/metrics"
	"slotbook/backend/internal/worker"
)

func main() {
	log := logging.New("slotbook-worker", "info")

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	log = logging.New("slotbook-worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close failed", slog.Any("err", err))
		}
	}()

	mailer, err := app.NewMailer(ctx, cfg, log.With(slog.String("component", "mail")))
	if err != nil {
		log.Error("mailer setup failed", slog.Any("err", err), slog.String("provider", cfg.Mail.Provider))
		os.Exit(1)
	}

	handlers := worker.NewHandlers(worker.Deps{
		Appointments: a.Appointments,
		Forms:        a.Forms,
		Settings:     a.Settings,
		Mailer:       mailer,
		Reminders:    a.Queue,
		Sweeper:      a.Appointments,
		Recorder:     a.Metrics,
		Log:          log,
		PublicURL:    cfg.PublicURL,
		ReminderLead: cfg.ReminderLead,
	})
	mux := asynq.NewServeMux()
	handlers.Register(mux)

	srv := asynq.NewServer(a.RedisOpt(), asynq.Config{
		Concurrency: cfg.WorkerConcurrency,
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.Warn("task failed",
				slog.String("type", task.Type()),
				slog.Int("retry", retried),
				slog.Int("max_retry", maxRetry),
				slog.Any("err", err),
			)
		}),
		ShutdownTimeout: cfg.ShutdownTimeout,
	})

	scheduler := asynq.NewScheduler(a.RedisOpt(), &asynq.SchedulerOpts{Location: time.UTC})
	entryID, err := worker.RegisterSchedule(scheduler, cfg.SweepCron)
	if err != nil {
		log.Error("sweep schedule failed", slog.Any("err", err), slog.String("cron", cfg.SweepCron))
		os.Exit(1)
	}
	log.Info("sweep scheduled", slog.String("entry_id", entryID), slog.String("cron", cfg.SweepCron))

	if err := srv.Start(mux); err != nil {
		log.Error("worker start failed", slog.Any("err", err))
		os.Exit(1)
	}
	if err := scheduler.Start(); err != nil {
		log.Error("scheduler start failed", slog.Any("err", err))
		srv.Shutdown()
		os.Exit(1)
	}

	metricsServer := metrics.NewServer(cfg.WorkerMetricsAddr, a.Registry, log)
	if cfg.WorkerMetricsAddr != "" {
		go func() {
			if err := metricsServer.Start(); err != nil {
				log.Error("metrics server stopped with error", slog.Any("err", err))
			}
		}()
	}

	log.Info("worker started", slog.Int("concurrency", cfg.WorkerConcurrency))
	<-ctx.Done()
	log.Info("shutdown signal received")

	scheduler.Shutdown()
	srv.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown failed", slog.Any("err", err))
	}
	log.Info("worker stopped")
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"slotbook/backend/internal/app"
	"slotbook/backend/internal/config"
	"slotbook/backend/internal/logging"
	"slotbook/backend/internal/metrics"
	grpcTransport "slotbook/backend/internal/transport/grpc"
)

func main() {
	log := logging.New("slotbook-server", "info")

	cfg, err := config.Load()
	if err != nil {
		log.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	log = logging.New("slotbook-server", cfg.LogLevel)

	log.Info("starting", slog.String("grpc_addr", cfg.GRPCAddr), slog.String("log_level", cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Open(ctx, cfg, log)
	if err != nil {
		args := append([]any{slog.Any("err", err)}, logging.DatabaseArgs(cfg.DatabaseURL)...)
		log.Error("startup failed", args...)
		os.Exit(1)
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("close failed", slog.Any("err", err))
		}
	}()

	if cfg.AdminJWTSecret == "" {
		log.Warn("admin jwt secret not set; admin service will reject all calls")
	}

	grpcServer, hs := grpcTransport.NewServer(grpcTransport.ServerConfig{
		RequestTimeout: cfg.GRPCRequestTimeout,
		BookingRPS:     cfg.BookingRateLimit,
		BookingBurst:   cfg.BookingRateBurst,
		TrustedProxies: cfg.TrustedProxies,
		AdminSecret:    []byte(cfg.AdminJWTSecret),
		Recorder:       a.Metrics,
		Log:            log,
	},
		grpcTransport.NewBookingServer(a.Appointments, log),
		grpcTransport.NewAdminServer(a.Forms, a.Appointments, a.Settings, log),
	)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen failed", slog.Any("err", err), slog.String("grpc_addr", cfg.GRPCAddr))
		os.Exit(1)
	}

	metricsServer := metrics.NewServer(cfg.MetricsAddr, a.Registry, log)

	errCh := make(chan error, 2)
	go func() {
		errCh <- grpcServer.Serve(lis)
	}()
	if cfg.MetricsAddr != "" {
		go func() {
			errCh <- metricsServer.Start()
		}()
	}

	log.Info("grpc server started", slog.String("grpc_addr", cfg.GRPCAddr), slog.String("metrics_addr", cfg.MetricsAddr))

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			log.Error("server stopped with error", slog.Any("err", err))
			shutdown(log, grpcServer, hs, metricsServer, cfg.ShutdownTimeout)
			os.Exit(1)
		}
	}
	shutdown(log, grpcServer, hs, metricsServer, cfg.ShutdownTimeout)
}

func shutdown(log *slog.Logger, s *grpc.Server, hs *health.Server, m *metrics.Server, timeout time.Duration) {
	log.Info("shutting down grpc server", slog.Duration("timeout", timeout))
	hs.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		log.Warn("metrics server shutdown failed", slog.Any("err", err))
	}

	done := make(chan struct{})
	go func() {
		s.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		log.Info("grpc server stopped")
	case <-ctx.Done():
		log.Warn("grpc graceful shutdown timed out; forcing stop")
		s.Stop()
	}
}

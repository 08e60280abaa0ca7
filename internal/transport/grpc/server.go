package grpc

import (
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type ServerConfig struct {
	RequestTimeout time.Duration
	BookingRPS     float64
	BookingBurst   int
	TrustedProxies []string
	AdminSecret    []byte
	Recorder       RPCRecorder
	Log            *slog.Logger
}

// NewServer builds a gRPC server with both slotbook services and the standard
// health service registered. Interceptors run metrics, timeout, rate limit, then auth.
func NewServer(cfg ServerConfig, booking BookingServiceServer, admin AdminServiceServer) (*grpc.Server, *health.Server) {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With(slog.String("component", "grpc"))

	chain := []grpc.UnaryServerInterceptor{}
	if cfg.Recorder != nil {
		chain = append(chain, MetricsInterceptor(cfg.Recorder))
	}
	chain = append(chain,
		RequestTimeoutInterceptor(cfg.RequestTimeout),
		RateLimitInterceptor(cfg.BookingRPS, cfg.BookingBurst, "/"+BookingServiceName+"/", cfg.TrustedProxies, log),
		AdminAuthInterceptor(cfg.AdminSecret, "/"+AdminServiceName+"/", log),
	)

	s := grpc.NewServer(grpc.ChainUnaryInterceptor(chain...))
	RegisterBookingServiceServer(s, booking)
	RegisterAdminServiceServer(s, admin)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)
	hs.SetServingStatus(BookingServiceName, healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(AdminServiceName, healthpb.HealthCheckResponse_SERVING)
	return s, hs
}

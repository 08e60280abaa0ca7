package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

func RequestTimeoutInterceptor(timeout time.Duration) grpc.UnaryServerInterceptor {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		return handler(ctx, req)
	}
}

type RPCRecorder interface {
	ObserveRPC(method, code string, d time.Duration)
}

func MetricsInterceptor(rec RPCRecorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		rec.ObserveRPC(info.FullMethod, status.Code(err).String(), time.Since(start))
		return resp, err
	}
}

const (
	maxTrackedPeers = 10000
	// limiterIdle is how long a peer goes unseen before its bucket is dropped. A bucket idle
	// this long has refilled, so dropping it changes nothing for the peer.
	limiterIdle = 10 * time.Minute
)

type peerLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// peerLimiters hands out one token bucket per client address.
type peerLimiters struct {
	mu        sync.Mutex
	limiters  map[string]*peerLimiter
	limit     rate.Limit
	burst     int
	now       func() time.Time
	lastSweep time.Time
}

func newPeerLimiters(rps float64, burst int) *peerLimiters {
	return &peerLimiters{
		limiters: make(map[string]*peerLimiter),
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

func (p *peerLimiters) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if now.Sub(p.lastSweep) >= limiterIdle || len(p.limiters) >= maxTrackedPeers {
		p.evict(now)
	}
	e, ok := p.limiters[key]
	if !ok {
		e = &peerLimiter{limiter: rate.NewLimiter(p.limit, p.burst)}
		p.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter
}

// evict drops idle buckets, then the least recently seen one while the map is still full.
func (p *peerLimiters) evict(now time.Time) {
	p.lastSweep = now
	for key, e := range p.limiters {
		if now.Sub(e.lastSeen) >= limiterIdle {
			delete(p.limiters, key)
		}
	}
	for len(p.limiters) >= maxTrackedPeers {
		var oldestKey string
		var oldest time.Time
		for key, e := range p.limiters {
			if oldestKey == "" || e.lastSeen.Before(oldest) {
				oldestKey, oldest = key, e.lastSeen
			}
		}
		delete(p.limiters, oldestKey)
	}
}

// RateLimitInterceptor throttles each client address on methods under prefix. The
// x-forwarded-for header is only believed when the peer is one of trustedProxies
// (IPs or CIDRs); anyone else is keyed by their own address.
func RateLimitInterceptor(rps float64, burst int, prefix string, trustedProxies []string, log *slog.Logger) grpc.UnaryServerInterceptor {
	if burst <= 0 {
		burst = 1
	}
	store := newPeerLimiters(rps, burst)
	trusted := parseTrustedProxies(trustedProxies, log)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if rps <= 0 || !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}
		addr := clientAddr(ctx, trusted)
		if !store.get(addr).Allow() {
			log.Warn("rate limit exceeded", slog.String("peer", addr), slog.String("method", info.FullMethod))
			return nil, status.Error(codes.ResourceExhausted, "Too many requests. Try again later.")
		}
		return handler(ctx, req)
	}
}

func parseTrustedProxies(values []string, log *slog.Logger) []netip.Prefix {
	var out []netip.Prefix
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if addr, err := netip.ParseAddr(v); err == nil {
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(v)
		if err != nil {
			log.Warn("ignoring trusted proxy", slog.String("value", v), slog.Any("err", err))
			continue
		}
		out = append(out, prefix.Masked())
	}
	return out
}

func clientAddr(ctx context.Context, trusted []netip.Prefix) string {
	peerAddr := peerHost(ctx)
	if !isTrusted(peerAddr, trusted) {
		return peerAddr
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get("x-forwarded-for"); len(v) > 0 {
			if first := strings.TrimSpace(strings.Split(v[0], ",")[0]); first != "" {
				return first
			}
		}
	}
	return peerAddr
}

func peerHost(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return "unknown"
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}

func isTrusted(host string, trusted []netip.Prefix) bool {
	if len(trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// AdminClaims are the claims an admin bearer token must carry.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type adminSubjectKey struct{}

// AdminSubject returns the subject of the admin token that authorized ctx.
func AdminSubject(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(adminSubjectKey{}).(string)
	return sub, ok
}

// AdminAuthInterceptor requires an HS256 bearer token with role "admin" on methods
// under prefix. With no secret configured every such call is refused.
func AdminAuthInterceptor(secret []byte, prefix string, log *slog.Logger) grpc.UnaryServerInterceptor {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(30*time.Second),
		jwt.WithExpirationRequired(),
	)

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if !strings.HasPrefix(info.FullMethod, prefix) {
			return handler(ctx, req)
		}
		if len(secret) == 0 {
			return nil, status.Error(codes.Unavailable, "admin access is not configured")
		}

		raw, err := bearerToken(ctx)
		if err != nil {
			return nil, status.Error(codes.Unauthenticated, err.Error())
		}
		var claims AdminClaims
		if _, err := parser.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) { return secret, nil }); err != nil {
			log.Warn("admin token rejected", slog.Any("err", err), slog.String("method", info.FullMethod))
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		if claims.Role != "admin" {
			log.Warn("admin token lacks role", slog.String("sub", claims.Subject), slog.String("method", info.FullMethod))
			return nil, status.Error(codes.PermissionDenied, "admin role required")
		}

		return handler(context.WithValue(ctx, adminSubjectKey{}, claims.Subject), req)
	}
}

func bearerToken(ctx context.Context) (string, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return "", errors.New("missing authorization")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return "", errors.New("missing authorization")
	}
	scheme, token, found := strings.Cut(strings.TrimSpace(values[0]), " ")
	if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(token) == "" {
		return "", errors.New("authorization must be a bearer token")
	}
	return strings.TrimSpace(token), nil
}

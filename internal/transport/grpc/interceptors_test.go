package grpc

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

var adminInfo = &grpc.UnaryServerInfo{FullMethod: fullMethod(AdminServiceName, "ListForms")}

func okHandler(ctx context.Context, req any) (any, error) {
	return "ok", nil
}

func signed(t *testing.T, secret []byte, claims AdminClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return tok
}

func withBearer(token string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))
}

func TestAdminAuthInterceptor(t *testing.T) {
	secret := []byte("s3cret")
	in := AdminAuthInterceptor(secret, "/"+AdminServiceName+"/", slog.Default())
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	tests := []struct {
		name string
		ctx  context.Context
		want codes.Code
	}{
		{name: "no metadata", ctx: context.Background(), want: codes.Unauthenticated},
		{name: "not bearer", ctx: metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Basic abc")), want: codes.Unauthenticated},
		{name: "wrong secret", ctx: withBearer(signed(t, []byte("other"), AdminClaims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}})), want: codes.Unauthenticated},
		{name: "expired", ctx: withBearer(signed(t, secret, AdminClaims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}})), want: codes.Unauthenticated},
		{name: "no expiry", ctx: withBearer(signed(t, secret, AdminClaims{Role: "admin"})), want: codes.Unauthenticated},
		{name: "wrong role", ctx: withBearer(signed(t, secret, AdminClaims{Role: "viewer", RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}})), want: codes.PermissionDenied},
		{name: "admin", ctx: withBearer(signed(t, secret, AdminClaims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{Subject: "owner", ExpiresAt: future}})), want: codes.OK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := in(tt.ctx, nil, adminInfo, func(ctx context.Context, req any) (any, error) {
				if sub, ok := AdminSubject(ctx); !ok || sub != "owner" {
					t.Fatalf("subject = %q, %v", sub, ok)
				}
				return "ok", nil
			})
			if status.Code(err) != tt.want {
				t.Fatalf("code = %s, want %s", status.Code(err), tt.want)
			}
		})
	}
}

func TestAdminAuthInterceptor_SkipsPublicMethods(t *testing.T) {
	in := AdminAuthInterceptor(nil, "/"+AdminServiceName+"/", slog.Default())
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod(BookingServiceName, "BookAppointment")}

	if _, err := in(context.Background(), nil, info, okHandler); err != nil {
		t.Fatalf("error = %v, want nil", err)
	}
	if _, err := in(context.Background(), nil, adminInfo, okHandler); status.Code(err) != codes.Unavailable {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.Unavailable)
	}
}

func TestRateLimitInterceptor_PerPeer(t *testing.T) {
	prefix := "/" + BookingServiceName + "/"
	in := RateLimitInterceptor(0.001, 2, prefix, nil, slog.Default())
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod(BookingServiceName, "BookAppointment")}

	for i := 0; i < 2; i++ {
		if _, err := in(peerCtx("10.0.0.1"), nil, info, okHandler); err != nil {
			t.Fatalf("call %d error = %v", i, err)
		}
	}
	if _, err := in(peerCtx("10.0.0.1"), nil, info, okHandler); status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.ResourceExhausted)
	}
	if _, err := in(peerCtx("10.0.0.2"), nil, info, okHandler); err != nil {
		t.Fatalf("other peer error = %v", err)
	}
	if _, err := in(peerCtx("10.0.0.1"), nil, adminInfo, okHandler); err != nil {
		t.Fatalf("unlimited method error = %v", err)
	}
}

func peerCtx(ip string) context.Context {
	return peer.NewContext(context.Background(), &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP(ip), Port: 5000}})
}

func forwardedFor(ctx context.Context, xff string) context.Context {
	return metadata.NewIncomingContext(ctx, metadata.Pairs("x-forwarded-for", xff))
}

func TestRateLimitInterceptor_IgnoresForwardedForFromUntrustedPeer(t *testing.T) {
	in := RateLimitInterceptor(1, 1, "/"+BookingServiceName+"/", nil, slog.Default())
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod(BookingServiceName, "BookAppointment")}

	allowed := 0
	for i := 0; i < 50; i++ {
		ctx := forwardedFor(peerCtx("203.0.113.9"), fmt.Sprintf("198.51.100.%d", i))
		if _, err := in(ctx, nil, info, okHandler); err == nil {
			allowed++
		} else if status.Code(err) != codes.ResourceExhausted {
			t.Fatalf("call %d code = %s", i, status.Code(err))
		}
	}
	if allowed != 1 {
		t.Fatalf("allowed = %d, want 1 (rotating x-forwarded-for must share the peer bucket)", allowed)
	}
}

func TestRateLimitInterceptor_TrustedProxyForwardsClient(t *testing.T) {
	in := RateLimitInterceptor(0.001, 1, "/"+BookingServiceName+"/", []string{"10.0.0.0/8", "bogus"}, slog.Default())
	info := &grpc.UnaryServerInfo{FullMethod: fullMethod(BookingServiceName, "BookAppointment")}

	if _, err := in(forwardedFor(peerCtx("10.1.2.3"), "198.51.100.1, 10.1.2.3"), nil, info, okHandler); err != nil {
		t.Fatalf("first client error = %v", err)
	}
	if _, err := in(forwardedFor(peerCtx("10.1.2.3"), "198.51.100.2"), nil, info, okHandler); err != nil {
		t.Fatalf("second client behind the same proxy error = %v", err)
	}
	if _, err := in(forwardedFor(peerCtx("10.9.9.9"), "198.51.100.1"), nil, info, okHandler); status.Code(err) != codes.ResourceExhausted {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.ResourceExhausted)
	}
}

func TestPeerLimiters_EvictsIdleEntries(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := newPeerLimiters(1, 1)
	p.now = func() time.Time { return now }

	first := p.get("a")
	p.get("b")
	if p.get("a") != first {
		t.Fatal("active entry replaced")
	}

	now = now.Add(limiterIdle / 2)
	p.get("a")
	now = now.Add(limiterIdle/2 + time.Second)
	p.get("c")

	if _, ok := p.limiters["b"]; ok {
		t.Fatal("idle entry b was not evicted")
	}
	if p.limiters["a"] == nil || p.limiters["a"].limiter != first {
		t.Fatal("recently seen entry a was evicted")
	}
}

func TestPeerLimiters_FullMapDropsOldestOnly(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	p := newPeerLimiters(1, 1)
	p.now = func() time.Time { return now }
	p.lastSweep = now

	for i := 0; i < maxTrackedPeers; i++ {
		now = now.Add(time.Millisecond)
		p.get(fmt.Sprintf("peer-%d", i))
	}
	now = now.Add(time.Millisecond)
	p.get("newcomer")

	if len(p.limiters) != maxTrackedPeers {
		t.Fatalf("len = %d, want %d", len(p.limiters), maxTrackedPeers)
	}
	if _, ok := p.limiters["peer-0"]; ok {
		t.Fatal("oldest entry kept")
	}
	if _, ok := p.limiters["peer-1"]; !ok {
		t.Fatal("second oldest entry dropped")
	}
}

func TestRequestTimeoutInterceptor_AddsDeadline(t *testing.T) {
	in := RequestTimeoutInterceptor(time.Second)
	_, err := in(context.Background(), nil, adminInfo, func(ctx context.Context, req any) (any, error) {
		if _, ok := ctx.Deadline(); !ok {
			t.Fatal("no deadline set")
		}
		return nil, nil
	})
	if err != nil {
		t.Fatalf("error = %v", err)
	}
}

type recordedRPC struct {
	method, code string
}

type rpcRecorder struct{ got []recordedRPC }

func (r *rpcRecorder) ObserveRPC(method, code string, d time.Duration) {
	r.got = append(r.got, recordedRPC{method: method, code: code})
}

func TestMetricsInterceptor_RecordsCode(t *testing.T) {
	rec := &rpcRecorder{}
	in := MetricsInterceptor(rec)

	_, _ = in(context.Background(), nil, adminInfo, func(ctx context.Context, req any) (any, error) {
		return nil, status.Error(codes.NotFound, "not found")
	})
	if len(rec.got) != 1 || rec.got[0].code != "NotFound" || rec.got[0].method != adminInfo.FullMethod {
		t.Fatalf("recorded = %+v", rec.got)
	}
}

package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCAddr != "0.0.0.0:50051" {
		t.Fatalf("GRPCAddr = %q, want %q", cfg.GRPCAddr, "0.0.0.0:50051")
	}
	if cfg.GRPCRequestTimeout != 10*time.Second {
		t.Fatalf("GRPCRequestTimeout = %v, want 10s", cfg.GRPCRequestTimeout)
	}
	if cfg.ReminderLead != 24*time.Hour {
		t.Fatalf("ReminderLead = %v, want 24h", cfg.ReminderLead)
	}
	if cfg.Calendar.CalendarID != "primary" || cfg.Calendar.BusyCacheTTL != time.Minute {
		t.Fatalf("Calendar = %+v", cfg.Calendar)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SLOTBOOK_GRPC_ADDR", "127.0.0.1:6000")
	t.Setenv("SLOTBOOK_CALENDAR_ENABLED", "true")
	t.Setenv("GOOGLE_CLIENT_ID", "cid")
	t.Setenv("SLOTBOOK_BOOKING_RATE_LIMIT", "0.5")
	t.Setenv("SLOTBOOK_WORKER_REMINDER_LEAD", "2h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.GRPCHost != "127.0.0.1" || cfg.GRPCPort != 6000 || cfg.GRPCAddr != "127.0.0.1:6000" {
		t.Fatalf("grpc = %q %d %q", cfg.GRPCHost, cfg.GRPCPort, cfg.GRPCAddr)
	}
	if !cfg.Calendar.Enabled || cfg.Calendar.ClientID != "cid" {
		t.Fatalf("Calendar = %+v", cfg.Calendar)
	}
	if cfg.BookingRateLimit != 0.5 {
		t.Fatalf("BookingRateLimit = %v, want 0.5", cfg.BookingRateLimit)
	}
	if cfg.ReminderLead != 2*time.Hour {
		t.Fatalf("ReminderLead = %v, want 2h", cfg.ReminderLead)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	t.Setenv("SLOTBOOK_SHUTDOWN_TIMEOUT", "soon")
	if _, err := Load(); err == nil {
		t.Fatal("Load error = nil, want error")
	}
}

func TestLoad_MailDefaultsToGmail(t *testing.T) {
	t.Setenv("SLOTBOOK_CALENDAR_TOKEN_FILE", "/etc/slotbook/token.json")
	t.Setenv("SMTP_FROM", "noreply@example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Mail.Provider != "gmail" {
		t.Fatalf("Mail.Provider = %q, want gmail", cfg.Mail.Provider)
	}
	if cfg.Mail.TokenFile != "/etc/slotbook/token.json" || cfg.Mail.From != "noreply@example.com" {
		t.Fatalf("Mail = %+v", cfg.Mail)
	}
}

func TestLoad_MailProviderOverride(t *testing.T) {
	t.Setenv("SLOTBOOK_MAIL_PROVIDER", " SMTP ")
	t.Setenv("SLOTBOOK_MAIL_TOKEN_FILE", "/tmp/gmail.json")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.Mail.Provider != "smtp" || cfg.Mail.TokenFile != "/tmp/gmail.json" {
		t.Fatalf("Mail = %+v", cfg.Mail)
	}
}

func TestLoad_TrustedProxies(t *testing.T) {
	t.Setenv("SLOTBOOK_BOOKING_TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.5,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(cfg.TrustedProxies) != 2 || cfg.TrustedProxies[0] != "10.0.0.0/8" || cfg.TrustedProxies[1] != "192.168.1.5" {
		t.Fatalf("TrustedProxies = %v", cfg.TrustedProxies)
	}

	t.Setenv("SLOTBOOK_BOOKING_TRUSTED_PROXIES", "lb.internal")
	if _, err := Load(); err == nil {
		t.Fatal("Load error = nil, want error for hostname proxy")
	}
}

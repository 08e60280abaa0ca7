// Package app wires configuration into the stores, services and clients the
// slotbook binaries share.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"

	"slotbook/backend/internal/calendar"
	"slotbook/backend/internal/config"
	"slotbook/backend/internal/logging"
	"slotbook/backend/internal/metrics"
	"slotbook/backend/internal/notify"
	"slotbook/backend/internal/service/appointments"
	"slotbook/backend/internal/service/forms"
	"slotbook/backend/internal/service/settings"
	"slotbook/backend/internal/store/postgres"
)

type App struct {
	Cfg      config.Config
	Log      *slog.Logger
	DB       *bun.DB
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics

	Redis  *redis.Client
	Tasks  *asynq.Client
	Queue  *notify.Queue
	Source calendar.Source

	Forms        *forms.Service
	Settings     *settings.Service
	Appointments *appointments.Service

	closers []func() error
}

// Open connects to postgres and redis and builds the services. The caller must Close it.
func Open(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	a := &App{Cfg: cfg, Log: log}

	log.Info("connecting to database", logging.DatabaseArgs(cfg.DatabaseURL)...)
	db, err := postgres.Open(cfg.DatabaseURL, postgres.PoolConfig{
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		ConnMaxIdleTime: cfg.DBConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a.DB = db
	a.closers = append(a.closers, func() error { return postgres.Close(db) })

	a.Registry = metrics.NewRegistry()
	a.Metrics = metrics.New(a.Registry)

	redisOpt := asynq.RedisClientOpt{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB}
	a.Redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB})
	a.closers = append(a.closers, a.Redis.Close)
	a.Tasks = asynq.NewClient(redisOpt)
	a.closers = append(a.closers, a.Tasks.Close)
	a.Queue = notify.NewQueue(a.Tasks, log)

	a.Forms = forms.NewService(postgres.NewFormRepo(db))
	a.Settings = settings.NewService(postgres.NewSettingsRepo(db))

	src, err := NewCalendarSource(ctx, cfg, a.Settings, a.Redis, log)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Source = src

	deps := appointments.Deps{
		Forms:        postgres.NewFormRepo(db),
		Appointments: postgres.NewAppointmentRepo(db),
		Settings:     a.Settings,
		Events:       a.Queue,
		Recorder:     a.Metrics,
		Log:          log,
	}
	if src != nil {
		deps.Calendar = src
	}
	a.Appointments = appointments.NewService(deps)
	return a, nil
}

// RedisOpt is the asynq connection matching the configured redis.
func (a *App) RedisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: a.Cfg.RedisAddr, Password: a.Cfg.RedisPassword, DB: a.Cfg.RedisDB}
}

func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// NewCalendarSource returns the google connector behind the redis busy cache, or nil
// when the calendar integration is disabled.
func NewCalendarSource(ctx context.Context, cfg config.Config, st calendar.SettingsSource, kv calendar.KV, log *slog.Logger) (calendar.Source, error) {
	if !cfg.Calendar.Enabled {
		log.Info("calendar integration disabled")
		return nil, nil
	}
	g, err := calendar.NewGoogle(ctx, calendar.GoogleConfig{
		ClientID:     cfg.Calendar.ClientID,
		ClientSecret: cfg.Calendar.ClientSecret,
		TokenFile:    cfg.Calendar.TokenFile,
		CalendarID:   cfg.Calendar.CalendarID,
	}, st, log)
	if err != nil {
		return nil, fmt.Errorf("google calendar: %w", err)
	}
	if kv == nil {
		return g, nil
	}
	return calendar.NewCached(g, kv, cfg.Calendar.BusyCacheTTL, log), nil
}

// NewMailer builds the outbound mailer named by mail.provider: the Gmail API by default,
// or an SMTP relay when configured explicitly.
func NewMailer(ctx context.Context, cfg config.Config, log *slog.Logger) (notify.Mailer, error) {
	switch cfg.Mail.Provider {
	case "", "gmail":
		m, err := notify.NewGmailMailer(ctx, notify.GmailConfig{
			ClientID:     cfg.Calendar.ClientID,
			ClientSecret: cfg.Calendar.ClientSecret,
			TokenFile:    cfg.Mail.TokenFile,
			From:         cfg.Mail.From,
		})
		if err != nil {
			return nil, fmt.Errorf("gmail mailer: %w", err)
		}
		log.Info("mail provider ready", slog.String("provider", "gmail"))
		return m, nil
	case "smtp":
		if cfg.SMTP.Host == "" {
			return nil, errors.New("smtp mailer: smtp.host is required")
		}
		log.Info("mail provider ready", slog.String("provider", "smtp"), slog.String("smtp_host", cfg.SMTP.Host))
		return notify.NewSMTPMailer(notify.SMTPConfig{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.Mail.From,
		}), nil
	default:
		return nil, fmt.Errorf("unknown mail provider %q", cfg.Mail.Provider)
	}
}

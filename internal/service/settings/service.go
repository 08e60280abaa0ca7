package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

// Service reads typed settings blobs, filling in defaults for keys never saved.
type Service struct {
	repo store.SettingsRepository
}

func NewService(repo store.SettingsRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) General(ctx context.Context) (domain.GeneralSettings, error) {
	out := domain.DefaultGeneralSettings()
	if err := s.load(ctx, domain.SettingsGeneral, &out); err != nil {
		return domain.GeneralSettings{}, err
	}
	return out, nil
}

func (s *Service) Notifications(ctx context.Context) (domain.NotificationSettings, error) {
	var out domain.NotificationSettings
	if err := s.load(ctx, domain.SettingsNotifications, &out); err != nil {
		return domain.NotificationSettings{}, err
	}
	return out, nil
}

func (s *Service) Calendar(ctx context.Context) (domain.CalendarSettings, error) {
	out := domain.DefaultCalendarSettings()
	if err := s.load(ctx, domain.SettingsCalendar, &out); err != nil {
		return domain.CalendarSettings{}, err
	}
	return out, nil
}

func (s *Service) load(ctx context.Context, key string, out any) error {
	raw, err := s.repo.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load %s settings: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s settings: %w", key, err)
	}
	return nil
}

// Raw returns the stored blob for key, or the defaults when nothing was saved.
func (s *Service) Raw(ctx context.Context, key string) (json.RawMessage, error) {
	var v any
	var err error
	switch key {
	case domain.SettingsGeneral:
		v, err = s.General(ctx)
	case domain.SettingsNotifications:
		v, err = s.Notifications(ctx)
	case domain.SettingsCalendar:
		v, err = s.Calendar(ctx)
	default:
		return nil, validationError("unknown settings key")
	}
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// Put validates raw against the schema of key and stores it.
func (s *Service) Put(ctx context.Context, key string, raw json.RawMessage) error {
	switch key {
	case domain.SettingsGeneral:
		g := domain.DefaultGeneralSettings()
		if err := json.Unmarshal(raw, &g); err != nil {
			return validationError("general settings must be a JSON object")
		}
		if g.Timezone != "" {
			if _, err := time.LoadLocation(g.Timezone); err != nil {
				return validationError("unknown timezone")
			}
		}
		return s.save(ctx, key, g)
	case domain.SettingsNotifications:
		var n domain.NotificationSettings
		if err := json.Unmarshal(raw, &n); err != nil {
			return validationError("notification settings must be a JSON object")
		}
		return s.save(ctx, key, n)
	case domain.SettingsCalendar:
		c := domain.DefaultCalendarSettings()
		if err := json.Unmarshal(raw, &c); err != nil {
			return validationError("calendar settings must be a JSON object")
		}
		if c.Enabled && c.Provider != "google" {
			return validationError("only the google calendar provider is supported")
		}
		return s.save(ctx, key, c)
	default:
		return validationError("unknown settings key")
	}
}

func (s *Service) save(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.repo.Put(ctx, key, b)
}

package store

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"

	"slotbook/backend/internal/domain"
)

type FormRepository interface {
	Create(ctx context.Context, form domain.Form) (domain.Form, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Form, error)
	List(ctx context.Context) ([]domain.Form, error)
	Update(ctx context.Context, form domain.Form) (domain.Form, error)
}

type SettingsRepository interface {
	// Get returns ErrNotFound when key was never saved.
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Put(ctx context.Context, key string, value json.RawMessage) error
}

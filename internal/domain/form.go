package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"slotbook/backend/internal/availability"
)

// Form is a booking form. Its scheduling block and duration drive slot generation.
type Form struct {
	bun.BaseModel `bun:"table:forms"`

	ID                uuid.UUID           `bun:"id,pk,type:uuid"`
	Title             string              `bun:"title,notnull"`
	Description       string              `bun:"description"`
	DurationMinutes   int                 `bun:"duration_minutes,notnull"`
	Scheduling        availability.Config `bun:"scheduling,type:jsonb,notnull"`
	EmailVerification *bool               `bun:"email_verification"`
	CreatedAt         time.Time           `bun:"created_at,notnull"`
	UpdatedAt         time.Time           `bun:"updated_at,notnull"`
}

// RequiresVerification resolves the form override against the global default.
func (f Form) RequiresVerification(general GeneralSettings) bool {
	if f.EmailVerification != nil {
		return *f.EmailVerification
	}
	return general.EmailVerification
}

func (f *Form) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if f.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			f.ID = id
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = now
		}
		if f.UpdatedAt.IsZero() {
			f.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		f.UpdatedAt = now
	}
	return nil
}

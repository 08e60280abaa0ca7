package forms

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"slotbook/backend/internal/availability"
	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/store"
)

const maxDurationMinutes = 24 * 60

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

type Service struct {
	repo store.FormRepository
}

func NewService(repo store.FormRepository) *Service {
	return &Service{repo: repo}
}

type Input struct {
	ID                uuid.UUID
	Title             string
	Description       string
	DurationMinutes   int
	Scheduling        *availability.Config
	EmailVerification *bool
}

func (s *Service) Create(ctx context.Context, in Input) (domain.Form, error) {
	form, err := normalize(in)
	if err != nil {
		return domain.Form{}, err
	}
	form.ID = uuid.Nil
	return s.repo.Create(ctx, form)
}

func (s *Service) Update(ctx context.Context, in Input) (domain.Form, error) {
	if in.ID == uuid.Nil {
		return domain.Form{}, validationError("form_id is required")
	}
	existing, err := s.repo.Get(ctx, in.ID)
	if err != nil {
		return domain.Form{}, err
	}
	if in.Scheduling == nil {
		in.Scheduling = &existing.Scheduling
	}
	form, err := normalize(in)
	if err != nil {
		return domain.Form{}, err
	}
	form.CreatedAt = existing.CreatedAt
	return s.repo.Update(ctx, form)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (domain.Form, error) {
	if id == uuid.Nil {
		return domain.Form{}, validationError("form_id is required")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]domain.Form, error) {
	return s.repo.List(ctx)
}

// normalize checks the input and proves its scheduling block builds into a rule set.
func normalize(in Input) (domain.Form, error) {
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return domain.Form{}, validationError("title is required")
	}
	if in.DurationMinutes <= 0 || in.DurationMinutes > maxDurationMinutes {
		return domain.Form{}, validationError("duration_minutes must be between 1 and 1440")
	}

	cfg := availability.DefaultConfig()
	if in.Scheduling != nil {
		cfg = *in.Scheduling
	}
	if _, err := availability.Build(availability.Params{FormID: in.ID, Config: cfg, SlotMinutes: in.DurationMinutes}); err != nil {
		return domain.Form{}, err
	}

	return domain.Form{
		ID:                in.ID,
		Title:             title,
		Description:       strings.TrimSpace(in.Description),
		DurationMinutes:   in.DurationMinutes,
		Scheduling:        cfg,
		EmailVerification: in.EmailVerification,
	}, nil
}

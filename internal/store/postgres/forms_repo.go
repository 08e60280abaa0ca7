package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"slotbook/backend/internal/domain"
)

type FormRepo struct {
	db *bun.DB
}

func NewFormRepo(db *bun.DB) *FormRepo {
	return &FormRepo{db: db}
}

func (r *FormRepo) Create(ctx context.Context, form domain.Form) (domain.Form, error) {
	m := form
	if _, err := r.db.NewInsert().Model(&m).Exec(ctx); err != nil {
		return domain.Form{}, err
	}
	return m, nil
}

func (r *FormRepo) Get(ctx context.Context, id uuid.UUID) (domain.Form, error) {
	var out domain.Form
	err := r.db.NewSelect().
		Model(&out).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Form{}, notFound(err)
	}
	return out, nil
}

func (r *FormRepo) List(ctx context.Context) ([]domain.Form, error) {
	var rows []domain.Form
	err := r.db.NewSelect().
		Model(&rows).
		OrderExpr("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *FormRepo) Update(ctx context.Context, form domain.Form) (domain.Form, error) {
	m := form
	res, err := r.db.NewUpdate().
		Model(&m).
		Column("title", "description", "duration_minutes", "scheduling", "email_verification", "updated_at").
		WherePK().
		Returning("*").
		Exec(ctx)
	if err != nil {
		return domain.Form{}, err
	}
	if err := requireAffected(res); err != nil {
		return domain.Form{}, err
	}
	return m, nil
}

type SettingsRepo struct {
	db *bun.DB
}

func NewSettingsRepo(db *bun.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

func (r *SettingsRepo) Get(ctx context.Context, key string) (json.RawMessage, error) {
	var row domain.Setting
	err := r.db.NewSelect().
		Model(&row).
		Where("key = ?", key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, notFound(err)
	}
	return row.Value, nil
}

func (r *SettingsRepo) Put(ctx context.Context, key string, value json.RawMessage) error {
	row := domain.Setting{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	_, err := r.db.NewInsert().
		Model(&row).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/uptrace/bun"

	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/store"
)

const noOverlapConstraint = "appointments_no_overlap"

var activeStatuses = []domain.AppointmentStatus{domain.StatusPending, domain.StatusConfirmed}

type AppointmentRepo struct {
	db *bun.DB
}

func NewAppointmentRepo(db *bun.DB) *AppointmentRepo {
	return &AppointmentRepo{db: db}
}

type bookingTx struct {
	tx bun.Tx
}

func (r *AppointmentRepo) InFormTransaction(ctx context.Context, formID uuid.UUID, fn func(ctx context.Context, tx store.BookingTx) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := lockForm(ctx, tx, formID); err != nil {
			return err
		}
		return fn(ctx, bookingTx{tx: tx})
	})
}

func lockForm(ctx context.Context, tx bun.Tx, formID uuid.UUID) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", formID.String()).Exec(ctx)
	return err
}

func (r *AppointmentRepo) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db, id)
}

func (r *AppointmentRepo) GetByVerificationToken(ctx context.Context, token uuid.UUID) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.db.NewSelect().
		Model(&out).
		Where("verification_token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, notFound(err)
	}
	return out, nil
}

func (r *AppointmentRepo) List(ctx context.Context, formID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := r.db.NewSelect().
		Model(&rows).
		Where("form_id = ?", formID).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) ListActive(ctx context.Context, formID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listActive(ctx, r.db, formID, windowStart, windowEnd)
}

func (r *AppointmentRepo) TransitionStatus(ctx context.Context, id uuid.UUID, to domain.AppointmentStatus) (domain.Appointment, error) {
	var out domain.Appointment
	err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var cur domain.Appointment
		err := tx.NewSelect().
			Model(&cur).
			Where("id = ?", id).
			For("UPDATE").
			Scan(ctx)
		if err != nil {
			return notFound(err)
		}
		if !domain.CanTransition(cur.Status, to) {
			return fmt.Errorf("%w: %w", store.ErrInvalidTransition, &domain.TransitionError{From: cur.Status, To: to})
		}
		cur.Status = to
		_, err = tx.NewUpdate().
			Model(&cur).
			Column("status", "updated_at").
			WherePK().
			Exec(ctx)
		if err != nil {
			return err
		}
		out = cur
		return nil
	})
	if err != nil {
		return domain.Appointment{}, err
	}
	return out, nil
}

func (r *AppointmentRepo) SetCalendarEventID(ctx context.Context, id uuid.UUID, eventID string) error {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("calendar_event_id = ?", eventID).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (r *AppointmentRepo) CompleteEnded(ctx context.Context, before time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	_, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", domain.StatusCompleted).
		Set("updated_at = ?", time.Now().UTC()).
		Where("status = ?", domain.StatusConfirmed).
		Where("end_time <= ?", before).
		Returning("*").
		Exec(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *AppointmentRepo) ExpireUnverified(ctx context.Context, createdBefore time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	_, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("status = ?", domain.StatusCancelled).
		Set("updated_at = ?", time.Now().UTC()).
		Where("status = ?", domain.StatusPending).
		Where("created_at <= ?", createdBefore).
		Returning("*").
		Exec(ctx, &rows)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r bookingTx) Get(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.tx, id)
}

func (r bookingTx) ListActive(ctx context.Context, formID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	return listActive(ctx, r.tx, formID, windowStart, windowEnd)
}

func (r bookingTx) CreateAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	m := appt
	res, err := r.tx.NewInsert().
		Model(&m).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23P01" && pgErr.ConstraintName == noOverlapConstraint {
			return domain.Appointment{}, store.ErrConflict
		}
		return domain.Appointment{}, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return domain.Appointment{}, err
	}
	if affected == 0 {
		existing, err := getAppointment(ctx, r.tx, m.ID)
		if err != nil {
			return domain.Appointment{}, err
		}
		if !existing.SameBooking(appt) {
			return domain.Appointment{}, store.ErrIdempotencyConflict
		}
		return existing, nil
	}
	return m, nil
}

func getAppointment(ctx context.Context, db bun.IDB, id uuid.UUID) (domain.Appointment, error) {
	var out domain.Appointment
	err := db.NewSelect().
		Model(&out).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Appointment{}, notFound(err)
	}
	return out, nil
}

func listActive(ctx context.Context, db bun.IDB, formID uuid.UUID, windowStart, windowEnd time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := db.NewSelect().
		Model(&rows).
		Where("form_id = ?", formID).
		Where("status IN (?)", bun.In(activeStatuses)).
		Where("start_time < ?", windowEnd).
		Where("end_time > ?", windowStart).
		OrderExpr("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}

func requireAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

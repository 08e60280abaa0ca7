package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"slotbook/backend/internal/domain"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Queue publishes booking events and reminders as asynq tasks.
type Queue struct {
	client Enqueuer
	log    *slog.Logger
}

func NewQueue(client Enqueuer, log *slog.Logger) *Queue {
	if log == nil {
		log = slog.Default()
	}
	return &Queue{client: client, log: log.With(slog.String("component", "notify.queue"))}
}

// Emit enqueues ev. A duplicate of an already queued event is dropped.
func (q *Queue) Emit(ctx context.Context, ev domain.Event) error {
	task, opts, err := NewEventTask(ev)
	if err != nil {
		return fmt.Errorf("build event task: %w", err)
	}
	return q.enqueue(ctx, task, opts, slog.String("event", string(ev.Type)), slog.String("appointment_id", ev.AppointmentID.String()))
}

func (q *Queue) ScheduleReminder(ctx context.Context, appointmentID uuid.UUID, fireAt time.Time) error {
	task, opts, err := NewReminderTask(appointmentID, fireAt)
	if err != nil {
		return fmt.Errorf("build reminder task: %w", err)
	}
	return q.enqueue(ctx, task, opts, slog.String("appointment_id", appointmentID.String()), slog.Time("fire_at", fireAt))
}

func (q *Queue) enqueue(ctx context.Context, task *asynq.Task, opts []asynq.Option, attrs ...any) error {
	info, err := q.client.EnqueueContext(ctx, task, opts...)
	if errors.Is(err, asynq.ErrTaskIDConflict) || errors.Is(err, asynq.ErrDuplicateTask) {
		q.log.Debug("task already queued", append([]any{slog.String("type", task.Type())}, attrs...)...)
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	q.log.Debug("task queued", append([]any{slog.String("type", task.Type()), slog.String("task_id", info.ID)}, attrs...)...)
	return nil
}

package grpc

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"slotbook/backend/internal/availability"
	"slotbook/backend/internal/domain"
	"slotbook/backend/internal/service/appointments"
	"slotbook/backend/internal/store"
)

type fakeBookingService struct {
	availabilityFn  func(ctx context.Context, q appointments.AvailabilityQuery) (appointments.Availability, error)
	bookFn          func(ctx context.Context, in appointments.BookInput) (appointments.BookResult, error)
	confirmFn       func(ctx context.Context, token uuid.UUID) (domain.Appointment, error)
	cancelByTokenFn func(ctx context.Context, token uuid.UUID) (domain.Appointment, []string, error)
}

func (f *fakeBookingService) Availability(ctx context.Context, q appointments.AvailabilityQuery) (appointments.Availability, error) {
	if f.availabilityFn == nil {
		panic("Availability not configured")
	}
	return f.availabilityFn(ctx, q)
}

func (f *fakeBookingService) Book(ctx context.Context, in appointments.BookInput) (appointments.BookResult, error) {
	if f.bookFn == nil {
		panic("Book not configured")
	}
	return f.bookFn(ctx, in)
}

func (f *fakeBookingService) Confirm(ctx context.Context, token uuid.UUID) (domain.Appointment, error) {
	if f.confirmFn == nil {
		panic("Confirm not configured")
	}
	return f.confirmFn(ctx, token)
}

func (f *fakeBookingService) CancelByToken(ctx context.Context, token uuid.UUID) (domain.Appointment, []string, error) {
	if f.cancelByTokenFn == nil {
		panic("CancelByToken not configured")
	}
	return f.cancelByTokenFn(ctx, token)
}

const testFormID = "00000000-0000-0000-0000-0000000000f1"

var testStart = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func validBookRequest() *BookAppointmentRequest {
	return &BookAppointmentRequest{
		FormID:      testFormID,
		StartTime:   testStart,
		EndTime:     testStart.Add(time.Hour),
		ClientName:  "Ada",
		ClientEmail: "ada@example.com",
	}
}

func TestIdempotencyKey_ReadsHeadersAndTrims(t *testing.T) {
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "  abc  "))
	if got := idempotencyKey(ctx); got != "abc" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "abc")
	}

	ctx = metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-idempotency-key", "xyz"))
	if got := idempotencyKey(ctx); got != "xyz" {
		t.Fatalf("idempotencyKey = %q, want %q", got, "xyz")
	}
}

func TestListAvailableSlots_ParsesDates(t *testing.T) {
	var got appointments.AvailabilityQuery
	srv := NewBookingServer(&fakeBookingService{
		availabilityFn: func(ctx context.Context, q appointments.AvailabilityQuery) (appointments.Availability, error) {
			got = q
			return appointments.Availability{
				Slots:          []availability.Slot{{Start: testStart, End: testStart.Add(time.Hour)}},
				TimezonePolicy: availability.TimezoneClient,
				TimeZone:       "Europe/Berlin",
			}, nil
		},
	}, slog.Default())

	resp, err := srv.ListAvailableSlots(context.Background(), &ListAvailableSlotsRequest{FormID: testFormID, From: "2026-03-02", To: "2026-03-06"})
	if err != nil {
		t.Fatalf("ListAvailableSlots error: %v", err)
	}
	if got.From != (civil.Date{Year: 2026, Month: time.March, Day: 2}) || got.To != (civil.Date{Year: 2026, Month: time.March, Day: 6}) {
		t.Fatalf("query = %+v", got)
	}
	if len(resp.Slots) != 1 || !resp.Slots[0].Start.Equal(testStart) {
		t.Fatalf("slots = %+v", resp.Slots)
	}
	if resp.TimezonePolicy != "client" || resp.TimeZone != "Europe/Berlin" {
		t.Fatalf("policy = %q tz = %q", resp.TimezonePolicy, resp.TimeZone)
	}
}

func TestListAvailableSlots_RejectsBadInput(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{}, slog.Default())

	tests := []struct {
		name string
		req  *ListAvailableSlotsRequest
	}{
		{name: "form id", req: &ListAvailableSlotsRequest{FormID: "x", From: "2026-03-02", To: "2026-03-02"}},
		{name: "from", req: &ListAvailableSlotsRequest{FormID: testFormID, From: "03/02/2026", To: "2026-03-02"}},
		{name: "to", req: &ListAvailableSlotsRequest{FormID: testFormID, From: "2026-03-02", To: ""}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := srv.ListAvailableSlots(context.Background(), tt.req)
			if status.Code(err) != codes.InvalidArgument {
				t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
			}
		})
	}
}

func TestBookAppointment_RejectsMissingTimes(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{}, slog.Default())
	req := validBookRequest()
	req.EndTime = time.Time{}

	_, err := srv.BookAppointment(context.Background(), req)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestBookAppointment_PassesIdempotencyKeyToService(t *testing.T) {
	var gotKey string
	srv := NewBookingServer(&fakeBookingService{
		bookFn: func(ctx context.Context, in appointments.BookInput) (appointments.BookResult, error) {
			gotKey = in.IdempotencyKey
			return appointments.BookResult{Appointment: domain.Appointment{
				ID:     uuid.MustParse("00000000-0000-0000-0000-000000000010"),
				Status: domain.StatusPending,
			}}, nil
		},
	}, slog.Default())

	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("idempotency-key", "k1"))
	resp, err := srv.BookAppointment(ctx, validBookRequest())
	if err != nil {
		t.Fatalf("BookAppointment error: %v", err)
	}
	if gotKey != "k1" {
		t.Fatalf("idempotency_key = %q, want %q", gotKey, "k1")
	}
	if resp.Appointment.Status != "pending" {
		t.Fatalf("status = %q, want pending", resp.Appointment.Status)
	}
}

func TestBookAppointment_MapsErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{name: "overlap", err: &availability.BookingConflictError{Reason: availability.ReasonOverlap}, want: codes.FailedPrecondition},
		{name: "daily limit", err: &availability.BookingConflictError{Reason: availability.ReasonDailyLimit}, want: codes.FailedPrecondition},
		{name: "off grid", err: &availability.ValidationError{Code: availability.CodeSlotNotOffered}, want: codes.InvalidArgument},
		{name: "input", err: &appointments.ValidationError{}, want: codes.InvalidArgument},
		{name: "idempotency", err: store.ErrIdempotencyConflict, want: codes.FailedPrecondition},
		{name: "form missing", err: store.ErrNotFound, want: codes.NotFound},
		{name: "deadline", err: context.DeadlineExceeded, want: codes.DeadlineExceeded},
		{name: "internal", err: errEx("db exploded"), want: codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := NewBookingServer(&fakeBookingService{
				bookFn: func(ctx context.Context, in appointments.BookInput) (appointments.BookResult, error) {
					return appointments.BookResult{}, tt.err
				},
			}, slog.Default())

			_, err := srv.BookAppointment(context.Background(), validBookRequest())
			if status.Code(err) != tt.want {
				t.Fatalf("code = %s, want %s", status.Code(err), tt.want)
			}
			if tt.want == codes.Internal && status.Convert(err).Message() != "internal error" {
				t.Fatalf("message = %q, internal details leaked", status.Convert(err).Message())
			}
		})
	}
}

type errEx string

func (e errEx) Error() string { return string(e) }

func TestConfirmAppointment_RejectsBadToken(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{}, slog.Default())

	_, err := srv.ConfirmAppointment(context.Background(), &TokenRequest{Token: "nope"})
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.InvalidArgument)
	}
}

func TestConfirmAppointment_MapsExpiredVerification(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{
		confirmFn: func(ctx context.Context, token uuid.UUID) (domain.Appointment, error) {
			return domain.Appointment{}, appointments.ErrVerificationExpired
		},
	}, slog.Default())

	_, err := srv.ConfirmAppointment(context.Background(), &TokenRequest{Token: uuid.NewString()})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.FailedPrecondition)
	}
}

func TestCancelAppointment_MapsInvalidTransition(t *testing.T) {
	srv := NewBookingServer(&fakeBookingService{
		cancelByTokenFn: func(ctx context.Context, token uuid.UUID) (domain.Appointment, []string, error) {
			return domain.Appointment{}, nil, store.ErrInvalidTransition
		},
	}, slog.Default())

	_, err := srv.CancelAppointment(context.Background(), &TokenRequest{Token: uuid.NewString()})
	if status.Code(err) != codes.FailedPrecondition {
		t.Fatalf("code = %s, want %s", status.Code(err), codes.FailedPrecondition)
	}
}

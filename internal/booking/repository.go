package booking

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/meeting-scheduler/internal/availability"
)

// FinalizeFunc runs inside the booking transaction after the row is
// inserted. An error aborts the transaction.
type FinalizeFunc func(ctx context.Context, b *Booking) error

// Repository contains all storage interactions needed by the service.
type Repository interface {
	// Hosts
	CreateHost(ctx context.Context, h *Host) error
	GetHostByID(ctx context.Context, id uuid.UUID) (*Host, error)
	GetHostByUsername(ctx context.Context, username string) (*Host, error)

	// Availability, replaced as a whole
	GetAvailability(ctx context.Context, hostID uuid.UUID) (*availability.Rules, error)
	SaveAvailability(ctx context.Context, hostID uuid.UUID, rules availability.Rules) error
	ListOverrides(ctx context.Context, hostID uuid.UUID, from, to availability.Date) ([]availability.Override, error)
	UpsertOverride(ctx context.Context, hostID uuid.UUID, o availability.Override) error
	DeleteOverride(ctx context.Context, hostID uuid.UUID, date availability.Date) error

	// Event types
	CreateEventType(ctx context.Context, e *EventType) error
	GetEventType(ctx context.Context, id uuid.UUID) (*EventType, error)
	GetEventTypeBySlug(ctx context.Context, hostID uuid.UUID, slug string) (*EventType, error)
	ListEventTypes(ctx context.Context, hostID uuid.UUID) ([]EventType, error)
	UpdateEventType(ctx context.Context, e *EventType) error
	DeleteEventType(ctx context.Context, hostID, id uuid.UUID) error

	// Bookings
	//
	// CreateBooking inserts b only if no confirmed booking of the same host
	// overlaps [b.StartTime, b.EndTime), then runs finalize in the same
	// transaction. A conflict yields ErrBookingConflict.
	CreateBooking(ctx context.Context, b *Booking, finalize FinalizeFunc) error
	GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error)
	ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error)
	ListBusy(ctx context.Context, hostID uuid.UUID, from, to time.Time) ([]availability.Interval, error)
	CancelBooking(ctx context.Context, hostID, id uuid.UUID, reason string, at time.Time) (*Booking, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}

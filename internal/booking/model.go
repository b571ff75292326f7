package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/meeting-scheduler/internal/integration"
)

type BookingStatus string

const (
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

type Host struct {
	ID        uuid.UUID
	Username  string
	Name      string
	Email     string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type EventType struct {
	ID              uuid.UUID
	HostID          uuid.UUID
	Title           string
	Slug            string
	Description     string
	DurationMinutes int
	LocationType    integration.Platform
	IsVisible       bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (e *EventType) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}

type Booking struct {
	ID             uuid.UUID
	EventID        uuid.UUID
	HostID         uuid.UUID
	GuestName      string
	GuestEmail     string
	AdditionalInfo string
	StartTime      time.Time
	EndTime        time.Time
	Status         BookingStatus
	MeetingLink    string
	CancelReason   string
	CreatedAt      time.Time
	CancelledAt    *time.Time
}

type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// BookingFilter narrows ListBookings. Zero values mean no bound.
type BookingFilter struct {
	HostID uuid.UUID
	From   time.Time
	To     time.Time
	Status BookingStatus
	Limit  int
	Offset int
}

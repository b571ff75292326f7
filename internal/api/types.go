package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/meeting-scheduler/internal/booking"
	"github.com/hackgods/meeting-scheduler/internal/integration"
	"github.com/hackgods/meeting-scheduler/internal/poll"
)

type ErrorResponse struct {
	Error   string            `json:"error"`
	Details string            `json:"details,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type HostResponse struct {
	ID       uuid.UUID `json:"id"`
	Username string    `json:"username"`
	Name     string    `json:"name"`
	Timezone string    `json:"timezone"`
}

func newHostResponse(h booking.Host) HostResponse {
	return HostResponse{ID: h.ID, Username: h.Username, Name: h.Name, Timezone: h.Timezone}
}

type EventResponse struct {
	ID           uuid.UUID            `json:"id"`
	Title        string               `json:"title"`
	Slug         string               `json:"slug"`
	Description  string               `json:"description"`
	Duration     int                  `json:"duration"`
	LocationType integration.Platform `json:"locationType"`
	IsVisible    bool                 `json:"isVisible"`
	CreatedAt    time.Time            `json:"createdAt"`
}

func newEventResponse(e booking.EventType) EventResponse {
	return EventResponse{
		ID:           e.ID,
		Title:        e.Title,
		Slug:         e.Slug,
		Description:  e.Description,
		Duration:     e.DurationMinutes,
		LocationType: e.LocationType,
		IsVisible:    e.IsVisible,
		CreatedAt:    e.CreatedAt,
	}
}

type PublicEventResponse struct {
	Event EventResponse `json:"event"`
	Host  HostResponse  `json:"host"`
}

type BookingResponse struct {
	ID             uuid.UUID             `json:"id"`
	EventID        uuid.UUID             `json:"eventId"`
	GuestName      string                `json:"guestName"`
	GuestEmail     string                `json:"guestEmail"`
	AdditionalInfo string                `json:"additionalInfo,omitempty"`
	StartTime      time.Time             `json:"startTime"`
	EndTime        time.Time             `json:"endTime"`
	Status         booking.BookingStatus `json:"status"`
	MeetingLink    string                `json:"meetingLink,omitempty"`
	CancelReason   string                `json:"cancelReason,omitempty"`
	CreatedAt      time.Time             `json:"createdAt"`
	CancelledAt    *time.Time            `json:"cancelledAt,omitempty"`
}

func newBookingResponse(b booking.Booking) BookingResponse {
	return BookingResponse{
		ID:             b.ID,
		EventID:        b.EventID,
		GuestName:      b.GuestName,
		GuestEmail:     b.GuestEmail,
		AdditionalInfo: b.AdditionalInfo,
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		Status:         b.Status,
		MeetingLink:    b.MeetingLink,
		CancelReason:   b.CancelReason,
		CreatedAt:      b.CreatedAt,
		CancelledAt:    b.CancelledAt,
	}
}

type ScheduleResponse struct {
	Booking     BookingResponse `json:"booking"`
	MeetingLink string          `json:"meetingLink,omitempty"`
}

type CancelBookingRequest struct {
	Reason string `json:"reason"`
}

type ListBookingsResponse struct {
	Bookings []BookingResponse `json:"bookings"`
}

type PollResponse struct {
	ID                 uuid.UUID   `json:"id"`
	Title              string      `json:"title"`
	Description        string      `json:"description"`
	Duration           int         `json:"duration"`
	Slots              []time.Time `json:"slots"`
	Votes              []poll.Vote `json:"votes"`
	Status             poll.Status `json:"status"`
	AllowMultipleVotes bool        `json:"allowMultipleVotes"`
	Deadline           *time.Time  `json:"deadline,omitempty"`
	AutoClose          bool        `json:"autoClose"`
	FinalSlot          *time.Time  `json:"finalSlot,omitempty"`
	CreatedAt          time.Time   `json:"createdAt"`
}

func newPollResponse(p poll.Poll) PollResponse {
	votes := p.Votes
	if votes == nil {
		votes = []poll.Vote{}
	}
	return PollResponse{
		ID:                 p.ID,
		Title:              p.Title,
		Description:        p.Description,
		Duration:           p.DurationMinutes,
		Slots:              p.Slots,
		Votes:              votes,
		Status:             p.Status,
		AllowMultipleVotes: p.AllowMultipleVotes,
		Deadline:           p.Deadline,
		AutoClose:          p.AutoClose,
		FinalSlot:          p.FinalSlot,
		CreatedAt:          p.CreatedAt,
	}
}

type UpdatePollRequest struct {
	Status poll.Status `json:"status"`
}

type FinalizePollRequest struct {
	Slot string `json:"slot"`
}

type ConnectResponse struct {
	URL string `json:"url"`
}

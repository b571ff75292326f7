package booking

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hackgods/meeting-scheduler/internal/availability"
	"github.com/hackgods/meeting-scheduler/internal/integration"
	"github.com/hackgods/meeting-scheduler/internal/metrics"
	redisclient "github.com/hackgods/meeting-scheduler/internal/redis"
)

const (
	maxGuestNameLen      = 200
	maxAdditionalInfoLen = 2000
)

// ScheduleRequest is a guest's booking form. StartTime and EndTime are slot
// identifiers as produced by the projector; EndTime is optional.
type ScheduleRequest struct {
	EventID        uuid.UUID `json:"eventId"`
	GuestName      string    `json:"guestName"`
	GuestEmail     string    `json:"guestEmail"`
	AdditionalInfo string    `json:"additionalInfo,omitempty"`
	StartTime      string    `json:"startTime"`
	EndTime        string    `json:"endTime,omitempty"`
}

type Confirmation struct {
	Booking     *Booking
	MeetingLink string
}

type scheduleInput struct {
	name, email, info string
	start, end        time.Time
}

func validateSchedule(req ScheduleRequest, duration time.Duration) (scheduleInput, error) {
	v := &ValidationError{}
	in := scheduleInput{
		name:  strings.TrimSpace(req.GuestName),
		email: strings.TrimSpace(req.GuestEmail),
		info:  strings.TrimSpace(req.AdditionalInfo),
	}

	switch {
	case in.name == "":
		v.add("guestName", "is required")
	case utf8.RuneCountInString(in.name) > maxGuestNameLen:
		v.add("guestName", fmt.Sprintf("must be at most %d characters", maxGuestNameLen))
	}

	if in.email == "" {
		v.add("guestEmail", "is required")
	} else if addr, err := mail.ParseAddress(in.email); err != nil || addr.Address != in.email {
		v.add("guestEmail", "must be a valid email address")
	}

	if utf8.RuneCountInString(in.info) > maxAdditionalInfoLen {
		v.add("additionalInfo", fmt.Sprintf("must be at most %d characters", maxAdditionalInfoLen))
	}

	start, err := availability.Unproject(req.StartTime)
	if err != nil {
		v.add("startTime", "must be a slot identifier at minute precision")
	} else {
		in.start = start
		in.end = start.Add(duration)
		if req.EndTime != "" {
			end, err := availability.Unproject(req.EndTime)
			if err != nil {
				v.add("endTime", "must be a slot identifier at minute precision")
			} else if !end.Equal(in.end) {
				v.add("endTime", fmt.Sprintf("must be %s for a %d minute meeting", availability.SlotID(in.end), int(duration.Minutes())))
			}
		}
	}

	return in, v.orNil()
}

// ScheduleMeeting validates the guest form, re-checks the slot against
// current availability and commits the booking. The meeting link is
// created inside the booking transaction, so a provider failure leaves
// nothing behind, and a meeting whose booking fails to commit is removed. A slot taken concurrently yields ErrSlotUnavailable; the
// request is never retried.
func (s *Service) ScheduleMeeting(ctx context.Context, req ScheduleRequest) (*Confirmation, error) {
	e, host, err := s.publicEvent(ctx, req.EventID)
	if err != nil {
		return nil, err
	}

	in, err := validateSchedule(req, e.Duration())
	if err != nil {
		s.reject(ctx, e, "validation", err)
		return nil, err
	}

	startDate := availability.DateOf(in.start)
	sched, err := s.schedule(ctx, host, startDate.AddDays(-1), startDate.AddDays(1))
	if err != nil {
		return nil, err
	}
	busy, err := s.repo.ListBusy(ctx, host.ID, in.start, in.end)
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}
	if in.start.Before(s.now().Add(s.cfg.MinNotice)) || !sched.Contains(in.start, e.Duration(), busy) {
		s.reject(ctx, e, "slot_unavailable", ErrSlotUnavailable)
		return nil, ErrSlotUnavailable
	}

	b := &Booking{
		ID:             uuid.New(),
		EventID:        e.ID,
		HostID:         host.ID,
		GuestName:      in.name,
		GuestEmail:     in.email,
		AdditionalInfo: in.info,
		StartTime:      in.start,
		EndTime:        in.end,
		Status:         StatusConfirmed,
	}

	var (
		meeting integration.MeetingRequest
		linked  bool
	)
	key := redisclient.SlotKey(host.ID, in.start)
	err = s.locker.WithSlotLock(ctx, key, func(lockCtx context.Context) error {
		return s.repo.CreateBooking(lockCtx, b, func(txCtx context.Context, staged *Booking) error {
			meeting = integration.MeetingRequest{
				BookingID:   staged.ID,
				HostID:      host.ID,
				Platform:    e.LocationType,
				Title:       fmt.Sprintf("%s with %s", e.Title, staged.GuestName),
				Description: staged.AdditionalInfo,
				Start:       staged.StartTime,
				End:         staged.EndTime,
				Timezone:    sched.Location().String(),
				GuestName:   staged.GuestName,
				GuestEmail:  staged.GuestEmail,
			}
			link, err := s.linker.CreateMeeting(txCtx, meeting)
			if err != nil {
				return &IntegrationError{Platform: e.LocationType, Err: err}
			}
			linked = true
			staged.MeetingLink = link
			return nil
		})
	})

	if err != nil {
		if linked {
			s.cancelMeeting(ctx, meeting)
		}
		var intErr *IntegrationError
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired), errors.Is(err, ErrBookingConflict):
			s.reject(ctx, e, "slot_unavailable", err)
			return nil, ErrSlotUnavailable
		case errors.As(err, &intErr):
			s.reject(ctx, e, "integration", err)
			return nil, intErr
		default:
			s.reject(ctx, e, "error", err)
			return nil, fmt.Errorf("create booking: %w", err)
		}
	}

	metrics.IncBookingConfirmed(string(e.LocationType))
	s.logEvent(ctx, &b.ID, EventBookingConfirmed, map[string]any{
		"event_id":   e.ID.String(),
		"host_id":    host.ID.String(),
		"start_time": b.StartTime,
		"end_time":   b.EndTime,
	})
	s.log.Info().
		Str("booking_id", b.ID.String()).
		Str("event_id", e.ID.String()).
		Time("start_time", b.StartTime).
		Msg("booking confirmed")

	return &Confirmation{Booking: b, MeetingLink: b.MeetingLink}, nil
}

// cancelMeeting removes a meeting whose booking never committed. It runs
// detached from ctx so a cancelled request still cleans up.
func (s *Service) cancelMeeting(ctx context.Context, req integration.MeetingRequest) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := s.linker.CancelMeeting(ctx, req); err != nil {
		s.log.Error().Err(err).
			Str("booking_id", req.BookingID.String()).
			Str("platform", string(req.Platform)).
			Msg("orphaned meeting not removed")
		return
	}
	s.log.Info().Str("booking_id", req.BookingID.String()).Msg("meeting removed after failed booking")
}

func (s *Service) reject(ctx context.Context, e *EventType, reason string, err error) {
	metrics.IncBookingRejected(reason)
	s.log.Warn().Err(err).Str("event_id", e.ID.String()).Str("reason", reason).Msg("booking rejected")
	s.logEvent(ctx, nil, EventBookingRejected, map[string]any{
		"event_id": e.ID.String(),
		"reason":   reason,
	})
}

// CancelBooking frees a confirmed booking's interval.
func (s *Service) CancelBooking(ctx context.Context, hostID, bookingID uuid.UUID, reason string) (*Booking, error) {
	if utf8.RuneCountInString(reason) > maxAdditionalInfoLen {
		return nil, fieldError("reason", fmt.Sprintf("must be at most %d characters", maxAdditionalInfoLen))
	}
	b, err := s.repo.CancelBooking(ctx, hostID, bookingID, strings.TrimSpace(reason), s.now())
	if err != nil {
		return nil, err
	}

	metrics.IncBookingCancelled()
	s.logEvent(ctx, &b.ID, EventBookingCancelled, map[string]any{
		"host_id": hostID.String(),
		"reason":  b.CancelReason,
	})
	return b, nil
}

// ListBookings backs the host's scheduled-events page.
func (s *Service) ListBookings(ctx context.Context, f BookingFilter) ([]Booking, error) {
	if f.Limit <= 0 {
		f.Limit = 20 // default
	}
	if f.Limit > 100 {
		f.Limit = 100 // max
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	switch f.Status {
	case "", StatusConfirmed, StatusCancelled:
	default:
		return nil, fieldError("status", "must be confirmed or cancelled")
	}

	bookings, err := s.repo.ListBookings(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

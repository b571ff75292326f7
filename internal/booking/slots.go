package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/meeting-scheduler/internal/availability"
	"github.com/hackgods/meeting-scheduler/internal/metrics"
)

const (
	DefaultCalendarDays = 14
	MaxCalendarDays     = 60
)

// AvailabilityQuery is a guest's request for the booking calendar. Empty
// fields take defaults: UTC, today in the viewer zone, 14 days, 24h. Days
// is nil when the guest did not ask for a length; an explicit zero is
// rejected.
type AvailabilityQuery struct {
	EventID    uuid.UUID
	Timezone   string
	From       string
	Days       *int
	HourFormat string
}

type EventAvailability struct {
	EventID    uuid.UUID               `json:"eventId"`
	Duration   int                     `json:"duration"`
	Timezone   string                  `json:"timezone"`
	HourFormat availability.HourFormat `json:"hourFormat"`
	Days       []availability.DaySlots `json:"days"`
}

// GetAvailabilityForEvent computes the bookable slots of a visible event
// type, grouped by the viewer's local dates. It reads only; calling it
// twice without writes in between returns the same result.
func (s *Service) GetAvailabilityForEvent(ctx context.Context, q AvailabilityQuery) (*EventAvailability, error) {
	started := time.Now()
	defer func() { metrics.ObserveSlotQuery(time.Since(started).Seconds()) }()

	e, host, err := s.publicEvent(ctx, q.EventID)
	if err != nil {
		return nil, err
	}

	v := &ValidationError{}
	viewer, err := availability.LoadLocation(q.Timezone)
	if err != nil {
		v.add("timezone", "unknown timezone")
		viewer = time.UTC
	}
	format, err := availability.ParseHourFormat(q.HourFormat)
	if err != nil {
		v.add("hourFormat", err.Error())
	}
	days := DefaultCalendarDays
	if q.Days != nil {
		days = *q.Days
	}
	if days < 1 || days > MaxCalendarDays {
		v.add("days", fmt.Sprintf("must be between 1 and %d", MaxCalendarDays))
	}
	from := availability.DateOf(s.now().In(viewer))
	if q.From != "" {
		if from, err = availability.ParseDate(q.From); err != nil {
			v.add("from", err.Error())
		}
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	// Host dates touching the viewer range lie at most a day outside it.
	sched, err := s.schedule(ctx, host, from.AddDays(-1), from.AddDays(days+1))
	if err != nil {
		return nil, err
	}

	start := from.Midnight(viewer)
	end := from.AddDays(days).Midnight(viewer)
	busy, err := s.repo.ListBusy(ctx, host.ID, start.Add(-e.Duration()), end.Add(e.Duration()))
	if err != nil {
		return nil, fmt.Errorf("load bookings: %w", err)
	}

	calendar := sched.ForViewer(availability.ViewerQuery{
		Location:  viewer,
		From:      from,
		Days:      days,
		Format:    format,
		NotBefore: s.now().Add(s.cfg.MinNotice),
	}, e.Duration(), busy)

	return &EventAvailability{
		EventID:    e.ID,
		Duration:   e.DurationMinutes,
		Timezone:   viewer.String(),
		HourFormat: format,
		Days:       calendar,
	}, nil
}

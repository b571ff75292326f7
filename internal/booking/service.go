package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/meeting-scheduler/internal/availability"
	"github.com/hackgods/meeting-scheduler/internal/config"
	"github.com/hackgods/meeting-scheduler/internal/integration"
	redisclient "github.com/hackgods/meeting-scheduler/internal/redis"
)

const (
	EventAvailabilityUpdated = "AVAILABILITY_UPDATED"
	EventOverrideSaved       = "DATE_OVERRIDE_SAVED"
	EventOverrideDeleted     = "DATE_OVERRIDE_DELETED"
	EventTypeCreated         = "EVENT_TYPE_CREATED"
	EventTypeDeleted         = "EVENT_TYPE_DELETED"
	EventBookingConfirmed    = "BOOKING_CONFIRMED"
	EventBookingRejected     = "BOOKING_REJECTED"
	EventBookingCancelled    = "BOOKING_CANCELLED"
)

// IntegrationChecker reports whether a host connected a platform.
type IntegrationChecker interface {
	Check(ctx context.Context, hostID uuid.UUID, p integration.Platform) (integration.Status, error)
}

// MeetingLinker creates the external meeting for a booking and removes it
// again when the booking does not commit.
type MeetingLinker interface {
	CreateMeeting(ctx context.Context, req integration.MeetingRequest) (string, error)
	CancelMeeting(ctx context.Context, req integration.MeetingRequest) error
}

type Service struct {
	repo    Repository
	locker  redisclient.Locker
	linker  MeetingLinker
	checker IntegrationChecker
	cfg     config.Config
	log     zerolog.Logger
	now     func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, linker MeetingLinker, checker IntegrationChecker, cfg config.Config, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		locker:  locker,
		linker:  linker,
		checker: checker,
		cfg:     cfg,
		log:     logger.With().Str("component", "booking").Logger(),
		now:     time.Now,
	}
}

// WithClock replaces the time source. Used by tests and the simulator.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Hosts

func (s *Service) CreateHost(ctx context.Context, h *Host) error {
	if h.Timezone == "" {
		h.Timezone = s.cfg.DefaultTimezone
	}
	if _, err := availability.LoadLocation(h.Timezone); err != nil {
		return fieldError("timezone", "unknown timezone")
	}
	if h.Username == "" {
		return fieldError("username", "is required")
	}
	return s.repo.CreateHost(ctx, h)
}

func (s *Service) GetHost(ctx context.Context, id uuid.UUID) (*Host, error) {
	return s.repo.GetHostByID(ctx, id)
}

// Availability store

// GetAvailability returns the host's weekly rules, or the default week when
// the host never saved any.
func (s *Service) GetAvailability(ctx context.Context, hostID uuid.UUID) (availability.Rules, error) {
	host, err := s.repo.GetHostByID(ctx, hostID)
	if err != nil {
		return availability.Rules{}, err
	}
	rules, err := s.repo.GetAvailability(ctx, hostID)
	if errors.Is(err, ErrAvailabilityNotFound) {
		return s.defaultRules(host), nil
	}
	if err != nil {
		return availability.Rules{}, fmt.Errorf("load availability: %w", err)
	}
	normalized, err := rules.Normalize()
	if err != nil {
		return availability.Rules{}, fmt.Errorf("stored availability for host %s: %w", hostID, err)
	}
	return normalized, nil
}

func (s *Service) defaultRules(host *Host) availability.Rules {
	tz := host.Timezone
	if tz == "" {
		tz = s.cfg.DefaultTimezone
	}
	rules := availability.DefaultRules(tz)
	if s.cfg.DefaultTimeGap > 0 {
		rules.TimeGap = s.cfg.DefaultTimeGap
	}
	return rules
}

type UpdateAvailabilityInput struct {
	TimeGap  int                    `json:"timeGap"`
	Timezone string                 `json:"timezone,omitempty"`
	Days     []availability.DayRule `json:"days"`
}

// UpdateAvailability replaces the host's weekly rules. Concurrent updates
// are last-writer-wins.
func (s *Service) UpdateAvailability(ctx context.Context, hostID uuid.UUID, in UpdateAvailabilityInput) (availability.Rules, error) {
	host, err := s.repo.GetHostByID(ctx, hostID)
	if err != nil {
		return availability.Rules{}, err
	}
	tz := in.Timezone
	if tz == "" {
		tz = host.Timezone
	}

	rules, err := availability.Rules{Timezone: tz, TimeGap: in.TimeGap, Days: in.Days}.Normalize()
	if err != nil {
		return availability.Rules{}, err
	}
	if err := s.repo.SaveAvailability(ctx, hostID, rules); err != nil {
		return availability.Rules{}, fmt.Errorf("save availability: %w", err)
	}

	s.logEvent(ctx, nil, EventAvailabilityUpdated, map[string]any{
		"host_id":  hostID.String(),
		"time_gap": rules.TimeGap,
		"timezone": rules.Timezone,
	})
	return rules, nil
}

// GetDateOverrides lists overrides in [from, to]. Zero dates leave that
// side open.
func (s *Service) GetDateOverrides(ctx context.Context, hostID uuid.UUID, from, to availability.Date) ([]availability.Override, error) {
	if _, err := s.repo.GetHostByID(ctx, hostID); err != nil {
		return nil, err
	}
	return s.repo.ListOverrides(ctx, hostID, from, to)
}

func (s *Service) UpsertDateOverride(ctx context.Context, hostID uuid.UUID, o availability.Override) (availability.Override, error) {
	if _, err := s.repo.GetHostByID(ctx, hostID); err != nil {
		return availability.Override{}, err
	}
	if err := o.Validate(); err != nil {
		return availability.Override{}, err
	}
	if o.Windows == nil || !o.IsAvailable {
		o.Windows = []availability.Window{}
	}
	if err := s.repo.UpsertOverride(ctx, hostID, o); err != nil {
		return availability.Override{}, fmt.Errorf("save date override: %w", err)
	}

	s.logEvent(ctx, nil, EventOverrideSaved, map[string]any{
		"host_id":      hostID.String(),
		"date":         o.Date.String(),
		"is_available": o.IsAvailable,
	})
	return o, nil
}

func (s *Service) DeleteDateOverride(ctx context.Context, hostID uuid.UUID, date availability.Date) error {
	if err := s.repo.DeleteOverride(ctx, hostID, date); err != nil {
		return err
	}
	s.logEvent(ctx, nil, EventOverrideDeleted, map[string]any{
		"host_id": hostID.String(),
		"date":    date.String(),
	})
	return nil
}

// schedule loads the host's rules and the overrides between from and to.
func (s *Service) schedule(ctx context.Context, host *Host, from, to availability.Date) (*availability.Schedule, error) {
	rules, err := s.repo.GetAvailability(ctx, host.ID)
	if errors.Is(err, ErrAvailabilityNotFound) {
		def := s.defaultRules(host)
		rules, err = &def, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load availability: %w", err)
	}
	overrides, err := s.repo.ListOverrides(ctx, host.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("load date overrides: %w", err)
	}
	return availability.NewSchedule(*rules, overrides)
}

func (s *Service) logEvent(ctx context.Context, bookingID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		BookingID: bookingID,
		Payload:   data,
		CreatedAt: s.now(),
	}

	// The event log must not fail the operation it records.
	if err := s.repo.InsertEvent(context.WithoutCancel(ctx), ev); err != nil {
		s.log.Error().Err(err).Str("event_type", eventType).Msg("failed to insert event log")
	}
}

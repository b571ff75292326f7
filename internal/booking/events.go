package booking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/hackgods/meeting-scheduler/internal/integration"
)

const (
	maxTitleLen       = 200
	maxDescriptionLen = 5000
	maxDurationMin    = 24 * 60
	maxSlugAttempts   = 50
)

type CreateEventInput struct {
	Title           string               `json:"title"`
	Description     string               `json:"description"`
	DurationMinutes int                  `json:"duration"`
	LocationType    integration.Platform `json:"locationType"`
	IsVisible       *bool                `json:"isVisible,omitempty"`
}

// UpdateEventInput changes only the fields that are set.
type UpdateEventInput struct {
	Title           *string `json:"title,omitempty"`
	Description     *string `json:"description,omitempty"`
	DurationMinutes *int    `json:"duration,omitempty"`
	IsVisible       *bool   `json:"isVisible,omitempty"`
}

// PublicEvent is what the guest booking page loads.
type PublicEvent struct {
	Event EventType
	Host  Host
}

func validateEventFields(v *ValidationError, title, description string, duration int) {
	switch {
	case strings.TrimSpace(title) == "":
		v.add("title", "is required")
	case utf8.RuneCountInString(title) > maxTitleLen:
		v.add("title", fmt.Sprintf("must be at most %d characters", maxTitleLen))
	}
	if utf8.RuneCountInString(description) > maxDescriptionLen {
		v.add("description", fmt.Sprintf("must be at most %d characters", maxDescriptionLen))
	}
	if duration < 1 || duration > maxDurationMin {
		v.add("duration", fmt.Sprintf("must be between 1 and %d minutes", maxDurationMin))
	}
}

func (s *Service) CreateEvent(ctx context.Context, hostID uuid.UUID, in CreateEventInput) (*EventType, error) {
	if _, err := s.repo.GetHostByID(ctx, hostID); err != nil {
		return nil, err
	}

	v := &ValidationError{}
	validateEventFields(v, in.Title, in.Description, in.DurationMinutes)
	if in.LocationType == "" {
		v.add("locationType", "is required")
	} else if _, err := integration.ParsePlatform(string(in.LocationType)); err != nil {
		v.add("locationType", "unknown location type")
	}
	if err := v.orNil(); err != nil {
		return nil, err
	}

	status, err := s.checker.Check(ctx, hostID, in.LocationType)
	if err != nil {
		return nil, fmt.Errorf("check integration: %w", err)
	}
	if !status.IsConnected {
		return nil, fieldError("locationType", fmt.Sprintf("%s is not connected", in.LocationType))
	}

	e := &EventType{
		HostID:          hostID,
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		DurationMinutes: in.DurationMinutes,
		LocationType:    in.LocationType,
		IsVisible:       in.IsVisible == nil || *in.IsVisible,
	}

	base := Slugify(e.Title)
	for attempt := 1; attempt <= maxSlugAttempts; attempt++ {
		e.Slug = base
		if attempt > 1 {
			e.Slug = fmt.Sprintf("%s-%d", base, attempt)
		}
		err = s.repo.CreateEventType(ctx, e)
		if !errors.Is(err, ErrSlugTaken) {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create event type: %w", err)
	}

	s.logEvent(ctx, nil, EventTypeCreated, map[string]any{
		"host_id":  hostID.String(),
		"event_id": e.ID.String(),
		"slug":     e.Slug,
	})
	return e, nil
}

func (s *Service) ListEvents(ctx context.Context, hostID uuid.UUID) ([]EventType, error) {
	events, err := s.repo.ListEventTypes(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("list event types: %w", err)
	}
	return events, nil
}

// GetEvent returns one of hostID's event types.
func (s *Service) GetEvent(ctx context.Context, hostID, id uuid.UUID) (*EventType, error) {
	e, err := s.repo.GetEventType(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.HostID != hostID {
		return nil, ErrEventNotFound
	}
	return e, nil
}

func (s *Service) UpdateEvent(ctx context.Context, hostID, id uuid.UUID, in UpdateEventInput) (*EventType, error) {
	e, err := s.GetEvent(ctx, hostID, id)
	if err != nil {
		return nil, err
	}
	if in.Title != nil {
		e.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		e.Description = *in.Description
	}
	if in.DurationMinutes != nil {
		e.DurationMinutes = *in.DurationMinutes
	}
	if in.IsVisible != nil {
		e.IsVisible = *in.IsVisible
	}

	v := &ValidationError{}
	validateEventFields(v, e.Title, e.Description, e.DurationMinutes)
	if err := v.orNil(); err != nil {
		return nil, err
	}

	if err := s.repo.UpdateEventType(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

func (s *Service) DeleteEvent(ctx context.Context, hostID, id uuid.UUID) error {
	if err := s.repo.DeleteEventType(ctx, hostID, id); err != nil {
		return err
	}
	s.logEvent(ctx, nil, EventTypeDeleted, map[string]any{
		"host_id":  hostID.String(),
		"event_id": id.String(),
	})
	return nil
}

// GetPublicEvent resolves the guest-facing /{username}/{slug} address.
// Hidden event types are reported as not found.
func (s *Service) GetPublicEvent(ctx context.Context, username, slug string) (*PublicEvent, error) {
	host, err := s.repo.GetHostByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	e, err := s.repo.GetEventTypeBySlug(ctx, host.ID, slug)
	if err != nil {
		return nil, err
	}
	if !e.IsVisible {
		return nil, ErrEventNotFound
	}
	return &PublicEvent{Event: *e, Host: *host}, nil
}

// publicEvent loads a visible event type and its host by id.
func (s *Service) publicEvent(ctx context.Context, id uuid.UUID) (*EventType, *Host, error) {
	e, err := s.repo.GetEventType(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if !e.IsVisible {
		return nil, nil, ErrEventNotFound
	}
	host, err := s.repo.GetHostByID(ctx, e.HostID)
	if err != nil {
		return nil, nil, err
	}
	return e, host, nil
}

// Slugify lowercases title and joins its letter and digit runs with dashes.
func Slugify(title string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(title) {
		if r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	slug := strings.TrimSuffix(b.String(), "-")
	if slug == "" {
		return "event"
	}
	return slug
}

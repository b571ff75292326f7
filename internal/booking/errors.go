package booking

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/hackgods/meeting-scheduler/internal/availability"
	"github.com/hackgods/meeting-scheduler/internal/integration"
)

// ConfigurationError reports malformed host availability.
type ConfigurationError = availability.ConfigurationError

// ErrNotFound is wrapped by every lookup miss so callers can test for the
// whole class with errors.Is.
var ErrNotFound = errors.New("not found")

var (
	ErrHostNotFound     = fmt.Errorf("host %w", ErrNotFound)
	ErrEventNotFound    = fmt.Errorf("event type %w", ErrNotFound)
	ErrBookingNotFound  = fmt.Errorf("booking %w", ErrNotFound)
	ErrOverrideNotFound = fmt.Errorf("date override %w", ErrNotFound)
)

var (
	// ErrSlotUnavailable means the requested start is no longer bookable and
	// the guest has to pick another slot.
	ErrSlotUnavailable  = errors.New("slot is no longer available")
	ErrAlreadyCancelled = errors.New("booking is already cancelled")
	ErrSlugTaken        = errors.New("event slug already in use")
	ErrUsernameTaken    = errors.New("username already in use")

	// ErrBookingConflict is returned by repositories when an insert would
	// overlap a confirmed booking of the same host.
	ErrBookingConflict = errors.New("booking overlaps a confirmed booking")

	// ErrAvailabilityNotFound is returned by repositories for hosts that
	// never saved weekly rules.
	ErrAvailabilityNotFound = errors.New("availability not set")
)

// ValidationError carries per-field messages for malformed input.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, exists := e.Fields[field]; !exists {
		e.Fields[field] = msg
	}
}

// orNil returns e as an error only when it recorded something.
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func fieldError(field, msg string) error {
	return &ValidationError{Fields: map[string]string{field: msg}}
}

// IntegrationError means the external meeting-link provider failed. The
// booking was not committed.
type IntegrationError struct {
	Platform integration.Platform
	Err      error
}

func (e *IntegrationError) Error() string {
	return fmt.Sprintf("create %s meeting: %v", e.Platform, e.Err)
}

func (e *IntegrationError) Unwrap() error { return e.Err }

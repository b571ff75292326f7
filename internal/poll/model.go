package poll

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/meeting-scheduler/internal/booking"
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusActive    Status = "active"
	StatusClosed    Status = "closed"
	StatusExpired   Status = "expired"
	StatusFinalized Status = "finalized"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusDraft, StatusActive, StatusClosed, StatusExpired, StatusFinalized:
		return st, nil
	}
	return "", invalid("status", fmt.Sprintf("unknown status %q", s))
}

var (
	ErrPollNotFound      = fmt.Errorf("poll %w", booking.ErrNotFound)
	ErrPollNotActive     = errors.New("poll is not accepting votes")
	ErrInvalidTransition = errors.New("invalid poll status change")
	// ErrStatusChanged means the stored status moved on between read and write.
	ErrStatusChanged     = fmt.Errorf("%w: status changed by another request", ErrInvalidTransition)
)

// Vote is one participant's choice. A participant has at most one vote per
// poll; voting again replaces it.
type Vote struct {
	Participant   string      `json:"participant"`
	SelectedSlots []time.Time `json:"selectedSlots"`
	VotedAt       time.Time   `json:"votedAt"`
}

// Poll lets participants vote on candidate meeting times. Slots are free
// form: no overlap or duration constraint applies to them.
type Poll struct {
	ID                 uuid.UUID
	HostID             uuid.UUID
	Title              string
	Description        string
	DurationMinutes    int
	Slots              []time.Time
	Votes              []Vote
	Status             Status
	AllowMultipleVotes bool
	Deadline           *time.Time
	AutoClose          bool
	FinalSlot          *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func (p *Poll) hasSlot(t time.Time) bool {
	for _, s := range p.Slots {
		if s.Equal(t) {
			return true
		}
	}
	return false
}

// ListFilter narrows List. Query matches title or description, case
// insensitively.
type ListFilter struct {
	HostID uuid.UUID
	Status Status
	Query  string
}

func invalid(field, msg string) error {
	return &booking.ValidationError{Fields: map[string]string{field: msg}}
}

package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hackgods/meeting-scheduler/internal/availability"
)

type FlowState string

const (
	StateSelectingDate   FlowState = "SELECTING_DATE"
	StateSelectingSlot   FlowState = "SELECTING_SLOT"
	StateEnteringDetails FlowState = "ENTERING_DETAILS"
	StateSubmitting      FlowState = "SUBMITTING"
	StateConfirmed       FlowState = "CONFIRMED"
	StateFailed          FlowState = "FAILED"
)

// FailureKind says where a failed submission sends the guest back to.
type FailureKind string

const (
	FailureValidation      FailureKind = "validation"
	FailureSlotUnavailable FailureKind = "slot_unavailable"
	FailureIntegration     FailureKind = "integration"
	FailureNotFound        FailureKind = "not_found"
	FailureOther           FailureKind = "other"
)

var (
	ErrInvalidTransition = errors.New("invalid booking flow transition")
	ErrSlotNotOffered    = errors.New("slot is not offered on the selected date")
)

var flowTransitions = map[FlowState][]FlowState{
	StateSelectingDate:   {StateSelectingDate, StateSelectingSlot},
	StateSelectingSlot:   {StateSelectingDate, StateSelectingSlot, StateEnteringDetails},
	StateEnteringDetails: {StateSelectingDate, StateSelectingSlot, StateSubmitting},
	StateSubmitting:      {StateConfirmed, StateFailed},
	StateFailed:          {StateSelectingSlot, StateEnteringDetails},
}

func canTransition(from, to FlowState) bool {
	for _, s := range flowTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Flow is one guest's walk through the booking page. It is not safe for
// concurrent use.
type Flow struct {
	State       FlowState
	Location    *time.Location
	Format      availability.HourFormat
	Date        availability.Date
	Slots       []availability.Display
	Slot        *availability.Display
	Failure     FailureKind
	Err         error
	MeetingLink string
}

func NewFlow(loc *time.Location, format availability.HourFormat) *Flow {
	if loc == nil {
		loc = time.UTC
	}
	if format == "" {
		format = availability.Format24h
	}
	return &Flow{State: StateSelectingDate, Location: loc, Format: format}
}

func (f *Flow) move(to FlowState) error {
	if !canTransition(f.State, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.State, to)
	}
	f.State = to
	return nil
}

// SelectDate picks a calendar day. A day without slots keeps the guest on
// date selection.
func (f *Flow) SelectDate(day availability.DaySlots) error {
	if len(day.Slots) == 0 {
		if f.State != StateSelectingDate {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.State, StateSelectingDate)
		}
		return nil
	}
	if err := f.move(StateSelectingSlot); err != nil {
		return err
	}
	f.Date = day.Date
	f.Slots = make([]availability.Display, len(day.Slots))
	for i, d := range day.Slots {
		f.Slots[i] = availability.Project(d.Start, f.Location, f.Format)
	}
	f.Slot = nil
	return nil
}

// SelectSlot picks one of the offered slots by identifier.
func (f *Flow) SelectSlot(id string) error {
	if f.State != StateSelectingSlot {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, f.State, StateSelectingSlot)
	}
	for i := range f.Slots {
		if f.Slots[i].ID == id {
			slot := f.Slots[i]
			f.Slot = &slot
			return nil
		}
	}
	return ErrSlotNotOffered
}

// Next advances to the details form once a slot is selected.
func (f *Flow) Next() error {
	if f.Slot == nil {
		return fmt.Errorf("%w: no slot selected", ErrInvalidTransition)
	}
	return f.move(StateEnteringDetails)
}

// Submit sends the form for the selected slot through submit and lands in
// Confirmed or Failed. The submit error is returned unchanged.
func (f *Flow) Submit(ctx context.Context, submit func(ctx context.Context, slotID string) (*Confirmation, error)) error {
	if err := f.move(StateSubmitting); err != nil {
		return err
	}
	conf, err := submit(ctx, f.Slot.ID)
	if err != nil {
		f.State = StateFailed
		f.Failure = ClassifyFailure(err)
		f.Err = err
		return err
	}
	f.State = StateConfirmed
	f.MeetingLink = conf.MeetingLink
	f.Failure, f.Err = "", nil
	return nil
}

// Retry leaves Failed. A lost slot sends the guest back to slot selection
// with the offered slots cleared, so they must be reloaded with SelectDate.
// Anything else returns to the form.
func (f *Flow) Retry() error {
	if f.State != StateFailed {
		return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, f.State)
	}
	if f.Failure == FailureSlotUnavailable {
		f.Slot = nil
		f.Slots = nil
		f.State = StateSelectingSlot
	} else {
		f.State = StateEnteringDetails
	}
	f.Failure, f.Err = "", nil
	return nil
}

// SetHourFormat relabels the offered slots. State and selection are kept.
func (f *Flow) SetHourFormat(format availability.HourFormat) {
	f.Format = format
	for i, d := range f.Slots {
		f.Slots[i] = availability.Project(d.Start, f.Location, format)
	}
	if f.Slot != nil {
		relabelled := availability.Project(f.Slot.Start, f.Location, format)
		f.Slot = &relabelled
	}
}

func ClassifyFailure(err error) FailureKind {
	var (
		valErr *ValidationError
		intErr *IntegrationError
	)
	switch {
	case errors.As(err, &valErr):
		return FailureValidation
	case errors.Is(err, ErrSlotUnavailable):
		return FailureSlotUnavailable
	case errors.As(err, &intErr):
		return FailureIntegration
	case errors.Is(err, ErrNotFound):
		return FailureNotFound
	default:
		return FailureOther
	}
}

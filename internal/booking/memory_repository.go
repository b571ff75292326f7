package booking

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/meeting-scheduler/internal/availability"
)

// MemoryRepository keeps everything in process. CreateBooking holds the
// write lock across the overlap check, the insert and finalize, which gives
// the same exclusivity the PostgreSQL exclusion constraint does.
type MemoryRepository struct {
	mu        sync.RWMutex
	hosts     map[uuid.UUID]Host
	rules     map[uuid.UUID]availability.Rules
	overrides map[uuid.UUID]map[availability.Date]availability.Override
	events    map[uuid.UUID]EventType
	bookings  map[uuid.UUID]Booking
	logs      []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		hosts:     make(map[uuid.UUID]Host),
		rules:     make(map[uuid.UUID]availability.Rules),
		overrides: make(map[uuid.UUID]map[availability.Date]availability.Override),
		events:    make(map[uuid.UUID]EventType),
		bookings:  make(map[uuid.UUID]Booking),
	}
}

func (r *MemoryRepository) CreateHost(_ context.Context, h *Host) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	for _, existing := range r.hosts {
		if strings.EqualFold(existing.Username, h.Username) && existing.ID != h.ID {
			return ErrUsernameTaken
		}
	}
	now := time.Now()
	h.CreatedAt, h.UpdatedAt = now, now
	r.hosts[h.ID] = *h
	return nil
}

func (r *MemoryRepository) GetHostByID(_ context.Context, id uuid.UUID) (*Host, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.hosts[id]
	if !ok {
		return nil, ErrHostNotFound
	}
	return &h, nil
}

func (r *MemoryRepository) GetHostByUsername(_ context.Context, username string) (*Host, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, h := range r.hosts {
		if strings.EqualFold(h.Username, username) {
			return &h, nil
		}
	}
	return nil, ErrHostNotFound
}

func (r *MemoryRepository) GetAvailability(_ context.Context, hostID uuid.UUID) (*availability.Rules, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rules, ok := r.rules[hostID]
	if !ok {
		return nil, ErrAvailabilityNotFound
	}
	return cloneRules(rules), nil
}

func (r *MemoryRepository) SaveAvailability(_ context.Context, hostID uuid.UUID, rules availability.Rules) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[hostID] = *cloneRules(rules)
	return nil
}

func (r *MemoryRepository) ListOverrides(_ context.Context, hostID uuid.UUID, from, to availability.Date) ([]availability.Override, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []availability.Override{}
	for d, o := range r.overrides[hostID] {
		if !from.IsZero() && d.Before(from) {
			continue
		}
		if !to.IsZero() && d.After(to) {
			continue
		}
		o.Windows = append([]availability.Window{}, o.Windows...)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (r *MemoryRepository) UpsertOverride(_ context.Context, hostID uuid.UUID, o availability.Override) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	byDate, ok := r.overrides[hostID]
	if !ok {
		byDate = make(map[availability.Date]availability.Override)
		r.overrides[hostID] = byDate
	}
	o.Windows = append([]availability.Window{}, o.Windows...)
	byDate[o.Date] = o
	return nil
}

func (r *MemoryRepository) DeleteOverride(_ context.Context, hostID uuid.UUID, date availability.Date) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.overrides[hostID][date]; !ok {
		return ErrOverrideNotFound
	}
	delete(r.overrides[hostID], date)
	return nil
}

func (r *MemoryRepository) CreateEventType(_ context.Context, e *EventType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.events {
		if existing.HostID == e.HostID && existing.Slug == e.Slug {
			return ErrSlugTaken
		}
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now()
	e.CreatedAt, e.UpdatedAt = now, now
	r.events[e.ID] = *e
	return nil
}

func (r *MemoryRepository) GetEventType(_ context.Context, id uuid.UUID) (*EventType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &e, nil
}

func (r *MemoryRepository) GetEventTypeBySlug(_ context.Context, hostID uuid.UUID, slug string) (*EventType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.events {
		if e.HostID == hostID && e.Slug == slug {
			return &e, nil
		}
	}
	return nil, ErrEventNotFound
}

func (r *MemoryRepository) ListEventTypes(_ context.Context, hostID uuid.UUID) ([]EventType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []EventType{}
	for _, e := range r.events {
		if e.HostID == hostID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Slug < out[j].Slug
	})
	return out, nil
}

func (r *MemoryRepository) UpdateEventType(_ context.Context, e *EventType) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev, ok := r.events[e.ID]
	if !ok || prev.HostID != e.HostID {
		return ErrEventNotFound
	}
	e.CreatedAt = prev.CreatedAt
	e.UpdatedAt = time.Now()
	r.events[e.ID] = *e
	return nil
}

func (r *MemoryRepository) DeleteEventType(_ context.Context, hostID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok || e.HostID != hostID {
		return ErrEventNotFound
	}
	delete(r.events, id)
	return nil
}

func (r *MemoryRepository) CreateBooking(ctx context.Context, b *Booking, finalize FinalizeFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.bookings {
		if existing.HostID != b.HostID || existing.Status != StatusConfirmed {
			continue
		}
		if existing.StartTime.Before(b.EndTime) && b.StartTime.Before(existing.EndTime) {
			return ErrBookingConflict
		}
	}

	staged := *b
	if staged.ID == uuid.Nil {
		staged.ID = uuid.New()
	}
	staged.CreatedAt = time.Now()
	if finalize != nil {
		if err := finalize(ctx, &staged); err != nil {
			return err
		}
	}
	// Commit fails closed on a cancelled or expired request.
	if err := ctx.Err(); err != nil {
		return err
	}

	r.bookings[staged.ID] = staged
	*b = staged
	return nil
}

func (r *MemoryRepository) GetBooking(_ context.Context, id uuid.UUID) (*Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bookings[id]
	if !ok {
		return nil, ErrBookingNotFound
	}
	return &b, nil
}

func (r *MemoryRepository) ListBookings(_ context.Context, f BookingFilter) ([]Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []Booking{}
	for _, b := range r.bookings {
		if b.HostID != f.HostID {
			continue
		}
		if f.Status != "" && b.Status != f.Status {
			continue
		}
		if !f.From.IsZero() && b.EndTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !b.StartTime.Before(f.To) {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return []Booking{}, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *MemoryRepository) ListBusy(_ context.Context, hostID uuid.UUID, from, to time.Time) ([]availability.Interval, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []availability.Interval
	for _, b := range r.bookings {
		if b.HostID != hostID || b.Status != StatusConfirmed {
			continue
		}
		if b.StartTime.Before(to) && from.Before(b.EndTime) {
			out = append(out, availability.Interval{Start: b.StartTime, End: b.EndTime})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Start.Before(out[j].Start) })
	return out, nil
}

func (r *MemoryRepository) CancelBooking(_ context.Context, hostID, id uuid.UUID, reason string, at time.Time) (*Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok || b.HostID != hostID {
		return nil, ErrBookingNotFound
	}
	if b.Status != StatusConfirmed {
		return nil, ErrAlreadyCancelled
	}
	b.Status = StatusCancelled
	b.CancelReason = reason
	b.CancelledAt = &at
	r.bookings[id] = b
	return &b, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	ev.ID = int64(len(r.logs) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	r.logs = append(r.logs, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]EventLog(nil), r.logs...)
}

func cloneRules(rules availability.Rules) *availability.Rules {
	out := rules
	out.Days = make([]availability.DayRule, len(rules.Days))
	for i, d := range rules.Days {
		d.Windows = append([]availability.Window{}, d.Windows...)
		out.Days[i] = d
	}
	return &out
}

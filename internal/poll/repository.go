package poll

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Repository stores polls and their votes.
type Repository interface {
	Create(ctx context.Context, p *Poll) error
	Get(ctx context.Context, id uuid.UUID) (*Poll, error)
	List(ctx context.Context, f ListFilter) ([]Poll, error)
	Delete(ctx context.Context, hostID, id uuid.UUID) error

	// UpsertVote stores v, replacing any earlier vote by the same
	// participant (compared case-insensitively).
	UpsertVote(ctx context.Context, pollID uuid.UUID, v Vote) error

	// ListDue returns active auto-close polls whose deadline is at or
	// before now.
	ListDue(ctx context.Context, now time.Time) ([]Poll, error)

	// SetStatus stores p.Status and p.FinalSlot only if the stored status
	// is still from, otherwise it returns ErrStatusChanged.
	SetStatus(ctx context.Context, p *Poll, from Status) error

	// Expire marks the poll expired if it is still active, auto-closing and
	// due at now. It reports whether the poll changed.
	Expire(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
}

func isDue(p Poll, now time.Time) bool {
	return p.Status == StatusActive && p.AutoClose && p.Deadline != nil && !p.Deadline.After(now)
}

func participantKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

type MemoryRepository struct {
	mu    sync.RWMutex
	polls map[uuid.UUID]Poll
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{polls: make(map[uuid.UUID]Poll)}
}

func clonePoll(p Poll) Poll {
	p.Slots = append([]time.Time(nil), p.Slots...)
	votes := make([]Vote, len(p.Votes))
	for i, v := range p.Votes {
		v.SelectedSlots = append([]time.Time(nil), v.SelectedSlots...)
		votes[i] = v
	}
	p.Votes = votes
	return p
}

func (r *MemoryRepository) Create(_ context.Context, p *Poll) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	r.polls[p.ID] = clonePoll(*p)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Poll, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.polls[id]
	if !ok {
		return nil, ErrPollNotFound
	}
	out := clonePoll(p)
	return &out, nil
}

func (r *MemoryRepository) List(_ context.Context, f ListFilter) ([]Poll, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := []Poll{}
	for _, p := range r.polls {
		if p.HostID != f.HostID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Title), q) && !strings.Contains(strings.ToLower(p.Description), q) {
			continue
		}
		out = append(out, clonePoll(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *MemoryRepository) SetStatus(_ context.Context, p *Poll, from Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.polls[p.ID]
	if !ok || stored.HostID != p.HostID {
		return ErrPollNotFound
	}
	if stored.Status != from {
		return ErrStatusChanged
	}
	stored.Status = p.Status
	stored.FinalSlot = nil
	if p.FinalSlot != nil {
		slot := *p.FinalSlot
		stored.FinalSlot = &slot
	}
	stored.UpdatedAt = time.Now()
	p.UpdatedAt = stored.UpdatedAt
	r.polls[p.ID] = stored
	return nil
}

func (r *MemoryRepository) Expire(_ context.Context, id uuid.UUID, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.polls[id]
	if !ok || !isDue(p, now) {
		return false, nil
	}
	p.Status = StatusExpired
	p.UpdatedAt = time.Now()
	r.polls[id] = p
	return true, nil
}

func (r *MemoryRepository) Delete(_ context.Context, hostID, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.polls[id]
	if !ok || p.HostID != hostID {
		return ErrPollNotFound
	}
	delete(r.polls, id)
	return nil
}

func (r *MemoryRepository) UpsertVote(_ context.Context, pollID uuid.UUID, v Vote) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.polls[pollID]
	if !ok {
		return ErrPollNotFound
	}
	v.SelectedSlots = append([]time.Time(nil), v.SelectedSlots...)
	key := participantKey(v.Participant)
	replaced := false
	for i := range p.Votes {
		if participantKey(p.Votes[i].Participant) == key {
			p.Votes[i] = v
			replaced = true
			break
		}
	}
	if !replaced {
		p.Votes = append(p.Votes, v)
	}
	r.polls[pollID] = p
	return nil
}

func (r *MemoryRepository) ListDue(_ context.Context, now time.Time) ([]Poll, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Poll
	for _, p := range r.polls {
		if isDue(p, now) {
			out = append(out, clonePoll(p))
		}
	}
	return out, nil
}

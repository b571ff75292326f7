package poll

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/meeting-scheduler/internal/booking"
	"github.com/hackgods/meeting-scheduler/internal/metrics"
)

const maxParticipantLen = 100

// statusTransitions lists the status changes a host may make by hand.
// Expired is only reached through CloseExpired and finalized through
// Finalize.
var statusTransitions = map[Status][]Status{
	StatusDraft:   {StatusActive, StatusClosed},
	StatusActive:  {StatusClosed},
	StatusClosed:  {StatusActive},
	StatusExpired: {StatusActive, StatusClosed},
}

type Service struct {
	repo Repository
	log  zerolog.Logger
	now  func() time.Time
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  logger.With().Str("component", "poll").Logger(),
		now:  time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

type CreateInput struct {
	Title              string     `json:"title"`
	Description        string     `json:"description"`
	DurationMinutes    int        `json:"duration"`
	Slots              []string   `json:"slots"`
	AllowMultipleVotes bool       `json:"allowMultipleVotes"`
	Deadline           *time.Time `json:"deadline"`
	AutoClose          bool       `json:"autoClose"`
	Draft              bool       `json:"draft"`
}

type VoteInput struct {
	Participant string   `json:"participant"`
	Slots       []string `json:"slots"`
}

// SlotTally is the vote count of one candidate slot.
type SlotTally struct {
	Slot         time.Time `json:"slot"`
	Votes        int       `json:"votes"`
	Participants []string  `json:"participants"`
	Percentage   float64   `json:"percentage"`
}

type Results struct {
	PollID       uuid.UUID   `json:"pollId"`
	Status       Status      `json:"status"`
	Participants int         `json:"participants"`
	Slots        []SlotTally `json:"slots"`
	FinalSlot    *time.Time  `json:"finalSlot,omitempty"`
}

func parseSlots(raw []string) ([]time.Time, error) {
	out := make([]time.Time, 0, len(raw))
	for _, r := range raw {
		t, err := time.Parse(time.RFC3339, strings.TrimSpace(r))
		if err != nil {
			return nil, fmt.Errorf("%q is not an RFC 3339 timestamp", r)
		}
		out = append(out, t.UTC())
	}
	return out, nil
}

func distinct(slots []time.Time) bool {
	seen := make(map[int64]struct{}, len(slots))
	for _, s := range slots {
		if _, ok := seen[s.Unix()]; ok {
			return false
		}
		seen[s.Unix()] = struct{}{}
	}
	return true
}

func (s *Service) Create(ctx context.Context, hostID uuid.UUID, in CreateInput) (*Poll, error) {
	fields := map[string]string{}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		fields["title"] = "is required"
	}
	if in.DurationMinutes <= 0 {
		fields["duration"] = "must be positive"
	}
	slots, err := parseSlots(in.Slots)
	switch {
	case err != nil:
		fields["slots"] = err.Error()
	case len(slots) == 0:
		fields["slots"] = "at least one slot is required"
	case !distinct(slots):
		fields["slots"] = "slots must be distinct"
	}
	if in.AutoClose && in.Deadline == nil {
		fields["deadline"] = "is required when autoClose is set"
	}
	if len(fields) > 0 {
		return nil, &booking.ValidationError{Fields: fields}
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].Before(slots[j]) })

	status := StatusActive
	if in.Draft {
		status = StatusDraft
	}
	p := &Poll{
		HostID:             hostID,
		Title:              title,
		Description:        strings.TrimSpace(in.Description),
		DurationMinutes:    in.DurationMinutes,
		Slots:              slots,
		Votes:              []Vote{},
		Status:             status,
		AllowMultipleVotes: in.AllowMultipleVotes,
		Deadline:           in.Deadline,
		AutoClose:          in.AutoClose,
	}
	if err := s.repo.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create poll: %w", err)
	}
	return p, nil
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Poll, error) {
	if f.Status != "" {
		if _, err := ParseStatus(string(f.Status)); err != nil {
			return nil, err
		}
	}
	return s.repo.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Poll, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) owned(ctx context.Context, hostID, id uuid.UUID) (*Poll, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.HostID != hostID {
		return nil, ErrPollNotFound
	}
	return p, nil
}

func (s *Service) UpdateStatus(ctx context.Context, hostID, id uuid.UUID, status Status) (*Poll, error) {
	if _, err := ParseStatus(string(status)); err != nil {
		return nil, err
	}
	p, err := s.owned(ctx, hostID, id)
	if err != nil {
		return nil, err
	}
	if p.Status == status {
		return p, nil
	}
	allowed := false
	for _, to := range statusTransitions[p.Status] {
		if to == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, p.Status, status)
	}
	if status == StatusActive && p.Deadline != nil && !p.Deadline.After(s.now()) {
		return nil, invalid("deadline", "has passed; move it before reopening")
	}

	from := p.Status
	p.Status = status
	if err := s.repo.SetStatus(ctx, p, from); err != nil {
		return nil, fmt.Errorf("update poll status: %w", err)
	}
	if status == StatusClosed {
		metrics.IncPollClosed(string(status))
	}
	return p, nil
}

func (s *Service) Delete(ctx context.Context, hostID, id uuid.UUID) error {
	return s.repo.Delete(ctx, hostID, id)
}

// SubmitVote records a participant's choice. Voting again under the same
// name replaces the earlier vote.
func (s *Service) SubmitVote(ctx context.Context, id uuid.UUID, in VoteInput) (*Poll, error) {
	participant := strings.TrimSpace(in.Participant)
	switch {
	case participant == "":
		return nil, invalid("participant", "is required")
	case utf8.RuneCountInString(participant) > maxParticipantLen:
		return nil, invalid("participant", fmt.Sprintf("must be at most %d characters", maxParticipantLen))
	}

	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if p.Status != StatusActive {
		return nil, fmt.Errorf("%w: poll is %s", ErrPollNotActive, p.Status)
	}
	if p.Deadline != nil && !now.Before(*p.Deadline) {
		return nil, fmt.Errorf("%w: deadline passed", ErrPollNotActive)
	}

	selected, err := parseSlots(in.Slots)
	if err != nil {
		return nil, invalid("slots", err.Error())
	}
	switch {
	case len(selected) == 0:
		return nil, invalid("slots", "select at least one slot")
	case !p.AllowMultipleVotes && len(selected) != 1:
		return nil, invalid("slots", "this poll accepts exactly one slot")
	case !distinct(selected):
		return nil, invalid("slots", "slots must be distinct")
	}
	for _, t := range selected {
		if !p.hasSlot(t) {
			return nil, invalid("slots", fmt.Sprintf("%s is not one of the poll's slots", t.Format(time.RFC3339)))
		}
	}

	v := Vote{Participant: participant, SelectedSlots: selected, VotedAt: now}
	if err := s.repo.UpsertVote(ctx, id, v); err != nil {
		return nil, fmt.Errorf("save vote: %w", err)
	}
	metrics.IncPollVote()
	return s.repo.Get(ctx, id)
}

// Tally counts votes per slot, most voted first and earlier slots first on
// ties. Percentages are of all participants, rounded to one decimal.
func Tally(p *Poll) Results {
	counts := make(map[int64]*SlotTally, len(p.Slots))
	tallies := make([]*SlotTally, 0, len(p.Slots))
	for _, slot := range p.Slots {
		t := &SlotTally{Slot: slot, Participants: []string{}}
		counts[slot.Unix()] = t
		tallies = append(tallies, t)
	}
	for _, v := range p.Votes {
		for _, slot := range v.SelectedSlots {
			if t, ok := counts[slot.Unix()]; ok {
				t.Votes++
				t.Participants = append(t.Participants, v.Participant)
			}
		}
	}

	total := len(p.Votes)
	out := make([]SlotTally, len(tallies))
	for i, t := range tallies {
		if total > 0 {
			t.Percentage = math.Round(float64(t.Votes)/float64(total)*1000) / 10
		}
		out[i] = *t
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Votes != out[j].Votes {
			return out[i].Votes > out[j].Votes
		}
		return out[i].Slot.Before(out[j].Slot)
	})

	return Results{
		PollID:       p.ID,
		Status:       p.Status,
		Participants: total,
		Slots:        out,
		FinalSlot:    p.FinalSlot,
	}
}

func (s *Service) Results(ctx context.Context, id uuid.UUID) (Results, error) {
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Results{}, err
	}
	return Tally(p), nil
}

// Finalize fixes the meeting time to one of the poll's slots and stops
// voting.
func (s *Service) Finalize(ctx context.Context, hostID, id uuid.UUID, slot string) (*Poll, error) {
	picked, err := parseSlots([]string{slot})
	if err != nil {
		return nil, invalid("slot", "must be an RFC 3339 timestamp")
	}
	p, err := s.owned(ctx, hostID, id)
	if err != nil {
		return nil, err
	}
	if p.Status == StatusFinalized {
		return nil, fmt.Errorf("%w: poll is already finalized", ErrInvalidTransition)
	}
	if !p.hasSlot(picked[0]) {
		return nil, invalid("slot", "is not one of the poll's slots")
	}

	from := p.Status
	p.Status = StatusFinalized
	p.FinalSlot = &picked[0]
	if err := s.repo.SetStatus(ctx, p, from); err != nil {
		return nil, fmt.Errorf("finalize poll: %w", err)
	}
	metrics.IncPollClosed(string(StatusFinalized))
	s.log.Info().
		Str("poll_id", p.ID.String()).
		Time("final_slot", picked[0]).
		Msg("poll finalized")
	return p, nil
}

// CloseExpired marks every active auto-close poll whose deadline passed as
// expired and returns how many were closed. A failing poll does not stop
// the rest. Polls whose status changed after listing are left alone.
func (s *Service) CloseExpired(ctx context.Context) (int, error) {
	now := s.now()
	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list due polls: %w", err)
	}

	var (
		closed int
		errs   []error
	)
	for i := range due {
		p := &due[i]
		ok, err := s.repo.Expire(ctx, p.ID, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("expire poll %s: %w", p.ID, err))
			continue
		}
		if !ok {
			continue
		}
		closed++
		metrics.IncPollClosed(string(StatusExpired))
		s.log.Info().Str("poll_id", p.ID.String()).Msg("poll expired")
	}
	return closed, errors.Join(errs...)
}

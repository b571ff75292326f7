package availability

import "time"

// Schedule is a host's validated weekly rules plus date overrides, ready to
// answer slot queries. It holds no mutable state and is safe for concurrent use.
type Schedule struct {
	rules     Rules
	loc       *time.Location
	overrides map[Date]Override
}

func NewSchedule(rules Rules, overrides []Override) (*Schedule, error) {
	normalized, err := rules.Normalize()
	if err != nil {
		return nil, err
	}
	loc, err := LoadLocation(normalized.Timezone)
	if err != nil {
		return nil, configErr("timezone", "unknown timezone %q", normalized.Timezone)
	}

	byDate := make(map[Date]Override, len(overrides))
	for _, o := range overrides {
		if err := o.Validate(); err != nil {
			return nil, err
		}
		byDate[o.Date] = o
	}
	return &Schedule{rules: normalized, loc: loc, overrides: byDate}, nil
}

// Location is the host zone that wall-clock rules are interpreted in.
func (s *Schedule) Location() *time.Location { return s.loc }

func (s *Schedule) TimeGap() int { return s.rules.TimeGap }

// Resolve returns the windows for host date d: the override for d when one
// exists, otherwise the weekly rule for d's weekday.
func (s *Schedule) Resolve(d Date) ([]Window, bool) {
	if o, ok := s.overrides[d]; ok {
		if !o.IsAvailable {
			return nil, false
		}
		return o.Windows, true
	}
	rule := s.rules.Day(d.Weekday())
	if !rule.IsAvailable {
		return nil, false
	}
	return rule.Windows, true
}

// Slots returns the bookable start times on host date d for a meeting of
// the given duration.
func (s *Schedule) Slots(d Date, duration time.Duration, busy []Interval) []time.Time {
	windows, ok := s.Resolve(d)
	if !ok {
		return nil
	}
	return FitDuration(GenerateCandidates(d, s.loc, windows, s.rules.TimeGap), duration, busy)
}

// SlotsBetween returns every bookable start time in [from, to), walking all
// host dates that the range touches.
func (s *Schedule) SlotsBetween(from, to time.Time, duration time.Duration, busy []Interval) []time.Time {
	if !from.Before(to) {
		return nil
	}
	first := DateOf(from.In(s.loc))
	last := DateOf(to.In(s.loc))

	var out []time.Time
	for d := first; !d.After(last); d = d.AddDays(1) {
		for _, t := range s.Slots(d, duration, busy) {
			if !t.Before(from) && t.Before(to) {
				out = append(out, t)
			}
		}
	}
	return out
}

// Contains reports whether start is a bookable slot for duration.
func (s *Schedule) Contains(start time.Time, duration time.Duration, busy []Interval) bool {
	d := DateOf(start.In(s.loc))
	for _, t := range s.Slots(d, duration, busy) {
		if t.Equal(start) {
			return true
		}
	}
	return false
}

// DaySlots is one viewer-local calendar day of the public booking calendar.
type DaySlots struct {
	Date        Date      `json:"date"`
	Day         Weekday   `json:"day"`
	IsAvailable bool      `json:"isAvailable"`
	Slots       []Display `json:"slots"`
}

// ViewerQuery describes the guest's calendar page.
type ViewerQuery struct {
	Location *time.Location
	From     Date
	Days     int
	Format   HourFormat
	// NotBefore hides slots that start earlier, typically now plus notice.
	NotBefore time.Time
}

// ForViewer computes the slots for q.Days viewer-local dates starting at
// q.From. A slot belongs to the viewer date its projection falls on, which is
// not necessarily the host date it was generated for.
func (s *Schedule) ForViewer(q ViewerQuery, duration time.Duration, busy []Interval) []DaySlots {
	loc := q.Location
	if loc == nil {
		loc = time.UTC
	}
	if q.Days <= 0 {
		return nil
	}

	start := q.From.Midnight(loc)
	end := q.From.AddDays(q.Days).Midnight(loc)
	slots := s.SlotsBetween(start, end, duration, busy)
	if !q.NotBefore.IsZero() {
		slots = NotBefore(slots, q.NotBefore)
	}
	return GroupByDate(slots, loc, q.From, q.Days, q.Format)
}

// GroupByDate buckets instants into days viewer-local dates from first on.
// Instants outside that range are dropped.
func GroupByDate(slots []time.Time, loc *time.Location, first Date, days int, f HourFormat) []DaySlots {
	out := make([]DaySlots, days)
	index := make(map[Date]int, days)
	for i := 0; i < days; i++ {
		d := first.AddDays(i)
		out[i] = DaySlots{Date: d, Day: d.Weekday(), Slots: []Display{}}
		index[d] = i
	}
	for _, t := range slots {
		disp := Project(t, loc, f)
		i, ok := index[disp.Date]
		if !ok {
			continue
		}
		out[i].Slots = append(out[i].Slots, disp)
		out[i].IsAvailable = true
	}
	return out
}

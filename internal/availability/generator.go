package availability

import "time"

// Interval is a half-open absolute range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether [start, end) intersects i.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && i.Start.Before(end)
}

// Candidate is a generated start time together with the window it came from,
// so the duration filter can check fit against the right end.
type Candidate struct {
	Start  time.Time
	Window Interval
}

// GenerateCandidates walks each window on date in gap-minute wall-clock steps
// and emits every point strictly before the window end. Windows are handled
// independently and concatenated in the order given. A window shorter than
// the gap contributes nothing. Wall-clock times that do not exist in loc
// (spring-forward gaps) are skipped.
func GenerateCandidates(date Date, loc *time.Location, windows []Window, gap int) []Candidate {
	if gap <= 0 || len(windows) == 0 {
		return nil
	}
	if loc == nil {
		loc = time.UTC
	}

	var out []Candidate
	for _, w := range windows {
		if w.Start >= w.End || w.Minutes() < gap {
			continue
		}
		win := Interval{Start: date.At(w.Start, loc), End: date.At(w.End, loc)}
		for c := w.Start; c < w.End; c += Clock(gap) {
			t := date.At(c, loc)
			if ClockOf(t) != c || DateOf(t) != date {
				continue
			}
			out = append(out, Candidate{Start: t, Window: win})
		}
	}
	return out
}

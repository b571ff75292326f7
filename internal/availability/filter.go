package availability

import (
	"sort"
	"time"
)

// FitDuration keeps the candidates t for which [t, t+duration) ends within
// the candidate's window and misses every busy interval. The result is sorted
// ascending and holds each instant once, so overlapping host windows do not
// produce duplicate slots.
func FitDuration(candidates []Candidate, duration time.Duration, busy []Interval) []time.Time {
	if duration <= 0 {
		return nil
	}

	seen := make(map[int64]struct{}, len(candidates))
	var out []time.Time
	for _, c := range candidates {
		end := c.Start.Add(duration)
		if end.After(c.Window.End) {
			continue
		}
		if overlapsAny(c.Start, end, busy) {
			continue
		}
		key := c.Start.Unix()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c.Start)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// NotBefore drops slots starting before cutoff.
func NotBefore(slots []time.Time, cutoff time.Time) []time.Time {
	out := slots[:0:0]
	for _, s := range slots {
		if !s.Before(cutoff) {
			out = append(out, s)
		}
	}
	return out
}

func overlapsAny(start, end time.Time, busy []Interval) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

package availability

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Clock is a local wall-clock time expressed as minutes since midnight.
// 24:00 (1440) is only meaningful as the end of a window.
type Clock int

const endOfDay Clock = 24 * 60

// ParseClock accepts "HH:MM". A trailing seconds part ("09:00:00", as
// PostgreSQL renders TIME columns) is tolerated and must be zero.
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if len(parts) == 3 && strings.TrimLeft(parts[2], "0.") != "" {
		return 0, fmt.Errorf("invalid time %q, seconds are not supported", s)
	}
	c := Clock(h*60 + m)
	if h < 0 || m < 0 || m > 59 || c > endOfDay {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return c, nil
}

func ClockOf(t time.Time) Clock {
	return Clock(t.Hour()*60 + t.Minute())
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60)
}

func (c Clock) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *Clock) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Window is one same-day availability range [Start, End).
type Window struct {
	Start Clock `json:"startTime"`
	End   Clock `json:"endTime"`
}

func (w Window) Minutes() int { return int(w.End - w.Start) }

func (w Window) String() string { return w.Start.String() + "-" + w.End.String() }

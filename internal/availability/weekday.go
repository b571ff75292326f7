package availability

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Weekday is the closed set of day tags used by weekly availability rules.
type Weekday string

const (
	Monday    Weekday = "MONDAY"
	Tuesday   Weekday = "TUESDAY"
	Wednesday Weekday = "WEDNESDAY"
	Thursday  Weekday = "THURSDAY"
	Friday    Weekday = "FRIDAY"
	Saturday  Weekday = "SATURDAY"
	Sunday    Weekday = "SUNDAY"
)

// Weekdays lists the tags Monday first, the order rules are stored in.
var Weekdays = [7]Weekday{Monday, Tuesday, Wednesday, Thursday, Friday, Saturday, Sunday}

func ParseWeekday(s string) (Weekday, error) {
	d := Weekday(strings.ToUpper(strings.TrimSpace(s)))
	if d.Index() < 0 {
		return "", &ConfigurationError{Field: "day", Msg: fmt.Sprintf("unknown weekday %q", s)}
	}
	return d, nil
}

// WeekdayOf returns the tag for t's weekday in t's own location.
func WeekdayOf(t time.Time) Weekday {
	return FromTimeWeekday(t.Weekday())
}

func FromTimeWeekday(w time.Weekday) Weekday {
	// time.Sunday == 0
	return Weekdays[(int(w)+6)%7]
}

// Index is the Monday-based position of d, or -1 for an unknown tag.
func (d Weekday) Index() int {
	for i, w := range Weekdays {
		if w == d {
			return i
		}
	}
	return -1
}

func (d Weekday) TimeWeekday() time.Weekday {
	return time.Weekday((d.Index() + 1) % 7)
}

func (d Weekday) String() string { return string(d) }

func (d *Weekday) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseWeekday(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

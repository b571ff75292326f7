package availability

import (
	"net/url"
	"strings"
	"time"
)

// HourFormat only changes how a slot is labelled, never the instant behind it.
type HourFormat string

const (
	Format12h HourFormat = "12h"
	Format24h HourFormat = "24h"
)

// ParseHourFormat defaults to 24h when s is empty.
func ParseHourFormat(s string) (HourFormat, error) {
	switch HourFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return Format24h, nil
	case Format12h:
		return Format12h, nil
	case Format24h:
		return Format24h, nil
	}
	return "", ErrInvalidFormat
}

func (f HourFormat) layout() string {
	if f == Format12h {
		return "3:04 PM"
	}
	return "15:04"
}

// Display is a slot as one viewer sees it. ID is the canonical, zone-free
// identifier submitted back when booking.
type Display struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	Date  Date      `json:"date"`
	Day   Weekday   `json:"day"`
	Label string    `json:"label"`
}

const slotIDLayout = "2006-01-02T15:04:05Z07:00"

// Project renders instant t in loc using format f.
func Project(t time.Time, loc *time.Location, f HourFormat) Display {
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	return Display{
		ID:    SlotID(t),
		Start: local,
		Date:  DateOf(local),
		Day:   WeekdayOf(local),
		Label: local.Format(f.layout()),
	}
}

// SlotID is the canonical identifier of the slot starting at t.
func SlotID(t time.Time) string {
	return t.UTC().Truncate(time.Minute).Format(slotIDLayout)
}

// Unproject turns a slot identifier back into its instant. It accepts the
// URL-escaped form and any RFC 3339 offset, and rejects sub-minute values.
func Unproject(id string) (time.Time, error) {
	raw := strings.TrimSpace(id)
	if strings.Contains(raw, "%") {
		unescaped, err := url.PathUnescape(raw)
		if err != nil {
			return time.Time{}, ErrInvalidSlotID
		}
		raw = unescaped
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, ErrInvalidSlotID
	}
	if !t.Truncate(time.Minute).Equal(t) {
		return time.Time{}, ErrInvalidSlotID
	}
	return t.UTC(), nil
}

// LoadLocation resolves an IANA zone name. Empty means UTC.
func LoadLocation(name string) (*time.Location, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, ErrUnknownTimezone
	}
	return loc, nil
}

package availability

const (
	MinTimeGap     = 15
	MaxTimeGap     = 120
	DefaultTimeGap = 30
)

// DayRule is the weekly rule for one weekday.
type DayRule struct {
	Day         Weekday  `json:"day"`
	IsAvailable bool     `json:"isAvailable"`
	Windows     []Window `json:"timeSlots"`
}

// Rules is a host's recurring weekly availability. Days is always indexed
// Monday first once normalized.
type Rules struct {
	Timezone string    `json:"timezone"`
	TimeGap  int       `json:"timeGap"`
	Days     []DayRule `json:"days"`
}

// Override replaces the weekly rule for a single date.
type Override struct {
	Date        Date     `json:"date"`
	IsAvailable bool     `json:"isAvailable"`
	Windows     []Window `json:"timeSlots"`
}

// DefaultRules is what a host gets before saving anything: weekdays
// 09:00-17:00, weekends off.
func DefaultRules(timezone string) Rules {
	days := make([]DayRule, 0, len(Weekdays))
	for _, d := range Weekdays {
		rule := DayRule{Day: d, Windows: []Window{}}
		if d != Saturday && d != Sunday {
			rule.IsAvailable = true
			rule.Windows = []Window{{Start: 9 * 60, End: 17 * 60}}
		}
		days = append(days, rule)
	}
	return Rules{Timezone: timezone, TimeGap: DefaultTimeGap, Days: days}
}

// Normalize validates r and returns a copy with exactly seven days in
// Monday-first order. Weekdays absent from r are stored as unavailable.
func (r Rules) Normalize() (Rules, error) {
	if r.TimeGap <= 0 {
		return Rules{}, configErr("timeGap", "must be positive")
	}
	if r.TimeGap < MinTimeGap || r.TimeGap > MaxTimeGap {
		return Rules{}, configErr("timeGap", "must be between %d and %d minutes", MinTimeGap, MaxTimeGap)
	}
	if _, err := LoadLocation(r.Timezone); err != nil {
		return Rules{}, configErr("timezone", "unknown timezone %q", r.Timezone)
	}

	var seen [7]bool
	out := Rules{Timezone: r.Timezone, TimeGap: r.TimeGap, Days: make([]DayRule, len(Weekdays))}
	for i, d := range Weekdays {
		out.Days[i] = DayRule{Day: d, Windows: []Window{}}
	}
	for _, rule := range r.Days {
		idx := rule.Day.Index()
		if idx < 0 {
			return Rules{}, configErr("day", "unknown weekday %q", rule.Day)
		}
		if seen[idx] {
			return Rules{}, configErr(string(rule.Day), "weekday listed more than once")
		}
		seen[idx] = true
		if err := validateWindows(string(rule.Day), rule.IsAvailable, rule.Windows); err != nil {
			return Rules{}, err
		}
		out.Days[idx] = DayRule{Day: rule.Day, IsAvailable: rule.IsAvailable, Windows: copyWindows(rule.Windows)}
	}
	return out, nil
}

// Day returns the rule for d. Rules must be normalized.
func (r Rules) Day(d Weekday) DayRule {
	for _, rule := range r.Days {
		if rule.Day == d {
			return rule
		}
	}
	return DayRule{Day: d}
}

func (o Override) Validate() error {
	if o.Date.IsZero() {
		return configErr("date", "is required")
	}
	return validateWindows(o.Date.String(), o.IsAvailable, o.Windows)
}

func validateWindows(field string, available bool, windows []Window) error {
	if !available {
		if len(windows) > 0 {
			return configErr(field, "an unavailable day cannot have time slots")
		}
		return nil
	}
	if len(windows) == 0 {
		return configErr(field, "an available day needs at least one time slot")
	}
	for _, w := range windows {
		if w.Start < 0 || w.End > endOfDay {
			return configErr(field, "time slot %s is out of range", w)
		}
		if w.Start >= w.End {
			return configErr(field, "time slot %s must start before it ends", w)
		}
	}
	return nil
}

func copyWindows(ws []Window) []Window {
	return append([]Window{}, ws...)
}

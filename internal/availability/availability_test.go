package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2025-03-17 is a Monday.
var monday = Date{Year: 2025, Month: time.March, Day: 17}

func clock(t *testing.T, s string) Clock {
	t.Helper()
	c, err := ParseClock(s)
	require.NoError(t, err)
	return c
}

func window(t *testing.T, start, end string) Window {
	return Window{Start: clock(t, start), End: clock(t, end)}
}

func labels(slots []time.Time, loc *time.Location) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.In(loc).Format("15:04"))
	}
	return out
}

func mondayOnly(t *testing.T, tz, start, end string, gap int) Rules {
	return Rules{
		Timezone: tz,
		TimeGap:  gap,
		Days: []DayRule{
			{Day: Monday, IsAvailable: true, Windows: []Window{window(t, start, end)}},
		},
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		want    Clock
		wantErr bool
	}{
		{in: "09:00", want: 540},
		{in: "17:30", want: 1050},
		{in: "00:00", want: 0},
		{in: "24:00", want: 1440},
		{in: "09:00:00", want: 540},
		{in: "09:00:30", wantErr: true},
		{in: "9:00", wantErr: true},
		{in: "24:01", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "noon", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClock(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseWeekday(t *testing.T) {
	d, err := ParseWeekday("tuesday")
	require.NoError(t, err)
	assert.Equal(t, Tuesday, d)
	assert.Equal(t, time.Tuesday, d.TimeWeekday())
	assert.Equal(t, Sunday, FromTimeWeekday(time.Sunday))

	_, err = ParseWeekday("FUNDAY")
	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestRulesNormalize(t *testing.T) {
	t.Run("fills missing days as unavailable", func(t *testing.T) {
		r, err := mondayOnly(t, "UTC", "09:00", "17:00", 30).Normalize()
		require.NoError(t, err)
		require.Len(t, r.Days, 7)
		assert.True(t, r.Day(Monday).IsAvailable)
		assert.False(t, r.Day(Friday).IsAvailable)
		assert.Empty(t, r.Day(Friday).Windows)
	})

	bad := []struct {
		name  string
		rules Rules
	}{
		{name: "zero gap", rules: Rules{TimeGap: 0}},
		{name: "negative gap", rules: Rules{TimeGap: -30}},
		{name: "gap above range", rules: Rules{TimeGap: 180}},
		{name: "unknown timezone", rules: Rules{TimeGap: 30, Timezone: "Mars/Olympus"}},
		{name: "start equals end", rules: mondayOnly(t, "UTC", "10:00", "10:00", 30)},
		{name: "start after end", rules: mondayOnly(t, "UTC", "17:00", "09:00", 30)},
		{name: "available without slots", rules: Rules{TimeGap: 30, Days: []DayRule{{Day: Monday, IsAvailable: true}}}},
		{name: "unavailable with slots", rules: Rules{TimeGap: 30, Days: []DayRule{{Day: Monday, Windows: []Window{window(t, "09:00", "10:00")}}}}},
		{name: "duplicate day", rules: Rules{TimeGap: 30, Days: []DayRule{{Day: Monday}, {Day: Monday}}}},
		{name: "unknown day", rules: Rules{TimeGap: 30, Days: []DayRule{{Day: "FUNDAY"}}}},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.rules.Normalize()
			var cfgErr *ConfigurationError
			assert.ErrorAs(t, err, &cfgErr)
		})
	}
}

func TestGenerateCandidates(t *testing.T) {
	t.Run("every point strictly before end", func(t *testing.T) {
		cands := GenerateCandidates(monday, time.UTC, []Window{window(t, "09:00", "10:45")}, 30)
		var got []time.Time
		for _, c := range cands {
			got = append(got, c.Start)
		}
		assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30"}, labels(got, time.UTC))
	})

	t.Run("window shorter than gap yields nothing", func(t *testing.T) {
		assert.Empty(t, GenerateCandidates(monday, time.UTC, []Window{window(t, "09:00", "09:20")}, 30))
	})

	t.Run("windows concatenated in order", func(t *testing.T) {
		cands := GenerateCandidates(monday, time.UTC, []Window{
			window(t, "14:00", "15:00"),
			window(t, "09:00", "10:00"),
		}, 30)
		require.Len(t, cands, 4)
		assert.Equal(t, "14:00", cands[0].Start.Format("15:04"))
		assert.Equal(t, "09:00", cands[2].Start.Format("15:04"))
		assert.Equal(t, "10:00", cands[2].Window.End.Format("15:04"))
	})

	t.Run("non-positive gap", func(t *testing.T) {
		assert.Nil(t, GenerateCandidates(monday, time.UTC, []Window{window(t, "09:00", "17:00")}, 0))
	})

	t.Run("skips wall times missing on spring-forward day", func(t *testing.T) {
		ny, err := time.LoadLocation("America/New_York")
		require.NoError(t, err)
		dst := Date{Year: 2025, Month: time.March, Day: 9}
		cands := GenerateCandidates(dst, ny, []Window{window(t, "01:00", "04:00")}, 30)
		var got []time.Time
		for _, c := range cands {
			got = append(got, c.Start)
		}
		assert.Equal(t, []string{"01:00", "01:30", "03:00", "03:30"}, labels(got, ny))
	})
}

func TestGeneratorProperties(t *testing.T) {
	for _, gap := range []int{15, 20, 30, 45, 60, 90, 120} {
		for _, w := range []Window{window(t, "00:00", "24:00"), window(t, "08:10", "11:55"), window(t, "13:00", "13:45")} {
			cands := GenerateCandidates(monday, time.UTC, []Window{w}, gap)
			start := monday.At(w.Start, time.UTC)
			end := monday.At(w.End, time.UTC)
			for i, c := range cands {
				assert.False(t, c.Start.Before(start), "gap %d window %s", gap, w)
				assert.True(t, c.Start.Before(end), "gap %d window %s", gap, w)
				if i > 0 {
					assert.False(t, c.Start.Before(cands[i-1].Start))
				}
			}
		}
	}
}

func TestFitDuration(t *testing.T) {
	w := window(t, "09:00", "17:00")

	t.Run("scenario A: 30 minute meetings", func(t *testing.T) {
		slots := FitDuration(GenerateCandidates(monday, time.UTC, []Window{w}, 30), 30*time.Minute, nil)
		require.Len(t, slots, 16)
		assert.Equal(t, "09:00", slots[0].Format("15:04"))
		assert.Equal(t, "16:30", slots[15].Format("15:04"))
		assert.NotContains(t, labels(slots, time.UTC), "17:00")
	})

	t.Run("scenario B: 60 minute meetings", func(t *testing.T) {
		slots := FitDuration(GenerateCandidates(monday, time.UTC, []Window{w}, 30), time.Hour, nil)
		got := labels(slots, time.UTC)
		assert.Equal(t, "16:00", got[len(got)-1])
		assert.NotContains(t, got, "16:30")
	})

	t.Run("scenario D: existing booking blocks its slot", func(t *testing.T) {
		busy := []Interval{{Start: monday.At(600, time.UTC), End: monday.At(630, time.UTC)}}
		got := labels(FitDuration(GenerateCandidates(monday, time.UTC, []Window{w}, 30), 30*time.Minute, busy), time.UTC)
		assert.NotContains(t, got, "10:00")
		assert.Contains(t, got, "09:30")
		assert.Contains(t, got, "10:30")
	})

	t.Run("duration longer than every window", func(t *testing.T) {
		slots := FitDuration(GenerateCandidates(monday, time.UTC, []Window{window(t, "09:00", "10:00")}, 30), 2*time.Hour, nil)
		assert.Empty(t, slots)
	})

	t.Run("overlapping windows are de-duplicated", func(t *testing.T) {
		cands := GenerateCandidates(monday, time.UTC, []Window{window(t, "09:00", "12:00"), window(t, "10:00", "14:00")}, 30)
		got := labels(FitDuration(cands, time.Hour, nil), time.UTC)
		assert.Equal(t, []string{
			"09:00", "09:30", "10:00", "10:30", "11:00", "11:30",
			"12:00", "12:30", "13:00",
		}, got)
	})

	t.Run("never past window end or into busy intervals", func(t *testing.T) {
		busy := []Interval{
			{Start: monday.At(11*60+10, time.UTC), End: monday.At(11*60+50, time.UTC)},
			{Start: monday.At(15*60, time.UTC), End: monday.At(16*60, time.UTC)},
		}
		for _, gap := range []int{15, 30, 45} {
			cands := GenerateCandidates(monday, time.UTC, []Window{w}, gap)
			for _, d := range []time.Duration{15 * time.Minute, 50 * time.Minute, 2 * time.Hour} {
				for _, s := range FitDuration(cands, d, busy) {
					assert.False(t, s.Add(d).After(monday.At(w.End, time.UTC)))
					for _, b := range busy {
						assert.False(t, b.Overlaps(s, s.Add(d)), "slot %s duration %s", s, d)
					}
				}
			}
		}
	})

	t.Run("stable output", func(t *testing.T) {
		cands := GenerateCandidates(monday, time.UTC, []Window{w}, 30)
		assert.Equal(t, FitDuration(cands, 45*time.Minute, nil), FitDuration(cands, 45*time.Minute, nil))
	})
}

func TestNotBefore(t *testing.T) {
	cands := GenerateCandidates(monday, time.UTC, []Window{window(t, "09:00", "11:00")}, 30)
	slots := FitDuration(cands, 30*time.Minute, nil)
	got := NotBefore(slots, monday.At(9*60+31, time.UTC))
	assert.Equal(t, []string{"10:00", "10:30"}, labels(got, time.UTC))
}

func TestProjector(t *testing.T) {
	t.Run("labels follow hour format only", func(t *testing.T) {
		instant := time.Date(2025, 3, 20, 14, 0, 0, 0, time.UTC)
		h12 := Project(instant, time.UTC, Format12h)
		h24 := Project(instant, time.UTC, Format24h)
		assert.Equal(t, "2:00 PM", h12.Label)
		assert.Equal(t, "14:00", h24.Label)
		assert.Equal(t, "2025-03-20T14:00:00Z", h12.ID)
		assert.Equal(t, h12.ID, h24.ID)
		assert.True(t, h12.Start.Equal(h24.Start))
	})

	t.Run("round trip across DST", func(t *testing.T) {
		for _, zone := range []string{"America/New_York", "Europe/Berlin", "Australia/Sydney", "UTC"} {
			loc, err := time.LoadLocation(zone)
			require.NoError(t, err)
			// Both 2025 transitions for the northern zones; Sydney shifts on 2025-04-06.
			for _, base := range []time.Time{
				time.Date(2025, 3, 9, 5, 0, 0, 0, time.UTC),
				time.Date(2025, 3, 30, 0, 0, 0, 0, time.UTC),
				time.Date(2025, 4, 5, 14, 0, 0, 0, time.UTC),
				time.Date(2025, 11, 2, 4, 0, 0, 0, time.UTC),
			} {
				for m := 0; m < 4*60; m++ {
					instant := base.Add(time.Duration(m) * time.Minute)
					for _, f := range []HourFormat{Format12h, Format24h} {
						back, err := Unproject(Project(instant, loc, f).ID)
						require.NoError(t, err)
						require.True(t, back.Equal(instant), "%s %s", zone, instant)
					}
				}
			}
		}
	})

	t.Run("unproject accepts escaped ids and offsets", func(t *testing.T) {
		want := time.Date(2025, 3, 20, 14, 0, 0, 0, time.UTC)
		for _, id := range []string{"2025-03-20T14%3A00%3A00.000Z", "2025-03-20T16:00:00+02:00", "2025-03-20T14:00:00Z"} {
			got, err := Unproject(id)
			require.NoError(t, err, id)
			assert.True(t, got.Equal(want), id)
		}
	})

	t.Run("unproject rejects bad ids", func(t *testing.T) {
		for _, id := range []string{"", "tomorrow", "2025-03-20T14:00:30Z", "2025-03-20"} {
			_, err := Unproject(id)
			assert.ErrorIs(t, err, ErrInvalidSlotID, id)
		}
	})

	t.Run("hour format parsing", func(t *testing.T) {
		f, err := ParseHourFormat("")
		require.NoError(t, err)
		assert.Equal(t, Format24h, f)
		f, err = ParseHourFormat("12H")
		require.NoError(t, err)
		assert.Equal(t, Format12h, f)
		_, err = ParseHourFormat("36h")
		assert.ErrorIs(t, err, ErrInvalidFormat)
	})
}

func TestScheduleResolve(t *testing.T) {
	t.Run("scenario C: override closes a Monday", func(t *testing.T) {
		s, err := NewSchedule(mondayOnly(t, "UTC", "09:00", "17:00", 30), []Override{{Date: monday}})
		require.NoError(t, err)
		_, ok := s.Resolve(monday)
		assert.False(t, ok)
		assert.Empty(t, s.Slots(monday, 30*time.Minute, nil))
		// The following Monday still follows the weekly rule.
		assert.Len(t, s.Slots(monday.AddDays(7), 30*time.Minute, nil), 16)
	})

	t.Run("override opens a closed day", func(t *testing.T) {
		saturday := monday.AddDays(5)
		s, err := NewSchedule(mondayOnly(t, "UTC", "09:00", "17:00", 30), []Override{
			{Date: saturday, IsAvailable: true, Windows: []Window{window(t, "10:00", "11:00")}},
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"10:00", "10:30"}, labels(s.Slots(saturday, 30*time.Minute, nil), time.UTC))
	})

	t.Run("invalid override rejected", func(t *testing.T) {
		_, err := NewSchedule(mondayOnly(t, "UTC", "09:00", "17:00", 30), []Override{
			{Date: monday, IsAvailable: true},
		})
		var cfgErr *ConfigurationError
		assert.ErrorAs(t, err, &cfgErr)
	})

	t.Run("contains", func(t *testing.T) {
		s, err := NewSchedule(mondayOnly(t, "UTC", "09:00", "17:00", 30), nil)
		require.NoError(t, err)
		assert.True(t, s.Contains(monday.At(16*60, time.UTC), time.Hour, nil))
		assert.False(t, s.Contains(monday.At(16*60+30, time.UTC), time.Hour, nil))
		assert.False(t, s.Contains(monday.At(9*60+10, time.UTC), 30*time.Minute, nil))
	})
}

func TestForViewerUsesViewerDates(t *testing.T) {
	// Los Angeles Monday 20:00-23:00 (PDT) is Tuesday 03:00-06:00 UTC.
	s, err := NewSchedule(mondayOnly(t, "America/Los_Angeles", "20:00", "23:00", 60), nil)
	require.NoError(t, err)

	days := s.ForViewer(ViewerQuery{Location: time.UTC, From: monday, Days: 2, Format: Format24h}, time.Hour, nil)
	require.Len(t, days, 2)

	assert.Equal(t, Monday, days[0].Day)
	assert.False(t, days[0].IsAvailable)
	assert.Empty(t, days[0].Slots)

	tuesday := days[1]
	assert.Equal(t, Tuesday, tuesday.Day)
	assert.Equal(t, monday.AddDays(1), tuesday.Date)
	assert.True(t, tuesday.IsAvailable)
	var got []string
	for _, d := range tuesday.Slots {
		got = append(got, d.Label)
		assert.Equal(t, Tuesday, d.Day)
	}
	assert.Equal(t, []string{"03:00", "04:00", "05:00"}, got)
}

func TestForViewerEastOfHost(t *testing.T) {
	// A UTC Monday 22:00-24:00 host seen from Tokyo lands on Tuesday morning.
	s, err := NewSchedule(mondayOnly(t, "UTC", "22:00", "24:00", 60), nil)
	require.NoError(t, err)
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	days := s.ForViewer(ViewerQuery{Location: tokyo, From: monday, Days: 2, Format: Format12h}, time.Hour, nil)
	require.Len(t, days, 2)
	assert.Empty(t, days[0].Slots)
	require.Len(t, days[1].Slots, 2)
	assert.Equal(t, "7:00 AM", days[1].Slots[0].Label)
	assert.Equal(t, "2025-03-17T22:00:00Z", days[1].Slots[0].ID)
}

func TestForViewerIsIdempotent(t *testing.T) {
	s, err := NewSchedule(DefaultRules("Europe/Berlin"), nil)
	require.NoError(t, err)
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	q := ViewerQuery{Location: ny, From: monday, Days: 14, Format: Format12h}
	assert.Equal(t, s.ForViewer(q, 45*time.Minute, nil), s.ForViewer(q, 45*time.Minute, nil))
}

func TestDate(t *testing.T) {
	d, err := ParseDate("2025-03-17")
	require.NoError(t, err)
	assert.Equal(t, monday, d)
	assert.Equal(t, Monday, d.Weekday())
	assert.Equal(t, "2025-03-31", d.AddDays(14).String())
	assert.True(t, d.Before(d.AddDays(1)))

	_, err = ParseDate("17/03/2025")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

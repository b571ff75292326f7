package booking

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/meeting-scheduler/internal/availability"
	"github.com/hackgods/meeting-scheduler/internal/config"
	"github.com/hackgods/meeting-scheduler/internal/integration"
	redisclient "github.com/hackgods/meeting-scheduler/internal/redis"
)

type mockLinker struct {
	mock.Mock
}

func (m *mockLinker) CreateMeeting(ctx context.Context, req integration.MeetingRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *mockLinker) CancelMeeting(ctx context.Context, req integration.MeetingRequest) error {
	return m.Called(ctx, req).Error(0)
}

type fakeChecker struct {
	connected map[integration.Platform]bool
}

func (f fakeChecker) Check(_ context.Context, _ uuid.UUID, p integration.Platform) (integration.Status, error) {
	return integration.Status{Platform: p, IsConnected: !p.RequiresConnection() || f.connected[p]}, nil
}

// 2025-03-17 is a Monday; the service clock sits a week earlier.
var (
	testNow    = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	testMonday = availability.Date{Year: 2025, Month: time.March, Day: 17}
)

type fixture struct {
	svc    *Service
	repo   *MemoryRepository
	linker *mockLinker
	host   *Host
	event  *EventType
}

func newFixture(t *testing.T, duration int) *fixture {
	t.Helper()
	ctx := context.Background()

	repo := NewMemoryRepository()
	linker := &mockLinker{}
	checker := fakeChecker{connected: map[integration.Platform]bool{integration.GoogleMeetAndCalendar: true}}
	cfg := config.Config{DefaultTimezone: "UTC", DefaultTimeGap: 30}
	svc := NewService(repo, redisclient.NewLocalLocker(5*time.Second), linker, checker, cfg, zerolog.New(io.Discard)).
		WithClock(func() time.Time { return testNow })

	host := &Host{Username: "ada", Name: "Ada Lovelace", Email: "ada@example.com", Timezone: "UTC"}
	require.NoError(t, svc.CreateHost(ctx, host))

	_, err := svc.UpdateAvailability(ctx, host.ID, UpdateAvailabilityInput{
		TimeGap: 30,
		Days: []availability.DayRule{{
			Day:         availability.Monday,
			IsAvailable: true,
			Windows:     []availability.Window{{Start: 9 * 60, End: 17 * 60}},
		}},
	})
	require.NoError(t, err)

	event, err := svc.CreateEvent(ctx, host.ID, CreateEventInput{
		Title:           "Intro Call",
		DurationMinutes: duration,
		LocationType:    integration.GoogleMeetAndCalendar,
	})
	require.NoError(t, err)

	return &fixture{svc: svc, repo: repo, linker: linker, host: host, event: event}
}

func (f *fixture) mondaySlots(t *testing.T) []string {
	t.Helper()
	res, err := f.svc.GetAvailabilityForEvent(context.Background(), AvailabilityQuery{
		EventID: f.event.ID,
		From:    testMonday.String(),
		Days:    intPtr(1),
	})
	require.NoError(t, err)
	require.Len(t, res.Days, 1)
	var labels []string
	for _, s := range res.Days[0].Slots {
		labels = append(labels, s.Label)
	}
	return labels
}

func intPtr(n int) *int { return &n }

func slotID(d availability.Date, hhmm string) string {
	c, err := availability.ParseClock(hhmm)
	if err != nil {
		panic(err)
	}
	return availability.SlotID(d.At(c, time.UTC))
}

func (f *fixture) request(start string) ScheduleRequest {
	return ScheduleRequest{
		EventID:    f.event.ID,
		GuestName:  "Grace Hopper",
		GuestEmail: "grace@example.com",
		StartTime:  slotID(testMonday, start),
	}
}

func TestGetAvailabilityDefaultsForNewHost(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	svc := NewService(repo, redisclient.NewLocalLocker(time.Second), &mockLinker{}, fakeChecker{}, config.Config{DefaultTimezone: "UTC"}, zerolog.New(io.Discard))

	host := &Host{Username: "new", Timezone: "Europe/Paris"}
	require.NoError(t, svc.CreateHost(ctx, host))

	rules, err := svc.GetAvailability(ctx, host.ID)
	require.NoError(t, err)
	assert.Equal(t, 30, rules.TimeGap)
	assert.Equal(t, "Europe/Paris", rules.Timezone)
	require.Len(t, rules.Days, 7)
	assert.True(t, rules.Day(availability.Friday).IsAvailable)
	assert.False(t, rules.Day(availability.Saturday).IsAvailable)

	_, err = svc.GetAvailability(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrHostNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAvailabilityRejectsBadRules(t *testing.T) {
	f := newFixture(t, 30)
	_, err := f.svc.UpdateAvailability(context.Background(), f.host.ID, UpdateAvailabilityInput{
		TimeGap: 30,
		Days: []availability.DayRule{{
			Day:         availability.Monday,
			IsAvailable: true,
			Windows:     []availability.Window{{Start: 17 * 60, End: 9 * 60}},
		}},
	})
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)

	// The previous rules survive a rejected update.
	rules, err := f.svc.GetAvailability(context.Background(), f.host.ID)
	require.NoError(t, err)
	assert.Equal(t, []availability.Window{{Start: 9 * 60, End: 17 * 60}}, rules.Day(availability.Monday).Windows)
}

func TestScenarioA30MinuteSlots(t *testing.T) {
	f := newFixture(t, 30)
	labels := f.mondaySlots(t)
	require.Len(t, labels, 16)
	assert.Equal(t, "09:00", labels[0])
	assert.Equal(t, "16:30", labels[15])
	assert.NotContains(t, labels, "17:00")
}

func TestScenarioB60MinuteSlots(t *testing.T) {
	f := newFixture(t, 60)
	labels := f.mondaySlots(t)
	assert.Equal(t, "16:00", labels[len(labels)-1])
	assert.NotContains(t, labels, "16:30")
}

func TestScenarioCOverrideClosesDate(t *testing.T) {
	f := newFixture(t, 30)
	_, err := f.svc.UpsertDateOverride(context.Background(), f.host.ID, availability.Override{Date: testMonday})
	require.NoError(t, err)
	assert.Empty(t, f.mondaySlots(t))

	overrides, err := f.svc.GetDateOverrides(context.Background(), f.host.ID, availability.Date{}, availability.Date{})
	require.NoError(t, err)
	require.Len(t, overrides, 1)
	assert.Empty(t, overrides[0].Windows)

	require.NoError(t, f.svc.DeleteDateOverride(context.Background(), f.host.ID, testMonday))
	assert.Len(t, f.mondaySlots(t), 16)
	assert.ErrorIs(t, f.svc.DeleteDateOverride(context.Background(), f.host.ID, testMonday), ErrOverrideNotFound)
}

func TestScenarioDAndEBookingRemovesSlot(t *testing.T) {
	f := newFixture(t, 30)
	f.linker.On("CreateMeeting", mock.Anything, mock.MatchedBy(func(r integration.MeetingRequest) bool {
		return r.Platform == integration.GoogleMeetAndCalendar && r.GuestEmail == "grace@example.com"
	})).Return("https://meet.google.com/abc-defg-hij", nil).Once()

	conf, err := f.svc.ScheduleMeeting(context.Background(), f.request("10:00"))
	require.NoError(t, err)
	assert.Equal(t, "https://meet.google.com/abc-defg-hij", conf.MeetingLink)
	assert.Equal(t, StatusConfirmed, conf.Booking.Status)
	assert.Equal(t, 30*time.Minute, conf.Booking.EndTime.Sub(conf.Booking.StartTime))

	labels := f.mondaySlots(t)
	assert.NotContains(t, labels, "10:00")
	assert.Contains(t, labels, "09:30")
	assert.Contains(t, labels, "10:30")
	f.linker.AssertExpectations(t)

	var confirmed int
	for _, ev := range f.repo.Events() {
		if ev.EventType == EventBookingConfirmed {
			confirmed++
		}
	}
	assert.Equal(t, 1, confirmed)
}

func TestGetAvailabilityIsIdempotent(t *testing.T) {
	f := newFixture(t, 45)
	q := AvailabilityQuery{EventID: f.event.ID, Timezone: "America/New_York", From: "2025-03-16", Days: intPtr(14), HourFormat: "12h"}
	first, err := f.svc.GetAvailabilityForEvent(context.Background(), q)
	require.NoError(t, err)
	second, err := f.svc.GetAvailabilityForEvent(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGetAvailabilityValidatesQuery(t *testing.T) {
	f := newFixture(t, 30)
	_, err := f.svc.GetAvailabilityForEvent(context.Background(), AvailabilityQuery{
		EventID: f.event.ID, Timezone: "Mars/Base", From: "03/17/2025", Days: intPtr(90), HourFormat: "36h",
	})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields, "timezone")
	assert.Contains(t, valErr.Fields, "from")
	assert.Contains(t, valErr.Fields, "days")
	assert.Contains(t, valErr.Fields, "hourFormat")

	_, err = f.svc.GetAvailabilityForEvent(context.Background(), AvailabilityQuery{EventID: uuid.New()})
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestGetAvailabilityDaysDefaultAndZero(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	res, err := f.svc.GetAvailabilityForEvent(ctx, AvailabilityQuery{EventID: f.event.ID, From: testMonday.String()})
	require.NoError(t, err)
	assert.Len(t, res.Days, DefaultCalendarDays)

	_, err = f.svc.GetAvailabilityForEvent(ctx, AvailabilityQuery{EventID: f.event.ID, Days: intPtr(0)})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields, "days")
}

func TestScheduleMeetingValidation(t *testing.T) {
	f := newFixture(t, 30)
	tests := []struct {
		name  string
		edit  func(r *ScheduleRequest)
		field string
	}{
		{name: "empty name", edit: func(r *ScheduleRequest) { r.GuestName = "  " }, field: "guestName"},
		{name: "bad email", edit: func(r *ScheduleRequest) { r.GuestEmail = "grace@" }, field: "guestEmail"},
		{name: "display name email", edit: func(r *ScheduleRequest) { r.GuestEmail = "Grace <grace@example.com>" }, field: "guestEmail"},
		{name: "bad start", edit: func(r *ScheduleRequest) { r.StartTime = "monday morning" }, field: "startTime"},
		{name: "sub-minute start", edit: func(r *ScheduleRequest) { r.StartTime = "2025-03-17T10:00:30Z" }, field: "startTime"},
		{name: "tampered end", edit: func(r *ScheduleRequest) { r.EndTime = slotID(testMonday, "11:00") }, field: "endTime"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := f.request("10:00")
			tt.edit(&req)
			_, err := f.svc.ScheduleMeeting(context.Background(), req)
			var valErr *ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Contains(t, valErr.Fields, tt.field)
		})
	}
	f.linker.AssertNotCalled(t, "CreateMeeting", mock.Anything, mock.Anything)
}

func TestScheduleMeetingAcceptsMatchingEnd(t *testing.T) {
	f := newFixture(t, 30)
	f.linker.On("CreateMeeting", mock.Anything, mock.Anything).Return("https://meet.google.com/x", nil)
	req := f.request("11:00")
	req.EndTime = slotID(testMonday, "11:30")
	_, err := f.svc.ScheduleMeeting(context.Background(), req)
	require.NoError(t, err)
}

func TestScheduleMeetingRejectsUnofferedSlot(t *testing.T) {
	f := newFixture(t, 30)
	for _, start := range []string{"09:10", "16:45", "17:00", "08:30"} {
		_, err := f.svc.ScheduleMeeting(context.Background(), f.request(start))
		assert.ErrorIs(t, err, ErrSlotUnavailable, start)
	}

	// Past slots are never bookable.
	past := f.request("10:00")
	past.StartTime = slotID(availability.Date{Year: 2025, Month: time.March, Day: 3}, "10:00")
	_, err := f.svc.ScheduleMeeting(context.Background(), past)
	assert.ErrorIs(t, err, ErrSlotUnavailable)
}

func TestScheduleMeetingHiddenEvent(t *testing.T) {
	f := newFixture(t, 30)
	hidden := false
	_, err := f.svc.UpdateEvent(context.Background(), f.host.ID, f.event.ID, UpdateEventInput{IsVisible: &hidden})
	require.NoError(t, err)

	_, err = f.svc.ScheduleMeeting(context.Background(), f.request("10:00"))
	assert.ErrorIs(t, err, ErrEventNotFound)
}

func TestConcurrentBookingIsExclusive(t *testing.T) {
	f := newFixture(t, 30)
	f.linker.On("CreateMeeting", mock.Anything, mock.Anything).Return("https://meet.google.com/x", nil)

	const guests = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		confirmed int
		rejected  int
		other     []error
	)
	start := make(chan struct{})
	for i := 0; i < guests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.ScheduleMeeting(context.Background(), f.request("10:00"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				confirmed++
			case errors.Is(err, ErrSlotUnavailable):
				rejected++
			default:
				other = append(other, err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Empty(t, other)
	assert.Equal(t, 1, confirmed)
	assert.Equal(t, guests-1, rejected)

	bookings, err := f.svc.ListBookings(context.Background(), BookingFilter{HostID: f.host.ID})
	require.NoError(t, err)
	assert.Len(t, bookings, 1)
}

func TestOverlappingDifferentStartsConflict(t *testing.T) {
	f := newFixture(t, 60)
	f.linker.On("CreateMeeting", mock.Anything, mock.Anything).Return("", nil)

	_, err := f.svc.ScheduleMeeting(context.Background(), f.request("10:00"))
	require.NoError(t, err)
	_, err = f.svc.ScheduleMeeting(context.Background(), f.request("10:30"))
	assert.ErrorIs(t, err, ErrSlotUnavailable)
	_, err = f.svc.ScheduleMeeting(context.Background(), f.request("11:00"))
	assert.NoError(t, err)
}

func TestIntegrationFailureCommitsNothing(t *testing.T) {
	f := newFixture(t, 30)
	f.linker.On("CreateMeeting", mock.Anything, mock.Anything).Return("", errors.New("calendar api down")).Once()

	_, err := f.svc.ScheduleMeeting(context.Background(), f.request("10:00"))
	var intErr *IntegrationError
	require.ErrorAs(t, err, &intErr)
	assert.Equal(t, integration.GoogleMeetAndCalendar, intErr.Platform)

	bookings, err := f.svc.ListBookings(context.Background(), BookingFilter{HostID: f.host.ID})
	require.NoError(t, err)
	assert.Empty(t, bookings)
	assert.Contains(t, f.mondaySlots(t), "10:00")
}

func TestFailedCommitRemovesMeeting(t *testing.T) {
	f := newFixture(t, 30)
	ctx, cancel := context.WithCancel(context.Background())
	var created uuid.UUID
	f.linker.On("CreateMeeting", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(integration.MeetingRequest).BookingID
			cancel()
		}).
		Return("https://meet.google.com/x", nil).Once()
	f.linker.On("CancelMeeting",
		mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }),
		mock.MatchedBy(func(r integration.MeetingRequest) bool { return r.BookingID == created }),
	).Return(nil).Once()

	_, err := f.svc.ScheduleMeeting(ctx, f.request("10:00"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Contains(t, f.mondaySlots(t), "10:00")
	f.linker.AssertExpectations(t)
}

func TestIntegrationFailureSkipsMeetingRemoval(t *testing.T) {
	f := newFixture(t, 30)
	f.linker.On("CreateMeeting", mock.Anything, mock.Anything).Return("", errors.New("calendar api down")).Once()

	_, err := f.svc.ScheduleMeeting(context.Background(), f.request("10:00"))
	require.Error(t, err)
	f.linker.AssertNotCalled(t, "CancelMeeting", mock.Anything, mock.Anything)
}

func TestCancelBookingFreesSlot(t *testing.T) {
	f := newFixture(t, 30)
	f.linker.On("CreateMeeting", mock.Anything, mock.Anything).Return("", nil)
	ctx := context.Background()

	conf, err := f.svc.ScheduleMeeting(ctx, f.request("10:00"))
	require.NoError(t, err)

	_, err = f.svc.CancelBooking(ctx, uuid.New(), conf.Booking.ID, "")
	assert.ErrorIs(t, err, ErrBookingNotFound)

	cancelled, err := f.svc.CancelBooking(ctx, f.host.ID, conf.Booking.ID, "conflict")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, cancelled.Status)
	assert.Equal(t, "conflict", cancelled.CancelReason)
	require.NotNil(t, cancelled.CancelledAt)

	_, err = f.svc.CancelBooking(ctx, f.host.ID, conf.Booking.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyCancelled)

	assert.Contains(t, f.mondaySlots(t), "10:00")

	list, err := f.svc.ListBookings(ctx, BookingFilter{HostID: f.host.ID, Status: StatusCancelled})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.svc.ListBookings(ctx, BookingFilter{HostID: f.host.ID, Status: "pending"})
	var valErr *ValidationError
	assert.ErrorAs(t, err, &valErr)
}

func TestCreateEvent(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	second, err := f.svc.CreateEvent(ctx, f.host.ID, CreateEventInput{
		Title: "Intro Call", DurationMinutes: 15, LocationType: integration.InPerson,
	})
	require.NoError(t, err)
	assert.Equal(t, "intro-call", f.event.Slug)
	assert.Equal(t, "intro-call-2", second.Slug)
	assert.True(t, second.IsVisible)

	_, err = f.svc.CreateEvent(ctx, f.host.ID, CreateEventInput{
		Title: "Zoom sync", DurationMinutes: 30, LocationType: integration.ZoomMeeting,
	})
	var valErr *ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields, "locationType")

	_, err = f.svc.CreateEvent(ctx, f.host.ID, CreateEventInput{Title: "", DurationMinutes: 0, LocationType: integration.InPerson})
	require.ErrorAs(t, err, &valErr)
	assert.Contains(t, valErr.Fields, "title")
	assert.Contains(t, valErr.Fields, "duration")

	events, err := f.svc.ListEvents(ctx, f.host.ID)
	require.NoError(t, err)
	assert.Len(t, events, 2)

	require.NoError(t, f.svc.DeleteEvent(ctx, f.host.ID, second.ID))
	assert.ErrorIs(t, f.svc.DeleteEvent(ctx, f.host.ID, second.ID), ErrEventNotFound)
}

func TestGetPublicEvent(t *testing.T) {
	f := newFixture(t, 30)
	ctx := context.Background()

	pub, err := f.svc.GetPublicEvent(ctx, "ADA", "intro-call")
	require.NoError(t, err)
	assert.Equal(t, f.event.ID, pub.Event.ID)
	assert.Equal(t, "Ada Lovelace", pub.Host.Name)

	hidden := false
	_, err = f.svc.UpdateEvent(ctx, f.host.ID, f.event.ID, UpdateEventInput{IsVisible: &hidden})
	require.NoError(t, err)
	_, err = f.svc.GetPublicEvent(ctx, "ada", "intro-call")
	assert.ErrorIs(t, err, ErrEventNotFound)

	_, err = f.svc.GetPublicEvent(ctx, "nobody", "intro-call")
	assert.ErrorIs(t, err, ErrHostNotFound)
}

func TestSlugify(t *testing.T) {
	tests := map[string]string{
		"Intro Call":          "intro-call",
		"  30 min -- chat!  ": "30-min-chat",
		"Café Meeting":        "caf-meeting",
		"!!!":                 "event",
	}
	for in, want := range tests {
		assert.Equal(t, want, Slugify(in), in)
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/meeting-scheduler/internal/booking"
	"github.com/hackgods/meeting-scheduler/internal/config"
	"github.com/hackgods/meeting-scheduler/internal/integration"
	"github.com/hackgods/meeting-scheduler/internal/poll"
	redisclient "github.com/hackgods/meeting-scheduler/internal/redis"
)

var apiNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

type testServer struct {
	handler http.Handler
	tokens  *Tokens
	host    *booking.Host
	token   string
}

func newTestServer(t *testing.T, mutate ...func(*RouterConfig)) *testServer {
	t.Helper()
	logger := zerolog.New(io.Discard)
	cfg := config.Config{DefaultTimezone: "UTC", DefaultTimeGap: 30}

	integrations := integration.NewMemoryRepository()
	intSvc := integration.NewService(integrations, nil, logger)
	bookingSvc := booking.NewService(
		booking.NewMemoryRepository(),
		redisclient.NewLocalLocker(5*time.Second),
		integration.NewLinker(integrations, nil),
		intSvc,
		cfg,
		logger,
	).WithClock(func() time.Time { return apiNow })
	pollSvc := poll.NewService(poll.NewMemoryRepository(), logger).WithClock(func() time.Time { return apiNow })

	host := &booking.Host{Username: "grace", Name: "Grace Hopper", Email: "grace@example.com", Timezone: "UTC"}
	require.NoError(t, bookingSvc.CreateHost(context.Background(), host))

	tokens := NewTokens("test-secret")
	token, err := tokens.Issue(Session{HostID: host.ID, Username: host.Username}, time.Hour)
	require.NoError(t, err)

	rc := RouterConfig{
		Booking:        bookingSvc,
		Polls:          pollSvc,
		Integrations:   intSvc,
		Tokens:         tokens,
		Health:         NewHealthHandler("test", "v0.0.0"),
		Logger:         logger,
		MetricsEnabled: true,
	}
	for _, m := range mutate {
		m(&rc)
	}
	return &testServer{handler: NewRouter(rc), tokens: tokens, host: host, token: token}
}

func (s *testServer) do(t *testing.T, method, path string, body any, auth bool) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// setupEvent gives the host Monday 09:00-12:00 and a visible in-person event.
func (s *testServer) setupEvent(t *testing.T) EventResponse {
	t.Helper()
	rec := s.do(t, http.MethodPut, "/availability", map[string]any{
		"timeGap": 30,
		"days": []map[string]any{{
			"day":         "MONDAY",
			"isAvailable": true,
			"timeSlots":   []map[string]string{{"startTime": "09:00", "endTime": "12:00"}},
		}},
	}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/events", map[string]any{
		"title":        "Coffee Chat",
		"duration":     30,
		"locationType": "IN_PERSON",
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[EventResponse](t, rec)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health/live", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = s.do(t, http.MethodGet, "/metrics", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadinessReportsDependencies(t *testing.T) {
	h := NewHealthHandler("test", "v1",
		Check{Name: "postgres", Required: true, Ping: func(context.Context) error { return nil }},
		Check{Name: "redis", Ping: func(context.Context) error { return errors.New("down") }},
	)
	rec := httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	resp := decode[ReadinessResponse](t, rec)
	assert.Equal(t, "degraded", resp.Status)
	assert.Equal(t, map[string]string{"postgres": "ok", "redis": "down"}, resp.Dependencies)

	h = NewHealthHandler("test", "v1",
		Check{Name: "postgres", Required: true, Ping: func(context.Context) error { return errors.New("down") }},
	)
	rec = httptest.NewRecorder()
	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/me", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := NewTokens("other-secret").Issue(Session{HostID: s.host.ID}, time.Hour)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	rec = httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, http.MethodGet, "/me", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "grace", decode[HostResponse](t, rec).Username)
}

func TestTokensRejectStateAsAccessToken(t *testing.T) {
	tokens := NewTokens("secret")
	state, err := tokens.sign(Session{HostID: [16]byte{1}}, purposeOAuthState, time.Minute)
	require.NoError(t, err)
	_, err = tokens.Verify(state)
	assert.Error(t, err)

	expired, err := tokens.Issue(Session{HostID: [16]byte{1}}, -time.Minute)
	require.NoError(t, err)
	_, err = tokens.Verify(expired)
	assert.Error(t, err)
}

func TestGuestBookingFlow(t *testing.T) {
	s := newTestServer(t)
	event := s.setupEvent(t)
	assert.Equal(t, "coffee-chat", event.Slug)

	rec := s.do(t, http.MethodGet, "/public/grace/coffee-chat", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	pub := decode[PublicEventResponse](t, rec)
	assert.Equal(t, event.ID, pub.Event.ID)
	assert.Equal(t, "Grace Hopper", pub.Host.Name)

	rec = s.do(t, http.MethodGet, "/public/events/"+event.ID.String()+"/availability?from=2025-03-17&days=1&timezone=UTC&hourFormat=12h", nil, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	avail := decode[booking.EventAvailability](t, rec)
	require.Len(t, avail.Days, 1)
	slots := avail.Days[0].Slots
	require.Len(t, slots, 6)
	assert.Equal(t, "2025-03-17T09:00:00Z", slots[0].ID)
	assert.Equal(t, "9:00 AM", slots[0].Label)

	form := map[string]string{
		"guestName":  "Alan Turing",
		"guestEmail": "alan@example.com",
		"startTime":  slots[1].ID,
	}
	path := "/public/events/" + event.ID.String() + "/bookings"
	rec = s.do(t, http.MethodPost, path, form, false)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	conf := decode[ScheduleResponse](t, rec)
	assert.Equal(t, booking.StatusConfirmed, conf.Booking.Status)
	assert.Empty(t, conf.MeetingLink)

	rec = s.do(t, http.MethodPost, path, form, false)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_unavailable", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodGet, "/public/events/"+event.ID.String()+"/availability?from=2025-03-17&days=1", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	avail = decode[booking.EventAvailability](t, rec)
	require.Len(t, avail.Days[0].Slots, 5, "the booked slot is gone")

	rec = s.do(t, http.MethodGet, "/bookings", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	list := decode[ListBookingsResponse](t, rec)
	require.Len(t, list.Bookings, 1)

	cancelPath := "/bookings/" + list.Bookings[0].ID.String() + "/cancel"
	rec = s.do(t, http.MethodPost, cancelPath, CancelBookingRequest{Reason: "conflict"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, booking.StatusCancelled, decode[BookingResponse](t, rec).Status)

	rec = s.do(t, http.MethodPost, cancelPath, nil, true)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestErrorMapping(t *testing.T) {
	s := newTestServer(t)
	event := s.setupEvent(t)
	eventPath := "/public/events/" + event.ID.String()

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		auth   bool
		status int
		code   string
		field  string
	}{
		{
			name: "inverted window", method: http.MethodPut, path: "/availability", auth: true,
			body: map[string]any{"timeGap": 30, "days": []map[string]any{{
				"day": "MONDAY", "isAvailable": true,
				"timeSlots": []map[string]string{{"startTime": "12:00", "endTime": "09:00"}},
			}}},
			status: http.StatusUnprocessableEntity, code: "invalid_configuration",
		},
		{
			name: "bad email", method: http.MethodPost, path: eventPath + "/bookings",
			body:   map[string]string{"guestName": "A", "guestEmail": "nope", "startTime": "2025-03-17T09:00:00Z"},
			status: http.StatusBadRequest, code: "validation_failed", field: "guestEmail",
		},
		{
			name: "slot outside availability", method: http.MethodPost, path: eventPath + "/bookings",
			body:   map[string]string{"guestName": "A", "guestEmail": "a@example.com", "startTime": "2025-03-17T15:00:00Z"},
			status: http.StatusConflict, code: "slot_unavailable",
		},
		{
			name: "unknown field", method: http.MethodPost, path: eventPath + "/bookings",
			body:   map[string]string{"guest": "A"},
			status: http.StatusBadRequest, code: "invalid_request_body",
		},
		{
			name: "days out of range", method: http.MethodGet, path: eventPath + "/availability?days=61",
			status: http.StatusBadRequest, code: "validation_failed", field: "days",
		},
		{
			name: "zero days", method: http.MethodGet, path: eventPath + "/availability?days=0",
			status: http.StatusBadRequest, code: "validation_failed", field: "days",
		},
		{
			name: "unknown timezone", method: http.MethodGet, path: eventPath + "/availability?timezone=Mars/Olympus",
			status: http.StatusBadRequest, code: "validation_failed", field: "timezone",
		},
		{
			name: "unknown event", method: http.MethodGet, path: "/public/events/6f1c8c1e-0000-4000-8000-000000000000/availability",
			status: http.StatusNotFound, code: "not_found",
		},
		{
			name: "bad event id", method: http.MethodGet, path: "/public/events/xyz/availability",
			status: http.StatusBadRequest, code: "invalid_id",
		},
		{
			name: "unknown platform", method: http.MethodGet, path: "/integrations/check?platform=fax", auth: true,
			status: http.StatusBadRequest, code: "invalid_request",
		},
		{
			name: "google not configured", method: http.MethodGet, path: "/integrations/google/connect", auth: true,
			status: http.StatusNotImplemented, code: "integration_unavailable",
		},
		{
			name: "bad oauth state", method: http.MethodGet, path: "/integrations/google/callback?code=x&state=forged",
			status: http.StatusBadRequest, code: "invalid_state",
		},
		{
			name: "google event without connection", method: http.MethodPost, path: "/events", auth: true,
			body:   map[string]any{"title": "Sync", "duration": 30, "locationType": "GOOGLE_MEET_AND_CALENDAR"},
			status: http.StatusBadRequest, code: "validation_failed", field: "locationType",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body, tt.auth)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			resp := decode[ErrorResponse](t, rec)
			assert.Equal(t, tt.code, resp.Error)
			if tt.field != "" {
				assert.Contains(t, resp.Fields, tt.field)
			}
		})
	}
}

func TestIntegrationsList(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/integrations", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	statuses := decode[[]integration.Status](t, rec)
	require.Len(t, statuses, len(integration.Platforms))
	for _, st := range statuses {
		assert.Equal(t, st.Platform == integration.InPerson, st.IsConnected, st.Platform)
	}
}

func TestPollEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/polls", map[string]any{
		"title":              "Kickoff",
		"duration":           45,
		"slots":              []string{"2025-03-20T15:00:00Z", "2025-03-21T15:00:00Z"},
		"allowMultipleVotes": true,
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[PollResponse](t, rec)
	pollPath := "/polls/" + created.ID.String()

	rec = s.do(t, http.MethodGet, pollPath, nil, false)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, pollPath+"/votes", map[string]any{
		"participant": "Linus",
		"slots":       []string{"2025-03-21T15:00:00Z"},
	}, false)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, http.MethodGet, pollPath+"/results", nil, false)
	require.Equal(t, http.StatusOK, rec.Code)
	res := decode[poll.Results](t, rec)
	assert.Equal(t, 1, res.Participants)
	require.Len(t, res.Slots, 2)
	assert.Equal(t, 1, res.Slots[0].Votes)
	assert.Equal(t, 100.0, res.Slots[0].Percentage)

	rec = s.do(t, http.MethodPost, pollPath+"/finalize", FinalizePollRequest{Slot: "2025-03-21T15:00:00Z"}, true)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, poll.StatusFinalized, decode[PollResponse](t, rec).Status)

	rec = s.do(t, http.MethodPost, pollPath+"/votes", map[string]any{
		"participant": "Ken",
		"slots":       []string{"2025-03-20T15:00:00Z"},
	}, false)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "poll_not_active", decode[ErrorResponse](t, rec).Error)

	rec = s.do(t, http.MethodPost, "/polls", map[string]any{
		"title": "Draft", "duration": 30, "slots": []string{"2025-03-20T15:00:00Z"}, "draft": true,
	}, true)
	require.Equal(t, http.StatusCreated, rec.Code)
	draft := decode[PollResponse](t, rec)
	rec = s.do(t, http.MethodGet, "/polls/"+draft.ID.String(), nil, false)
	assert.Equal(t, http.StatusNotFound, rec.Code, "drafts are hidden from participants")

	rec = s.do(t, http.MethodGet, "/polls?status=draft", nil, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]PollResponse](t, rec), 1)

	rec = s.do(t, http.MethodDelete, "/polls/"+draft.ID.String(), nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestPublicRateLimit(t *testing.T) {
	s := newTestServer(t, func(rc *RouterConfig) {
		rc.PublicRateLimit = 0.001
		rc.PublicRateBurst = 2
	})

	path := "/public/grace/missing"
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, nil, false).Code)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, path, nil, false).Code)
	rec := s.do(t, http.MethodGet, path, nil, false)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))

	// Host endpoints are not limited.
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/me", nil, true).Code)
}

func TestClientKey(t *testing.T) {
	proxies := []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}
	tests := []struct {
		name    string
		remote  string
		xff     []string
		trusted []netip.Prefix
		want    string
	}{
		{name: "peer address", remote: "10.0.0.7:5123", trusted: proxies, want: "10.0.0.7"},
		{name: "header ignored without proxies", remote: "10.0.0.7:5123", xff: []string{"203.0.113.9"}, want: "10.0.0.7"},
		{name: "header ignored from untrusted peer", remote: "198.51.100.2:443", xff: []string{"203.0.113.9"}, trusted: proxies, want: "198.51.100.2"},
		{name: "trusted proxy", remote: "10.0.0.7:5123", xff: []string{"203.0.113.9, 10.0.0.1"}, trusted: proxies, want: "203.0.113.9"},
		{name: "spoofed leftmost entry", remote: "10.0.0.7:5123", xff: []string{"1.2.3.4, 203.0.113.9"}, trusted: proxies, want: "203.0.113.9"},
		{name: "repeated headers", remote: "10.0.0.7:5123", xff: []string{"1.2.3.4", "203.0.113.9, 10.0.0.2"}, trusted: proxies, want: "203.0.113.9"},
		{name: "only proxies", remote: "10.0.0.7:5123", xff: []string{"10.0.0.1"}, trusted: proxies, want: "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for _, v := range tt.xff {
				req.Header.Add("X-Forwarded-For", v)
			}
			assert.Equal(t, tt.want, clientKey(req, tt.trusted))
		})
	}
}

func TestPublicRateLimitIgnoresForgedForwardedFor(t *testing.T) {
	s := newTestServer(t, func(rc *RouterConfig) {
		rc.PublicRateLimit = 0.001
		rc.PublicRateBurst = 1
	})

	path := "/public/grace/missing"
	for i, ip := range []string{"203.0.113.1", "203.0.113.2"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Forwarded-For", ip)
		rec := httptest.NewRecorder()
		s.handler.ServeHTTP(rec, req)
		if i == 0 {
			assert.Equal(t, http.StatusNotFound, rec.Code)
		} else {
			assert.Equal(t, http.StatusTooManyRequests, rec.Code, "a new header value is not a new client")
		}
	}
}

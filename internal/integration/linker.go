package integration

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// MeetingRequest carries what a provider needs to create the external
// meeting for a booking.
type MeetingRequest struct {
	BookingID   uuid.UUID
	HostID      uuid.UUID
	Platform    Platform
	Title       string
	Description string
	Start       time.Time
	End         time.Time
	Timezone    string
	GuestName   string
	GuestEmail  string
}

// Linker creates the meeting link for a booking. In-person meetings have
// no link.
type Linker struct {
	repo   Repository
	google *GoogleMeet
}

// NewLinker returns a linker backed by stored host tokens. google may be
// nil when Google is not configured.
func NewLinker(repo Repository, google *GoogleMeet) *Linker {
	return &Linker{repo: repo, google: google}
}

func (l *Linker) CreateMeeting(ctx context.Context, req MeetingRequest) (string, error) {
	switch req.Platform {
	case InPerson:
		return "", nil
	case GoogleMeetAndCalendar:
		tok, err := l.googleToken(ctx, req.HostID)
		if err != nil {
			return "", err
		}
		return l.google.CreateMeeting(ctx, tok, req)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPlatform, req.Platform)
	}
}

// CancelMeeting deletes the meeting CreateMeeting made for req.BookingID.
// Platforms without an external meeting are a no-op.
func (l *Linker) CancelMeeting(ctx context.Context, req MeetingRequest) error {
	if req.Platform != GoogleMeetAndCalendar {
		return nil
	}
	tok, err := l.googleToken(ctx, req.HostID)
	if err != nil {
		return err
	}
	return l.google.DeleteMeeting(ctx, tok, req.BookingID)
}

func (l *Linker) googleToken(ctx context.Context, hostID uuid.UUID) (*oauth2.Token, error) {
	if l.google == nil {
		return nil, ErrNotConfigured
	}
	in, err := l.repo.Get(ctx, hostID, GoogleMeetAndCalendar)
	if err != nil {
		if errors.Is(err, ErrIntegrationNotFound) {
			return nil, ErrNotConnected
		}
		return nil, fmt.Errorf("load integration: %w", err)
	}
	return in.Token(), nil
}

// CalendarEventID is the Google Calendar event id used for a booking.
// Lowercase hex is valid base32hex, which Google requires for client ids.
func CalendarEventID(bookingID uuid.UUID) string {
	return strings.ReplaceAll(bookingID.String(), "-", "")
}

// GoogleMeet inserts a calendar event with a Meet conference on the host's
// primary calendar.
type GoogleMeet struct {
	oauth *oauth2.Config
	opts  []option.ClientOption
}

// NewGoogleMeet uses cfg to authorize calendar calls. Extra client options
// are appended after the authorized HTTP client.
func NewGoogleMeet(cfg *oauth2.Config, opts ...option.ClientOption) *GoogleMeet {
	return &GoogleMeet{oauth: cfg, opts: opts}
}

func (g *GoogleMeet) service(ctx context.Context, tok *oauth2.Token) (*calendar.Service, error) {
	client := g.oauth.Client(ctx, tok)
	opts := append([]option.ClientOption{option.WithHTTPClient(client)}, g.opts...)

	srv, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return srv, nil
}

func (g *GoogleMeet) CreateMeeting(ctx context.Context, tok *oauth2.Token, req MeetingRequest) (string, error) {
	srv, err := g.service(ctx, tok)
	if err != nil {
		return "", err
	}

	event := &calendar.Event{
		Id:          CalendarEventID(req.BookingID),
		Summary:     req.Title,
		Description: req.Description,
		Start: &calendar.EventDateTime{
			DateTime: req.Start.Format(time.RFC3339),
			TimeZone: req.Timezone,
		},
		End: &calendar.EventDateTime{
			DateTime: req.End.Format(time.RFC3339),
			TimeZone: req.Timezone,
		},
		Attendees: []*calendar.EventAttendee{
			{Email: req.GuestEmail, DisplayName: req.GuestName},
		},
		ConferenceData: &calendar.ConferenceData{
			CreateRequest: &calendar.CreateConferenceRequest{
				// Google deduplicates conference creation on this id.
				RequestId:             req.BookingID.String(),
				ConferenceSolutionKey: &calendar.ConferenceSolutionKey{Type: "hangoutsMeet"},
			},
		},
	}

	created, err := srv.Events.Insert("primary", event).
		ConferenceDataVersion(1).
		SendUpdates("all").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("insert calendar event: %w", err)
	}

	if created.HangoutLink != "" {
		return created.HangoutLink, nil
	}
	if created.ConferenceData != nil {
		for _, ep := range created.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" && ep.Uri != "" {
				return ep.Uri, nil
			}
		}
	}
	if created.HtmlLink != "" {
		return created.HtmlLink, nil
	}
	return "", errors.New("calendar event has no meeting link")
}

// DeleteMeeting removes the booking's calendar event. An event that is
// already gone counts as deleted.
func (g *GoogleMeet) DeleteMeeting(ctx context.Context, tok *oauth2.Token, bookingID uuid.UUID) error {
	srv, err := g.service(ctx, tok)
	if err != nil {
		return err
	}
	err = srv.Events.Delete("primary", CalendarEventID(bookingID)).
		SendUpdates("all").
		Context(ctx).
		Do()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusGone) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("delete calendar event: %w", err)
	}
	return nil
}

package integration

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// Platform is the closed set of meeting location types an event can use.
type Platform string

const (
	GoogleMeetAndCalendar Platform = "GOOGLE_MEET_AND_CALENDAR"
	ZoomMeeting           Platform = "ZOOM_MEETING"
	MicrosoftTeams        Platform = "MICROSOFT_TEAMS"
	InPerson              Platform = "IN_PERSON"
)

var Platforms = []Platform{GoogleMeetAndCalendar, ZoomMeeting, MicrosoftTeams, InPerson}

var (
	ErrUnknownPlatform     = errors.New("unknown location type")
	ErrNotConnected        = errors.New("integration is not connected")
	ErrNotConfigured       = errors.New("integration provider is not configured")
	ErrUnsupportedPlatform = errors.New("no meeting provider for location type")
	ErrIntegrationNotFound = errors.New("integration not found")
)

func ParsePlatform(s string) (Platform, error) {
	p := Platform(strings.ToUpper(strings.TrimSpace(s)))
	for _, known := range Platforms {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownPlatform, s)
}

// RequiresConnection reports whether hosts must connect an account before
// using p on an event type.
func (p Platform) RequiresConnection() bool {
	return p != InPerson
}

func (p *Platform) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParsePlatform(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Integration is a host's connected account on a platform.
type Integration struct {
	ID           uuid.UUID
	HostID       uuid.UUID
	Platform     Platform
	AccessToken  string
	RefreshToken string
	TokenType    string
	Expiry       time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (i *Integration) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  i.AccessToken,
		RefreshToken: i.RefreshToken,
		TokenType:    i.TokenType,
		Expiry:       i.Expiry,
	}
}

// Status is what the event-type form sees for one platform.
type Status struct {
	Platform    Platform `json:"platform"`
	IsConnected bool     `json:"isConnected"`
}

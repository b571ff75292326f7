package integration

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/calendar/v3"
)

// GoogleOAuthConfig builds the OAuth client used to connect Google
// Calendar. It returns nil when any of the values is empty.
func GoogleOAuthConfig(clientID, clientSecret, redirectURL string) *oauth2.Config {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil
	}
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURL,
		Scopes:       []string{calendar.CalendarEventsScope},
		Endpoint:     google.Endpoint,
	}
}

type Service struct {
	repo   Repository
	google *oauth2.Config
	log    zerolog.Logger
}

// NewService wires integration storage with the Google OAuth client.
// googleCfg may be nil, in which case connecting Google fails with
// ErrNotConfigured.
func NewService(repo Repository, googleCfg *oauth2.Config, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		google: googleCfg,
		log:    logger.With().Str("component", "integration").Logger(),
	}
}

// Check reports whether hostID can use p. In-person meetings need no
// account and are always connected.
func (s *Service) Check(ctx context.Context, hostID uuid.UUID, p Platform) (Status, error) {
	if !p.RequiresConnection() {
		return Status{Platform: p, IsConnected: true}, nil
	}
	_, err := s.repo.Get(ctx, hostID, p)
	switch {
	case err == nil:
		return Status{Platform: p, IsConnected: true}, nil
	case errors.Is(err, ErrIntegrationNotFound):
		return Status{Platform: p, IsConnected: false}, nil
	default:
		return Status{}, fmt.Errorf("load integration: %w", err)
	}
}

// List returns the status of every platform for hostID, in Platforms order.
func (s *Service) List(ctx context.Context, hostID uuid.UUID) ([]Status, error) {
	stored, err := s.repo.List(ctx, hostID)
	if err != nil {
		return nil, fmt.Errorf("list integrations: %w", err)
	}
	connected := make(map[Platform]bool, len(stored))
	for _, in := range stored {
		connected[in.Platform] = true
	}

	out := make([]Status, 0, len(Platforms))
	for _, p := range Platforms {
		out = append(out, Status{Platform: p, IsConnected: connected[p] || !p.RequiresConnection()})
	}
	return out, nil
}

// GoogleAuthURL is where the host is sent to grant calendar access.
func (s *Service) GoogleAuthURL(state string) (string, error) {
	if s.google == nil {
		return "", ErrNotConfigured
	}
	return s.google.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce), nil
}

// ConnectGoogle exchanges an authorization code and stores the token.
func (s *Service) ConnectGoogle(ctx context.Context, hostID uuid.UUID, code string) error {
	if s.google == nil {
		return ErrNotConfigured
	}
	tok, err := s.google.Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange google code: %w", err)
	}

	in := &Integration{
		HostID:       hostID,
		Platform:     GoogleMeetAndCalendar,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if err := s.repo.Upsert(ctx, in); err != nil {
		return err
	}
	s.log.Info().Str("host_id", hostID.String()).Str("platform", string(GoogleMeetAndCalendar)).Msg("integration connected")
	return nil
}

func (s *Service) Disconnect(ctx context.Context, hostID uuid.UUID, p Platform) error {
	if err := s.repo.Delete(ctx, hostID, p); err != nil {
		return err
	}
	s.log.Info().Str("host_id", hostID.String()).Str("platform", string(p)).Msg("integration disconnected")
	return nil
}

package api

import (
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hackgods/meeting-scheduler/internal/booking"
	"github.com/hackgods/meeting-scheduler/internal/integration"
	"github.com/hackgods/meeting-scheduler/internal/poll"
)

type RouterConfig struct {
	Booking      *booking.Service
	Polls        *poll.Service
	Integrations *integration.Service
	Tokens       *Tokens
	Health       *HealthHandler
	Logger       zerolog.Logger

	// PublicRateLimit is requests per second per client on public
	// endpoints. Zero disables limiting.
	PublicRateLimit float64
	PublicRateBurst int
	TrustedProxies  []netip.Prefix
	MetricsEnabled  bool
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))

	health := cfg.Health
	if health == nil {
		health = NewHealthHandler("", "")
	}
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Guest facing endpoints
	r.Group(func(r chi.Router) {
		if cfg.PublicRateLimit > 0 {
			r.Use(NewRateLimiter(cfg.PublicRateLimit, cfg.PublicRateBurst, cfg.TrustedProxies).Middleware)
		}

		r.Get("/public/{username}/{slug}", publicEventHandler(cfg.Booking))
		r.Get("/public/events/{id}/availability", eventAvailabilityHandler(cfg.Booking))
		r.Post("/public/events/{id}/bookings", scheduleMeetingHandler(cfg.Booking))

		r.Get("/polls/{id}", getPollHandler(cfg.Polls))
		r.Post("/polls/{id}/votes", votePollHandler(cfg.Polls))
		r.Get("/polls/{id}/results", pollResultsHandler(cfg.Polls))

		r.Get("/integrations/google/callback", googleCallbackHandler(cfg.Integrations, cfg.Tokens))
	})

	// Host endpoints
	r.Group(func(r chi.Router) {
		r.Use(cfg.Tokens.AuthMiddleware)

		r.Get("/me", meHandler(cfg.Booking))

		r.Get("/availability", getAvailabilityHandler(cfg.Booking))
		r.Put("/availability", updateAvailabilityHandler(cfg.Booking))
		r.Get("/availability/overrides", listOverridesHandler(cfg.Booking))
		r.Put("/availability/overrides", upsertOverrideHandler(cfg.Booking))
		r.Put("/availability/overrides/{date}", upsertOverrideHandler(cfg.Booking))
		r.Delete("/availability/overrides/{date}", deleteOverrideHandler(cfg.Booking))

		r.Get("/events", listEventsHandler(cfg.Booking))
		r.Post("/events", createEventHandler(cfg.Booking))
		r.Patch("/events/{id}", updateEventHandler(cfg.Booking))
		r.Delete("/events/{id}", deleteEventHandler(cfg.Booking))

		r.Get("/bookings", listBookingsHandler(cfg.Booking))
		r.Post("/bookings/{id}/cancel", cancelBookingHandler(cfg.Booking))

		r.Get("/integrations", listIntegrationsHandler(cfg.Integrations))
		r.Get("/integrations/check", checkIntegrationHandler(cfg.Integrations))
		r.Get("/integrations/google/connect", googleConnectHandler(cfg.Integrations, cfg.Tokens))
		r.Delete("/integrations/{platform}", disconnectIntegrationHandler(cfg.Integrations))

		r.Get("/polls", listPollsHandler(cfg.Polls))
		r.Post("/polls", createPollHandler(cfg.Polls))
		r.Patch("/polls/{id}", updatePollHandler(cfg.Polls))
		r.Delete("/polls/{id}", deletePollHandler(cfg.Polls))
		r.Post("/polls/{id}/finalize", finalizePollHandler(cfg.Polls))
	})

	return r
}

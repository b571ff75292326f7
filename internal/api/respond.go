package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/hackgods/meeting-scheduler/internal/availability"
	"github.com/hackgods/meeting-scheduler/internal/booking"
	"github.com/hackgods/meeting-scheduler/internal/integration"
	"github.com/hackgods/meeting-scheduler/internal/poll"
)

const maxBodyBytes = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return false
	}
	return true
}

func uuidParam(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// writeServiceError maps the domain error taxonomy onto HTTP statuses.
// Unexpected errors are logged and hidden behind a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		cfgErr *availability.ConfigurationError
		valErr *booking.ValidationError
		intErr *booking.IntegrationError
		oauErr *oauth2.RetrieveError
	)

	switch {
	case errors.As(err, &cfgErr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:   "invalid_configuration",
			Details: cfgErr.Error(),
			Fields:  map[string]string{cfgErr.Field: cfgErr.Msg},
		})
	case errors.As(err, &valErr):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Details: valErr.Error(), Fields: valErr.Fields})
	case errors.Is(err, availability.ErrInvalidSlotID),
		errors.Is(err, availability.ErrInvalidDate),
		errors.Is(err, availability.ErrUnknownTimezone),
		errors.Is(err, availability.ErrInvalidFormat),
		errors.Is(err, integration.ErrUnknownPlatform):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.Is(err, booking.ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "the selected time is no longer available, please pick another slot")
	case errors.Is(err, booking.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, "already_cancelled", err.Error())
	case errors.Is(err, booking.ErrSlugTaken), errors.Is(err, booking.ErrUsernameTaken):
		writeError(w, http.StatusConflict, "already_exists", err.Error())
	case errors.Is(err, poll.ErrPollNotActive):
		writeError(w, http.StatusConflict, "poll_not_active", err.Error())
	case errors.Is(err, poll.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_status_transition", err.Error())
	case errors.As(err, &intErr):
		zerolog.Ctx(r.Context()).Warn().Err(intErr.Err).Str("platform", string(intErr.Platform)).Msg("meeting provider failed")
		writeError(w, http.StatusBadGateway, "integration_failed", "could not create the meeting with "+string(intErr.Platform))
	case errors.As(err, &oauErr):
		zerolog.Ctx(r.Context()).Warn().Err(err).Msg("oauth token exchange failed")
		writeError(w, http.StatusBadGateway, "integration_failed", "the provider rejected the authorization code")
	case errors.Is(err, integration.ErrNotConnected):
		writeError(w, http.StatusConflict, "integration_not_connected", err.Error())
	case errors.Is(err, integration.ErrNotConfigured), errors.Is(err, integration.ErrUnsupportedPlatform):
		writeError(w, http.StatusNotImplemented, "integration_unavailable", err.Error())
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, integration.ErrIntegrationNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

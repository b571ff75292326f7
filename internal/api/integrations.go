package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/meeting-scheduler/internal/integration"
)

const oauthStateTTL = 10 * time.Minute

func listIntegrationsHandler(svc *integration.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		statuses, err := svc.List(r.Context(), s.HostID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, statuses)
	}
}

func checkIntegrationHandler(svc *integration.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		p, err := integration.ParsePlatform(r.URL.Query().Get("platform"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		status, err := svc.Check(r.Context(), s.HostID, p)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, status)
	}
}

func disconnectIntegrationHandler(svc *integration.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		p, err := integration.ParsePlatform(chi.URLParam(r, "platform"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		if err := svc.Disconnect(r.Context(), s.HostID, p); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// googleConnectHandler returns the Google consent URL. The OAuth state is a
// short lived token naming the host, so the callback needs no bearer token.
func googleConnectHandler(svc *integration.Service, tokens *Tokens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		state, err := tokens.sign(s, purposeOAuthState, oauthStateTTL)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		url, err := svc.GoogleAuthURL(state)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ConnectResponse{URL: url})
	}
}

func googleCallbackHandler(svc *integration.Service, tokens *Tokens) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if e := q.Get("error"); e != "" {
			writeError(w, http.StatusBadRequest, "oauth_denied", e)
			return
		}
		s, err := tokens.parse(q.Get("state"), purposeOAuthState)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_state", "oauth state is invalid or expired")
			return
		}
		code := q.Get("code")
		if code == "" {
			writeError(w, http.StatusBadRequest, "missing_code", "authorization code is required")
			return
		}
		if err := svc.ConnectGoogle(r.Context(), s.HostID, code); err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, integration.Status{Platform: integration.GoogleMeetAndCalendar, IsConnected: true})
	}
}

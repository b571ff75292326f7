package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/meeting-scheduler/internal/booking"
)

func publicEventHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pe, err := svc.GetPublicEvent(r.Context(), chi.URLParam(r, "username"), chi.URLParam(r, "slug"))
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, PublicEventResponse{
			Event: newEventResponse(pe.Event),
			Host:  newHostResponse(pe.Host),
		})
	}
}

// eventAvailabilityHandler serves the guest calendar. Query parameters:
// timezone (IANA, default UTC), from (YYYY-MM-DD in that zone), days and
// hourFormat (12h|24h).
func eventAvailabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		q := r.URL.Query()
		query := booking.AvailabilityQuery{
			EventID:    id,
			Timezone:   q.Get("timezone"),
			From:       q.Get("from"),
			HourFormat: q.Get("hourFormat"),
		}
		if raw := q.Get("days"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_days", "days must be an integer")
				return
			}
			query.Days = &n
		}

		res, err := svc.GetAvailabilityForEvent(r.Context(), query)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

func scheduleMeetingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req booking.ScheduleRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		req.EventID = id

		conf, err := svc.ScheduleMeeting(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, ScheduleResponse{
			Booking:     newBookingResponse(*conf.Booking),
			MeetingLink: conf.MeetingLink,
		})
	}
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hackgods/meeting-scheduler/internal/availability"
	"github.com/hackgods/meeting-scheduler/internal/booking"
)

func meHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		host, err := svc.GetHost(r.Context(), s.HostID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newHostResponse(*host))
	}
}

// Availability

func getAvailabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		rules, err := svc.GetAvailability(r.Context(), s.HostID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rules)
	}
}

func updateAvailabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		var req booking.UpdateAvailabilityInput
		if !decodeJSON(w, r, &req) {
			return
		}
		rules, err := svc.UpdateAvailability(r.Context(), s.HostID, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, rules)
	}
}

func dateQuery(w http.ResponseWriter, r *http.Request, name string) (availability.Date, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return availability.Date{}, true
	}
	d, err := availability.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be YYYY-MM-DD")
		return availability.Date{}, false
	}
	return d, true
}

func listOverridesHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		from, ok := dateQuery(w, r, "from")
		if !ok {
			return
		}
		to, ok := dateQuery(w, r, "to")
		if !ok {
			return
		}
		overrides, err := svc.GetDateOverrides(r.Context(), s.HostID, from, to)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, overrides)
	}
}

func upsertOverrideHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		var req availability.Override
		if !decodeJSON(w, r, &req) {
			return
		}
		if raw := chi.URLParam(r, "date"); raw != "" {
			d, err := availability.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			req.Date = d
		}
		saved, err := svc.UpsertDateOverride(r.Context(), s.HostID, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, saved)
	}
}

func deleteOverrideHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		d, err := availability.ParseDate(chi.URLParam(r, "date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		if err := svc.DeleteDateOverride(r.Context(), s.HostID, d); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Event types

func listEventsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		events, err := svc.ListEvents(r.Context(), s.HostID)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp := make([]EventResponse, 0, len(events))
		for _, e := range events {
			resp = append(resp, newEventResponse(e))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createEventHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		var req booking.CreateEventInput
		if !decodeJSON(w, r, &req) {
			return
		}
		e, err := svc.CreateEvent(r.Context(), s.HostID, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newEventResponse(*e))
	}
}

func updateEventHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req booking.UpdateEventInput
		if !decodeJSON(w, r, &req) {
			return
		}
		e, err := svc.UpdateEvent(r.Context(), s.HostID, id, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newEventResponse(*e))
	}
}

func deleteEventHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.DeleteEvent(r.Context(), s.HostID, id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// Bookings

func listBookingsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		f := booking.BookingFilter{HostID: s.HostID, Status: booking.BookingStatus(q.Get("status"))}

		for name, dst := range map[string]*time.Time{"from": &f.From, "to": &f.To} {
			if raw := q.Get(name); raw != "" {
				t, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be an RFC 3339 timestamp")
					return
				}
				*dst = t
			}
		}
		for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
			if raw := q.Get(name); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n < 0 {
					writeError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
					return
				}
				*dst = n
			}
		}

		bookings, err := svc.ListBookings(r.Context(), f)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp := ListBookingsResponse{Bookings: make([]BookingResponse, 0, len(bookings))}
		for _, b := range bookings {
			resp.Bookings = append(resp.Bookings, newBookingResponse(b))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func cancelBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req CancelBookingRequest
		if r.ContentLength != 0 && !decodeJSON(w, r, &req) {
			return
		}
		b, err := svc.CancelBooking(r.Context(), s.HostID, id, req.Reason)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newBookingResponse(*b))
	}
}

package api

import (
	"net/http"

	"github.com/hackgods/meeting-scheduler/internal/poll"
)

func listPollsHandler(svc *poll.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		q := r.URL.Query()
		polls, err := svc.List(r.Context(), poll.ListFilter{
			HostID: s.HostID,
			Status: poll.Status(q.Get("status")),
			Query:  q.Get("q"),
		})
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		resp := make([]PollResponse, 0, len(polls))
		for _, p := range polls {
			resp = append(resp, newPollResponse(p))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func createPollHandler(svc *poll.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		var req poll.CreateInput
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := svc.Create(r.Context(), s.HostID, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, newPollResponse(*p))
	}
}

func updatePollHandler(svc *poll.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req UpdatePollRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := svc.UpdateStatus(r.Context(), s.HostID, id, req.Status)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newPollResponse(*p))
	}
}

func deletePollHandler(svc *poll.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		if err := svc.Delete(r.Context(), s.HostID, id); err != nil {
			writeServiceError(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func finalizePollHandler(svc *poll.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, ok := mustSession(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req FinalizePollRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := svc.Finalize(r.Context(), s.HostID, id, req.Slot)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newPollResponse(*p))
	}
}

// Participant endpoints. Drafts are not visible to participants.

func getPollHandler(svc *poll.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		p, err := svc.Get(r.Context(), id)
		if err == nil && p.Status == poll.StatusDraft {
			err = poll.ErrPollNotFound
		}
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newPollResponse(*p))
	}
}

func votePollHandler(svc *poll.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		var req poll.VoteInput
		if !decodeJSON(w, r, &req) {
			return
		}
		p, err := svc.SubmitVote(r.Context(), id, req)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, newPollResponse(*p))
	}
}

func pollResultsHandler(svc *poll.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		res, err := svc.Results(r.Context(), id)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	}
}

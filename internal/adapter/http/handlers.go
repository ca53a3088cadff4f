package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

type searchRequest struct {
	Query string `json:"query"`
}

type reinitializeRequest struct {
	HasLocationPermission bool `json:"has_location_permission"`
}

type viewRequest struct {
	Hourly bool `json:"hourly"`
}

// handleState handles GET /api/v1/state.
func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

// handleSearch handles POST /api/v1/search. The lookup runs in the
// background; the response carries the state right after dispatch, which is
// Loading, or Error for blank input.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.ctrl.SearchByText(req.Query)
	writeJSON(w, http.StatusAccepted, s.ctrl.State())
}

// handleLocation handles POST /api/v1/location.
func (s *Server) handleLocation(w http.ResponseWriter, _ *http.Request) {
	s.ctrl.UseDeviceLocation()
	writeJSON(w, http.StatusAccepted, s.ctrl.State())
}

// handleReinitialize handles POST /api/v1/reinitialize. Only the first call
// restores the session; later calls get 409.
func (s *Server) handleReinitialize(w http.ResponseWriter, r *http.Request) {
	var req reinitializeRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if !s.ctrl.Reinitialize(req.HasLocationPermission) {
		writeError(w, http.StatusConflict, "already initialized")
		return
	}
	writeJSON(w, http.StatusAccepted, s.ctrl.State())
}

// handleSelect handles POST /api/v1/select/{daily,hourly}/{index}.
func (s *Server) handleSelect(sel func(int) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "index must be an integer")
			return
		}
		if !sel(index) {
			writeError(w, http.StatusConflict, "selection not applicable to current state")
			return
		}
		writeJSON(w, http.StatusOK, s.ctrl.State())
	}
}

// handleView handles POST /api/v1/view.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	var req viewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !s.ctrl.ToggleHourlyView(req.Hourly) {
		writeError(w, http.StatusConflict, "view not applicable to current state")
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

// handleDismiss handles POST /api/v1/dismiss.
func (s *Server) handleDismiss(w http.ResponseWriter, _ *http.Request) {
	if !s.ctrl.DismissError() {
		writeError(w, http.StatusConflict, "no error to dismiss")
		return
	}
	writeJSON(w, http.StatusOK, s.ctrl.State())
}

// handleStream handles GET /api/v1/state/stream as server-sent events. The
// current state is sent first; intermediate states may be skipped when the
// client reads slower than the state changes.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)
	// The stream outlives the server write timeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("clear stream write deadline", "error", err)
	}

	updates, cancel := s.ctrl.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.closing.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			data, err := json.Marshal(st)
			if err != nil {
				s.logger.Error("encode state event", "error", err)
				return
			}
			if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

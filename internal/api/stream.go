package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"localservices/internal/models"
)

const streamHeartbeat = 25 * time.Second

// handleCustomerStream pushes the customer's list as server-sent events. The
// default view is the projected group rows; ?view=bookings streams raw records.
func (s *HTTPServer) handleCustomerStream(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	customerID := r.PathValue("id")
	if err := allowSubject(actor, models.RoleUser, customerID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	if r.URL.Query().Get("view") == "bookings" {
		ch, err := s.watcher.WatchCustomer(r.Context(), customerID)
		if err != nil {
			s.writeServiceError(w, r, err)
			return
		}
		streamSnapshots(s, w, r, ch)
		return
	}

	ch, err := s.watcher.WatchCustomerGroups(r.Context(), customerID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	streamSnapshots(s, w, r, ch)
}

func (s *HTTPServer) handleProviderStream(w http.ResponseWriter, r *http.Request) {
	actor, ok := requestActor(w, r)
	if !ok {
		return
	}
	providerID := r.PathValue("id")
	if err := allowSubject(actor, models.RoleProvider, providerID); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	ch, err := s.watcher.WatchProvider(r.Context(), providerID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	streamSnapshots(s, w, r, ch)
}

// streamSnapshots writes every snapshot as a "snapshot" event until the client
// goes away or the watcher closes the channel.
func streamSnapshots[T any](s *HTTPServer, w http.ResponseWriter, r *http.Request, ch <-chan T) {
	rc := http.NewResponseController(w)
	// the server write timeout would cut long-lived streams
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn().Err(err).Msg("streaming not supported by response writer")
		return
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case snapshot, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(snapshot)
			if err != nil {
				s.logger.Error().Err(err).Msg("encode snapshot")
				return
			}
			if _, err := fmt.Fprintf(w, "event: snapshot\ndata: %s\n\n", data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

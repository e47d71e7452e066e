package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
)

// handleRunProgress streams job snapshots via Server-Sent Events.
//
// Each snapshot is sent as a "progress" event whose id is the backend
// progress percentage; a client reconnecting with lastEventId skips
// snapshots it already has. When the run reaches a terminal state, or is
// superseded or reset, a final "complete" event carries the current snapshot.
func (s *Server) handleRunProgress(w http.ResponseWriter, r *http.Request) {
	lastEventIDStr := r.URL.Query().Get("lastEventId")
	if lastEventIDStr == "" {
		lastEventIDStr = r.Header.Get("Last-Event-ID")
	}
	lastEventID, _ := strconv.Atoi(lastEventIDStr)

	updates, unsubscribe := s.service.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	rc := http.NewResponseController(w)

	for {
		select {
		case j, ok := <-updates:
			if !ok {
				// Intermediate snapshots may have been dropped; report the
				// state the run actually ended in.
				data, _ := json.Marshal(newJobView(s.service.Job()))
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				_ = rc.Flush()
				return
			}

			if lastEventIDStr != "" && j.Status.Active() && j.Progress <= lastEventID {
				continue
			}

			data, err := json.Marshal(newJobView(j))
			if err != nil {
				continue
			}

			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", j.Progress, data)
			if err := rc.Flush(); err != nil {
				return
			}

		case <-r.Context().Done():
			return
		}
	}
}

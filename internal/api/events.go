package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/seantiz/yieldlab/internal/engine"
	"github.com/seantiz/yieldlab/internal/model"
)

// handleStreamEvents streams a job's status transitions as Server-Sent
// Events. The current status is sent first, followed by every later status
// until the job is terminal, after which a "done" event ends the stream.
func (s *Server) handleStreamEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.registry.GetJobStatus(r.Context(), id); err != nil {
		s.writeRegistryError(w, err, "get job")
		return
	}

	// Subscribe before reading the current status so that no transition
	// between the two is lost. A job that already finished yields a closed
	// channel.
	ch, unsub := s.registry.SubscribeJob(id)
	defer unsub()

	job, err := s.registry.GetJobStatus(r.Context(), id)
	if err != nil {
		s.writeRegistryError(w, err, "get job")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// Disable write timeout for long-lived SSE connections.
	rc := http.NewResponseController(w)
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		s.logger.Debug("set write deadline for SSE", "error", err)
	}

	w.WriteHeader(http.StatusOK)
	flusher, canFlush := w.(http.Flusher)
	flush := func() {
		if canFlush {
			flusher.Flush()
		}
	}

	last := job.Status
	if err := writeStatusEvent(w, engine.StatusEvent{JobID: id, Status: last, At: job.UpdatedAt}); err != nil {
		return
	}
	flush()

stream:
	for !model.IsTerminal(last) {
		select {
		case ev, ok := <-ch:
			if !ok {
				// The runner closes the stream after recording the outcome,
				// so the stored record holds the terminal status.
				final, err := s.registry.GetJobStatus(r.Context(), id)
				if err == nil && model.StatusRank(final.Status) > model.StatusRank(last) {
					_ = writeStatusEvent(w, engine.StatusEvent{JobID: id, Status: final.Status, At: final.UpdatedAt})
				}
				break stream
			}
			if model.StatusRank(ev.Status) <= model.StatusRank(last) {
				continue
			}
			last = ev.Status
			if err := writeStatusEvent(w, ev); err != nil {
				return // Write failed (e.g. client gone).
			}
			flush()
		case <-r.Context().Done():
			return // Client disconnected.
		}
	}

	_ = writeSSEEvent(w, "done", "stream complete")
	flush()
}

func writeStatusEvent(w http.ResponseWriter, ev engine.StatusEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode status event: %w", err)
	}
	return writeSSEData(w, string(data))
}

// writeSSEData writes a data event. Multi-line strings are split so that each
// segment gets its own "data:" prefix.
func writeSSEData(w http.ResponseWriter, line string) error {
	for seg := range strings.SplitSeq(line, "\n") {
		if _, err := fmt.Fprintf(w, "data: %s\n", seg); err != nil {
			return err
		}
	}
	// Blank line terminates the event.
	_, err := fmt.Fprint(w, "\n")
	return err
}

// writeSSEEvent writes a named SSE event (event: <type>\ndata: <data>\n\n).
func writeSSEEvent(w http.ResponseWriter, eventType, data string) error {
	if _, err := fmt.Fprintf(w, "event: %s\n", eventType); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	return nil
}

package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/kalambet/watchfeed/internal/pipeline"
)

// sseWriter renders pipeline events as server-sent events.
type sseWriter struct {
	w       http.ResponseWriter
	flusher http.Flusher
	broken  bool
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return nil, false
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{w: w, flusher: flusher}, true
}

// send writes one frame and reports whether the client is still reachable.
// After the first failed write every later call is a no-op.
func (s *sseWriter) send(ev pipeline.Event) bool {
	if s.broken {
		return false
	}
	data, err := json.Marshal(ev.Data)
	if err != nil {
		slog.Error("marshalling stream event", "event", ev.Name, "error", err)
		return true
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		s.broken = true
		return false
	}
	s.flusher.Flush()
	return true
}

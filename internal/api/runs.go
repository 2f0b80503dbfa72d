package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kalambet/watchfeed/internal/pipeline"
	"github.com/kalambet/watchfeed/internal/runlog"
	"github.com/kalambet/watchfeed/internal/storage"
)

type translateRequest struct {
	PostID string `json:"postId"`
	Limit  int    `json:"limit"`
	Stream bool   `json:"stream"`
}

// handleFetch streams a fetch run. The run is detached from the request so
// that a disconnected client still gets its posts stored and the run logged.
func handleFetch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wl, ok := ownedWatchlist(w, r, deps.Store)
		if !ok {
			return
		}
		members, err := deps.Store.ListMembers(wl.ID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list members: %v", err)
			return
		}
		if len(members) == 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "watchlist has no members")
			return
		}

		seq, err := deps.Fetcher.Start(context.WithoutCancel(r.Context()), wl.OwnerID, wl.ID)
		if err != nil {
			writeRunError(w, err)
			return
		}
		sse, ok := newSSEWriter(w)
		if !ok {
			pipeline.Drain(seq)
			return
		}
		for ev := range seq {
			if !sse.send(ev) {
				slog.Debug("fetch client gone, draining run", "watchlist_id", wl.ID)
			}
		}
	}
}

func handleTranslate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wl, ok := ownedWatchlist(w, r, deps.Store)
		if !ok {
			return
		}
		var req translateRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.PostID = strings.TrimSpace(req.PostID)
		if req.Limit < 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "limit must not be negative")
			return
		}

		if req.Stream && req.PostID == "" {
			streamTranslate(deps, w, r, wl, req.Limit)
			return
		}

		if err := deps.Translator.CheckConfigured(r.Context(), wl.OwnerID); err != nil {
			writeRunError(w, err)
			return
		}

		if req.PostID != "" {
			summary, err := deps.Translator.TranslateOne(r.Context(), wl.OwnerID, wl.ID, req.PostID)
			if err != nil {
				writeRunError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, summary)
			return
		}

		seq, err := deps.Translator.Start(r.Context(), wl.OwnerID, wl.ID, req.Limit)
		if err != nil {
			writeRunError(w, err)
			return
		}
		done, ok := pipeline.Drain(seq)
		if !ok {
			// Client went away before the run finished; the run log is recorded.
			return
		}
		writeJSON(w, http.StatusOK, done.Data)
	}
}

// streamTranslate emits one event per post. A missing AI configuration is
// answered before the stream opens. The run stops starting new posts once
// the client disconnects.
func streamTranslate(deps AppDeps, w http.ResponseWriter, r *http.Request, wl storage.Watchlist, limit int) {
	if err := deps.Translator.CheckConfigured(r.Context(), wl.OwnerID); err != nil {
		writeRunError(w, err)
		return
	}
	seq, err := deps.Translator.Start(r.Context(), wl.OwnerID, wl.ID, limit)
	if err != nil {
		writeRunError(w, err)
		return
	}
	sse, ok := newSSEWriter(w)
	if !ok {
		return
	}
	for ev := range seq {
		if !sse.send(ev) {
			return
		}
	}
}

func handleListLogs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wl, ok := ownedWatchlist(w, r, deps.Store)
		if !ok {
			return
		}
		limit := parseIntParam(r, "limit", runlog.DefaultListLimit, runlog.MaxListLimit)

		logs, err := deps.Recorder.List(wl.ID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list run logs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, logs)
	}
}

func handleDeleteLogs(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n, err := deps.Store.DeleteRunLogs(ownerFrom(r.Context()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete run logs: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]int{"deleted": n})
	}
}

package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kalambet/watchfeed/internal/llm"
	"github.com/kalambet/watchfeed/internal/pipeline"
	"github.com/kalambet/watchfeed/internal/runlog"
	"github.com/kalambet/watchfeed/internal/storage"
)

// AIBackends exposes the owner's AI configuration to the settings handlers.
type AIBackends interface {
	Settings(ownerID string) (llm.Settings, error)
	ListModels(ctx context.Context, provider, apiKey string) ([]string, error)
}

type AppDeps struct {
	Store        *storage.Store
	Fetcher      *pipeline.Fetcher
	Translator   *pipeline.Translator
	Recorder     *runlog.Recorder
	AI           AIBackends
	Token        string
	DefaultOwner string
}

// NewAppHandler returns the HTTP API. /health and /metrics are public; every
// other route requires the bearer token.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Use(OwnerID(deps.DefaultOwner))

		r.Route("/watchlists", func(r chi.Router) {
			r.Post("/", handleCreateWatchlist(deps))
			r.Get("/", handleListWatchlists(deps))

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", handleGetWatchlist(deps))
				r.Delete("/", handleDeleteWatchlist(deps))

				r.Get("/members", handleListMembers(deps))
				r.Post("/members", handleAddMember(deps))
				r.Delete("/members/{memberID}", handleRemoveMember(deps))

				r.Get("/posts", handleListPosts(deps))
				r.Post("/fetch", handleFetch(deps))
				r.Post("/translate", handleTranslate(deps))
				r.Get("/logs", handleListLogs(deps))

				r.Get("/settings", handleGetWatchlistSettings(deps))
				r.Put("/settings", handlePutWatchlistSettings(deps))
				r.Delete("/settings", handleResetWatchlistSettings(deps))
			})
		})

		r.Get("/settings", handleGetSettings(deps))
		r.Put("/settings", handlePutSettings(deps))
		r.Get("/settings/ai", handleGetAISettings(deps))
		r.Put("/settings/ai", handlePutAISettings(deps))
		r.Get("/settings/ai/models", handleListAIModels(deps))

		r.Delete("/logs", handleDeleteLogs(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

// ownedWatchlist loads the {id} watchlist and writes a 404 when it is missing
// or belongs to another owner.
func ownedWatchlist(w http.ResponseWriter, r *http.Request, store *storage.Store) (storage.Watchlist, bool) {
	id := chi.URLParam(r, "id")
	wl, err := store.GetWatchlist(id)
	if errors.Is(err, storage.ErrNotFound) || (err == nil && wl.OwnerID != ownerFrom(r.Context())) {
		httpError(w, http.StatusNotFound, "not_found", "watchlist not found")
		return storage.Watchlist{}, false
	}
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to get watchlist: %v", err)
		return storage.Watchlist{}, false
	}
	return wl, true
}

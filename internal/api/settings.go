package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/kalambet/watchfeed/internal/llm"
	"github.com/kalambet/watchfeed/internal/provider"
	"github.com/kalambet/watchfeed/internal/retention"
	"github.com/kalambet/watchfeed/internal/storage"
)

// settingsRequest updates retention settings. Nil fields are left unchanged.
type settingsRequest struct {
	RetentionDays        *int `json:"retentionDays"`
	FetchIntervalMinutes *int `json:"fetchIntervalMinutes"`
}

type settingsResponse struct {
	retention.Config
	AllowedRetentionDays        []int `json:"allowedRetentionDays"`
	AllowedFetchIntervalMinutes []int `json:"allowedFetchIntervalMinutes"`
}

type aiSettingsRequest struct {
	Provider       *string `json:"provider"`
	Model          *string `json:"model"`
	APIKey         *string `json:"apiKey"`
	ProviderAPIKey *string `json:"providerApiKey"`
}

type aiSettingsResponse struct {
	Provider       string `json:"provider"`
	Model          string `json:"model"`
	HasAPIKey      bool   `json:"hasApiKey"`
	HasProviderKey bool   `json:"hasProviderKey"`
	Configured     bool   `json:"configured"`
}

func handleGetSettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeResolvedSettings(w, deps.Store, ownerFrom(r.Context()), "")
	}
}

func handlePutSettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ownerFrom(r.Context())
		if !applySettings(w, r, deps.Store, owner, "") {
			return
		}
		writeResolvedSettings(w, deps.Store, owner, "")
	}
}

func handleGetWatchlistSettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wl, ok := ownedWatchlist(w, r, deps.Store)
		if !ok {
			return
		}
		writeResolvedSettings(w, deps.Store, wl.OwnerID, wl.ID)
	}
}

func handlePutWatchlistSettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wl, ok := ownedWatchlist(w, r, deps.Store)
		if !ok {
			return
		}
		if !applySettings(w, r, deps.Store, wl.OwnerID, wl.ID) {
			return
		}
		writeResolvedSettings(w, deps.Store, wl.OwnerID, wl.ID)
	}
}

// handleResetWatchlistSettings drops the watchlist overrides so the global
// values apply again.
func handleResetWatchlistSettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wl, ok := ownedWatchlist(w, r, deps.Store)
		if !ok {
			return
		}
		for _, key := range []string{retention.KeyRetentionDays, retention.KeyFetchIntervalMinutes} {
			if err := deps.Store.DeleteSetting(wl.OwnerID, retention.ScopedKey(key, wl.ID)); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to reset settings: %v", err)
				return
			}
		}
		writeResolvedSettings(w, deps.Store, wl.OwnerID, wl.ID)
	}
}

func applySettings(w http.ResponseWriter, r *http.Request, store *storage.Store, owner, watchlistID string) bool {
	var req settingsRequest
	if !decodeBody(w, r, &req) {
		return false
	}
	if req.RetentionDays != nil && !retention.ValidRetentionDays(*req.RetentionDays) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "retentionDays must be one of %v", retention.AllowedRetentionDays)
		return false
	}
	if req.FetchIntervalMinutes != nil && !retention.ValidFetchInterval(*req.FetchIntervalMinutes) {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "fetchIntervalMinutes must be one of %v", retention.AllowedFetchIntervalMinutes)
		return false
	}

	scoped := func(key string) string {
		if watchlistID == "" {
			return key
		}
		return retention.ScopedKey(key, watchlistID)
	}
	if req.RetentionDays != nil {
		if err := store.SetSetting(owner, scoped(retention.KeyRetentionDays), strconv.Itoa(*req.RetentionDays)); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save settings: %v", err)
			return false
		}
	}
	if req.FetchIntervalMinutes != nil {
		if err := store.SetSetting(owner, scoped(retention.KeyFetchIntervalMinutes), strconv.Itoa(*req.FetchIntervalMinutes)); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save settings: %v", err)
			return false
		}
	}
	return true
}

func writeResolvedSettings(w http.ResponseWriter, store *storage.Store, owner, watchlistID string) {
	cfg, err := retention.Resolve(store, owner, watchlistID)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to resolve settings: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, settingsResponse{
		Config:                      cfg,
		AllowedRetentionDays:        retention.AllowedRetentionDays,
		AllowedFetchIntervalMinutes: retention.AllowedFetchIntervalMinutes,
	})
}

func handleGetAISettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeAISettings(w, deps, ownerFrom(r.Context()))
	}
}

func handlePutAISettings(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := ownerFrom(r.Context())
		var req aiSettingsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Provider != nil && *req.Provider != "" && !llm.ValidProvider(*req.Provider) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unsupported provider %q", *req.Provider)
			return
		}

		updates := []struct {
			key string
			val *string
		}{
			{llm.KeyProvider, req.Provider},
			{llm.KeyModel, req.Model},
			{llm.KeyAPIKey, req.APIKey},
			{provider.KeyAPIKey, req.ProviderAPIKey},
		}
		for _, u := range updates {
			if u.val == nil {
				continue
			}
			v := strings.TrimSpace(*u.val)
			var err error
			if v == "" {
				err = deps.Store.DeleteSetting(owner, u.key)
			} else {
				err = deps.Store.SetSetting(owner, u.key, v)
			}
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to save %s: %v", u.key, err)
				return
			}
		}
		writeAISettings(w, deps, owner)
	}
}

func writeAISettings(w http.ResponseWriter, deps AppDeps, owner string) {
	s, err := deps.AI.Settings(owner)
	if err != nil {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to read AI settings: %v", err)
		return
	}
	_, err = deps.Store.GetSetting(owner, provider.KeyAPIKey)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		httpError(w, http.StatusInternalServerError, "api_error", "failed to read provider key: %v", err)
		return
	}
	writeJSON(w, http.StatusOK, aiSettingsResponse{
		Provider:       s.Provider,
		Model:          s.Model,
		HasAPIKey:      s.APIKey != "",
		HasProviderKey: err == nil,
		Configured:     s.Configured(),
	})
}

func handleListAIModels(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := deps.AI.Settings(ownerFrom(r.Context()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read AI settings: %v", err)
			return
		}
		name := r.URL.Query().Get("provider")
		if name == "" {
			name = s.Provider
		}
		if !llm.ValidProvider(name) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "unsupported provider %q", name)
			return
		}
		apiKey := ""
		if name == s.Provider {
			apiKey = s.APIKey
		}

		models, err := deps.AI.ListModels(r.Context(), name, apiKey)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "failed to list models: %v", err)
			return
		}
		if models == nil {
			models = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"provider": name, "models": models})
	}
}

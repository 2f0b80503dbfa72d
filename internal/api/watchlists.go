package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/watchfeed/internal/storage"
)

const (
	defaultPostsLimit = 50
	maxPostsLimit     = 200
)

type createWatchlistRequest struct {
	Name string `json:"name"`
}

type addMemberRequest struct {
	Username string `json:"username"`
	Note     string `json:"note"`
}

func handleCreateWatchlist(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createWatchlistRequest
		if !decodeBody(w, r, &req) {
			return
		}
		req.Name = strings.TrimSpace(req.Name)
		if req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "name is required")
			return
		}

		wl, err := deps.Store.CreateWatchlist(storage.Watchlist{
			OwnerID: ownerFrom(r.Context()),
			Name:    req.Name,
		})
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create watchlist: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, wl)
	}
}

func handleListWatchlists(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lists, err := deps.Store.ListWatchlists(ownerFrom(r.Context()))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list watchlists: %v", err)
			return
		}
		if lists == nil {
			lists = []storage.Watchlist{}
		}
		writeJSON(w, http.StatusOK, lists)
	}
}

func handleGetWatchlist(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wl, ok := ownedWatchlist(w, r, deps.Store)
		if !ok {
			return
		}
		writeJSON(w, http.StatusOK, wl)
	}
}

func handleDeleteWatchlist(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wl, ok := ownedWatchlist(w, r, deps.Store)
		if !ok {
			return
		}
		if err := deps.Store.DeleteWatchlist(wl.ID); err != nil {
			writeRunError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleListMembers(deps AppDeps) http.HandlerFunc {
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
		if members == nil {
			members = []storage.Member{}
		}
		writeJSON(w, http.StatusOK, members)
	}
}

func handleAddMember(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wl, ok := ownedWatchlist(w, r, deps.Store)
		if !ok {
			return
		}
		var req addMemberRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if storage.NormalizeUsername(req.Username) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "username is required")
			return
		}

		m, err := deps.Store.AddMember(storage.Member{
			WatchlistID: wl.ID,
			OwnerID:     wl.OwnerID,
			Username:    req.Username,
			Note:        strings.TrimSpace(req.Note),
		})
		if errors.Is(err, storage.ErrConflict) {
			httpError(w, http.StatusConflict, "conflict", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to add member: %v", err)
			return
		}
		writeJSON(w, http.StatusCreated, m)
	}
}

func handleRemoveMember(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wl, ok := ownedWatchlist(w, r, deps.Store)
		if !ok {
			return
		}
		err := deps.Store.RemoveMember(wl.ID, chi.URLParam(r, "memberID"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "member not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to remove member: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	}
}

func handleListPosts(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wl, ok := ownedWatchlist(w, r, deps.Store)
		if !ok {
			return
		}
		limit := parseIntParam(r, "limit", defaultPostsLimit, maxPostsLimit)
		if limit == 0 {
			limit = defaultPostsLimit
		}

		posts, err := deps.Store.ListPosts(wl.ID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list posts: %v", err)
			return
		}
		if posts == nil {
			posts = []storage.Post{}
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

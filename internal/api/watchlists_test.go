package api

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/kalambet/watchfeed/internal/provider"
	"github.com/kalambet/watchfeed/internal/storage"
)

func TestWatchlists_CreateListDelete(t *testing.T) {
	env := setupApp(t)

	rr := env.do(t, http.MethodPost, "/watchlists", `{"name":"  AI people "}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var created storage.Watchlist
	if err := json.Unmarshal(rr.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if created.Name != "AI people" || created.OwnerID != testOwner || created.ID == "" {
		t.Errorf("created = %+v", created)
	}

	rr = env.do(t, http.MethodGet, "/watchlists", "")
	var lists []storage.Watchlist
	json.Unmarshal(rr.Body.Bytes(), &lists)
	if len(lists) != 1 || lists[0].ID != created.ID {
		t.Fatalf("list = %+v", lists)
	}

	rr = env.do(t, http.MethodDelete, "/watchlists/"+created.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/watchlists/"+created.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", rr.Code)
	}
}

func TestWatchlists_CreateRequiresName(t *testing.T) {
	env := setupApp(t)

	for _, body := range []string{`{}`, `{"name":"  "}`, `not json`} {
		rr := env.do(t, http.MethodPost, "/watchlists", body)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rr.Code)
		}
	}
}

func TestMembers_AddNormalizesAndRejectsDuplicate(t *testing.T) {
	env := setupApp(t)
	wl := env.createWatchlist(t)
	url := "/watchlists/" + wl.ID + "/members"

	rr := env.do(t, http.MethodPost, url, `{"username":"@ElonMusk"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("add status = %d; body = %s", rr.Code, rr.Body.String())
	}
	var m storage.Member
	json.Unmarshal(rr.Body.Bytes(), &m)
	if m.Username != "elonmusk" {
		t.Errorf("username = %q, want elonmusk", m.Username)
	}

	rr = env.do(t, http.MethodPost, url, `{"username":"elonmusk"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", rr.Code)
	}
	if got := errorType(t, rr); got != "conflict" {
		t.Errorf("error type = %q", got)
	}

	rr = env.do(t, http.MethodPost, url, `{"username":"@"}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("empty handle status = %d, want 400", rr.Code)
	}

	rr = env.do(t, http.MethodGet, url, "")
	var members []storage.Member
	json.Unmarshal(rr.Body.Bytes(), &members)
	if len(members) != 1 {
		t.Fatalf("members = %d, want 1", len(members))
	}

	rr = env.do(t, http.MethodDelete, url+"/"+m.ID, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("remove status = %d", rr.Code)
	}
	rr = env.do(t, http.MethodDelete, url+"/"+m.ID, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", rr.Code)
	}
}

func TestPosts_ListNewestFirstWithLimit(t *testing.T) {
	env := setupApp(t)
	wl := env.createWatchlist(t, "alice")
	env.client.posts["alice"] = []provider.Post{
		upstreamPost("p-old", 3*time.Hour),
		upstreamPost("p-new", time.Hour),
		upstreamPost("p-mid", 2*time.Hour),
	}
	if rr := env.do(t, http.MethodPost, "/watchlists/"+wl.ID+"/fetch", ""); rr.Code != http.StatusOK {
		t.Fatalf("fetch status = %d; body = %s", rr.Code, rr.Body.String())
	}

	rr := env.do(t, http.MethodGet, "/watchlists/"+wl.ID+"/posts?limit=2", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("posts status = %d", rr.Code)
	}
	var posts []storage.Post
	if err := json.Unmarshal(rr.Body.Bytes(), &posts); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("posts = %d, want 2", len(posts))
	}
	if posts[0].ExternalID != "p-new" || posts[1].ExternalID != "p-mid" {
		t.Errorf("order = %s, %s; want p-new, p-mid", posts[0].ExternalID, posts[1].ExternalID)
	}
}

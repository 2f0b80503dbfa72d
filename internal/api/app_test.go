package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/watchfeed/internal/llm"
	"github.com/kalambet/watchfeed/internal/llm/factory"
	"github.com/kalambet/watchfeed/internal/pipeline"
	"github.com/kalambet/watchfeed/internal/provider"
	"github.com/kalambet/watchfeed/internal/runlog"
	"github.com/kalambet/watchfeed/internal/storage"
)

const (
	testToken = "test-token-12345"
	testOwner = "local"
)

// --- mocks ---

type stubClient struct {
	mu    sync.Mutex
	posts map[string][]provider.Post
	calls int
}

func (c *stubClient) FetchUserPosts(_ context.Context, handle string, _ provider.FetchOptions) ([]provider.Post, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.posts[handle], nil
}

type stubProviders struct {
	client provider.Fetcher
	err    error
}

func (s *stubProviders) ForOwner(string) (provider.Fetcher, error) {
	return s.client, s.err
}

type stubGenerators struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (g *stubGenerators) ForOwner(context.Context, string) (llm.Generator, llm.Settings, error) {
	if g.err != nil {
		return nil, llm.Settings{}, g.err
	}
	gen := llm.GeneratorFunc(func(_ context.Context, req llm.Request) (string, error) {
		g.mu.Lock()
		g.calls++
		g.mu.Unlock()
		return "[翻译]\n译文\n[锐评]\n点评", nil
	})
	return gen, llm.Settings{Provider: llm.ProviderOpenRouter, Model: "test-model"}, nil
}

// --- helpers ---

type testEnv struct {
	handler   http.Handler
	store     *storage.Store
	client    *stubClient
	providers *stubProviders
	gens      *stubGenerators
	deps      AppDeps
}

func setupApp(t *testing.T) *testEnv {
	t.Helper()
	return setupAppWithAI(t, factory.Options{})
}

func setupAppWithAI(t *testing.T, aiOpts factory.Options) *testEnv {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	client := &stubClient{posts: make(map[string][]provider.Post)}
	providers := &stubProviders{client: client}
	gens := &stubGenerators{}
	recorder := runlog.NewRecorder(store)

	deps := AppDeps{
		Store:        store,
		Fetcher:      pipeline.NewFetcher(store, providers, recorder, 0),
		Translator:   pipeline.NewTranslator(store, gens, recorder, 0),
		Recorder:     recorder,
		AI:           factory.New(store, aiOpts),
		Token:        testToken,
		DefaultOwner: testOwner,
	}
	return &testEnv{
		handler:   NewAppHandler(deps),
		store:     store,
		client:    client,
		providers: providers,
		gens:      gens,
		deps:      deps,
	}
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (e *testEnv) do(t *testing.T, method, url, body string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, authReq(method, url, body, testToken))
	return rr
}

func (e *testEnv) createWatchlist(t *testing.T, handles ...string) storage.Watchlist {
	t.Helper()
	wl, err := e.store.CreateWatchlist(storage.Watchlist{OwnerID: testOwner, Name: "test"})
	if err != nil {
		t.Fatalf("CreateWatchlist: %v", err)
	}
	for _, h := range handles {
		if _, err := e.store.AddMember(storage.Member{WatchlistID: wl.ID, OwnerID: testOwner, Username: h}); err != nil {
			t.Fatalf("AddMember: %v", err)
		}
	}
	return wl
}

func upstreamPost(id string, age time.Duration) provider.Post {
	created := time.Now().Add(-age).UTC().Truncate(time.Second)
	return provider.Post{
		ID:        id,
		Text:      "text " + id,
		CreatedAt: created,
		Raw:       []byte(fmt.Sprintf(`{"id":%q,"text":"text %s"}`, id, id)),
	}
}

// sseEvents returns the event names of an SSE body in order.
func sseEvents(body string) []string {
	var names []string
	for _, line := range strings.Split(body, "\n") {
		if name, ok := strings.CutPrefix(line, "event: "); ok {
			names = append(names, name)
		}
	}
	return names
}

func errorType(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decoding error envelope %q: %v", rr.Body.String(), err)
	}
	if env.Error.Message == "" {
		t.Errorf("error envelope has no message: %s", rr.Body.String())
	}
	return env.Error.Type
}

// --- tests ---

func TestHealth_NoAuth(t *testing.T) {
	env := setupApp(t)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"ok"`) {
		t.Errorf("body = %s", rr.Body.String())
	}
}

func TestMetrics_NoAuth(t *testing.T) {
	env := setupApp(t)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
}

func TestAuth_MissingToken(t *testing.T) {
	env := setupApp(t)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, authReq(http.MethodGet, "/watchlists", "", ""))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if got := errorType(t, rr); got != "authentication_error" {
		t.Errorf("error type = %q", got)
	}
}

func TestAuth_WrongToken(t *testing.T) {
	env := setupApp(t)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, authReq(http.MethodGet, "/watchlists", "", "nope"))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
}

func TestAuth_SchemeVariants(t *testing.T) {
	env := setupApp(t)
	for header, want := range map[string]int{
		"bearer " + testToken:       http.StatusOK,
		"Bearer  " + testToken:      http.StatusOK,
		"Basic " + testToken:        http.StatusUnauthorized,
		"Bearer":                    http.StatusUnauthorized,
		"Bearer " + testToken + "x": http.StatusUnauthorized,
	} {
		req := httptest.NewRequest(http.MethodGet, "/watchlists", nil)
		req.Header.Set("Authorization", header)
		rr := httptest.NewRecorder()
		env.handler.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Errorf("Authorization %q: status = %d, want %d", header, rr.Code, want)
		}
	}
}

func TestOwnerHeader_IsolatesData(t *testing.T) {
	env := setupApp(t)
	wl := env.createWatchlist(t)

	req := authReq(http.MethodGet, "/watchlists/"+wl.ID, "", testToken)
	req.Header.Set(OwnerHeader, "someone-else")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("foreign owner status = %d, want 404", rr.Code)
	}

	req = authReq(http.MethodGet, "/watchlists", "", testToken)
	req.Header.Set(OwnerHeader, "someone-else")
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("foreign owner list = %s, want []", rr.Body.String())
	}
}

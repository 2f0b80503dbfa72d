package openrouter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/watchfeed/internal/llm"
)

func newTestClient(url string) *Client {
	c := NewClient("test-key", url)
	c.backoff = time.Millisecond
	return c
}

func TestGenerateText(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q, want /chat/completions", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"gen-1","choices":[{"message":{"role":"assistant","content":"[翻译]\n你好"}}]}`)
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL).GenerateText(context.Background(), llm.Request{
		Model:           "openai/gpt-4o-mini",
		Prompt:          "translate: hello",
		MaxOutputTokens: 512,
	})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "[翻译]\n你好" {
		t.Errorf("text = %q", text)
	}
	if got.Model != "openai/gpt-4o-mini" || got.MaxTokens != 512 {
		t.Errorf("request = %+v, want model and max_tokens forwarded", got)
	}
	if len(got.Messages) != 1 || got.Messages[0].Content != "translate: hello" {
		t.Errorf("messages = %+v, want the prompt as one user message", got.Messages)
	}
}

func TestGenerateText_AuthHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).GenerateText(context.Background(), llm.Request{Model: "m"}); err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	want := "Bearer test-key"
	if gotAuth != want {
		t.Errorf("Authorization = %q, want %q", gotAuth, want)
	}
}

func TestGenerateText_RateLimit_Retry(t *testing.T) {
	var attempt atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempt.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		fmt.Fprint(w, `{"choices":[{"message":{"content":"ok"}}]}`)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).GenerateText(context.Background(), llm.Request{Model: "m"}); err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if got := attempt.Load(); got != 2 {
		t.Errorf("attempts = %d, want 2", got)
	}
}

func TestGenerateText_RateLimit_Exhausted(t *testing.T) {
	var attempt atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateText(context.Background(), llm.Request{Model: "m"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Errorf("error = %q, want it to contain %q", err.Error(), "rate limited")
	}
	if got := attempt.Load(); got != maxRetries {
		t.Errorf("attempts = %d, want %d", got, maxRetries)
	}
}

func TestGenerateText_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":{"message":"bad key"}}`)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).GenerateText(context.Background(), llm.Request{Model: "m"})
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Errorf("error = %v, want status 401", err)
	}
}

func TestGenerateText_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"gen-1","choices":[]}`)
	}))
	defer srv.Close()

	if _, err := newTestClient(srv.URL).GenerateText(context.Background(), llm.Request{Model: "m"}); err == nil {
		t.Error("expected error for empty choices")
	}
}

func TestListModels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"data":[{"id":"openai/gpt-4o-mini"},{"id":"google/gemini-2.5-flash"}]}`)
	}))
	defer srv.Close()

	models, err := newTestClient(srv.URL).ListModels(context.Background())
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	want := []string{"openai/gpt-4o-mini", "google/gemini-2.5-flash"}
	if len(models) != len(want) {
		t.Fatalf("got %d models, want %d", len(models), len(want))
	}
	for i, w := range want {
		if models[i] != w {
			t.Errorf("models[%d] = %q, want %q", i, models[i], w)
		}
	}
}

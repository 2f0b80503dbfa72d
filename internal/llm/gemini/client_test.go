package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/watchfeed/internal/llm"
)

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(context.Background(), "", ""); !errors.Is(err, llm.ErrNotConfigured) {
		t.Errorf("error = %v, want ErrNotConfigured", err)
	}
}

func TestGenerateText(t *testing.T) {
	var gotPath, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[{"content":{"role":"model","parts":[{"text":"[翻译]\n"},{"text":"你好"}]}}]}`)
	}))
	defer srv.Close()

	c, err := New(context.Background(), "g-key", srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := c.GenerateText(context.Background(), llm.Request{Model: "gemini-2.5-flash", Prompt: "hello", MaxOutputTokens: 128})
	if err != nil {
		t.Fatalf("GenerateText: %v", err)
	}
	if text != "[翻译]\n你好" {
		t.Errorf("text = %q", text)
	}
	if !strings.Contains(gotPath, "gemini-2.5-flash:generateContent") {
		t.Errorf("path = %q, want generateContent for the model", gotPath)
	}
	if gotKey != "g-key" {
		t.Errorf("api key header = %q, want g-key", gotKey)
	}
}

func TestGenerateText_EmptyCandidates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates":[]}`)
	}))
	defer srv.Close()

	c, err := New(context.Background(), "g-key", srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.GenerateText(context.Background(), llm.Request{Model: "gemini-2.5-flash", Prompt: "x"}); err == nil {
		t.Error("expected error for empty candidates")
	}
}

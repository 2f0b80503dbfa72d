package runlog

import (
	"testing"

	"github.com/kalambet/watchfeed/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

type limitSpy struct {
	gotLimit int
}

func (s *limitSpy) InsertRunLog(l storage.RunLog) (storage.RunLog, error) { return l, nil }

func (s *limitSpy) ListRunLogs(watchlistID string, limit int) ([]storage.RunLog, error) {
	s.gotLimit = limit
	return nil, nil
}

func TestRecord_DerivesErrorCount(t *testing.T) {
	store := openTestStore(t)
	w, err := store.CreateWatchlist(storage.Watchlist{OwnerID: "o", Name: "w"})
	if err != nil {
		t.Fatalf("CreateWatchlist: %v", err)
	}
	r := NewRecorder(store)

	l, err := r.Record(Entry{
		OwnerID: "o", WatchlistID: w.ID, Type: storage.RunTypeFetch,
		Attempted: 3, Succeeded: 6, Skipped: 1,
		Errors: []string{"@member2: boom"},
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if l.ErrorCount != 1 {
		t.Errorf("ErrorCount = %d, want 1", l.ErrorCount)
	}

	logs, err := r.List(w.ID, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(logs) != 1 {
		t.Fatalf("got %d logs, want 1", len(logs))
	}
	if logs[0].Errors[0] != "@member2: boom" {
		t.Errorf("Errors = %v", logs[0].Errors)
	}
}

func TestList_EmptyIsNotNil(t *testing.T) {
	logs, err := NewRecorder(openTestStore(t)).List("missing", 10)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if logs == nil {
		t.Error("List returned nil, want empty slice")
	}
}

func TestList_ClampsLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, DefaultListLimit},
		{-5, DefaultListLimit},
		{10, 10},
		{500, MaxListLimit},
	}
	for _, tt := range tests {
		spy := &limitSpy{}
		if _, err := NewRecorder(spy).List("w", tt.in); err != nil {
			t.Fatalf("List: %v", err)
		}
		if spy.gotLimit != tt.want {
			t.Errorf("List(limit=%d) queried %d, want %d", tt.in, spy.gotLimit, tt.want)
		}
	}
}

// Package runlog records one immutable summary per fetch or translate run.
package runlog

import (
	"log/slog"

	"github.com/kalambet/watchfeed/internal/metrics"
	"github.com/kalambet/watchfeed/internal/storage"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Store is the subset of storage used by the recorder.
type Store interface {
	InsertRunLog(l storage.RunLog) (storage.RunLog, error)
	ListRunLogs(watchlistID string, limit int) ([]storage.RunLog, error)
}

// Entry holds the aggregate counts of a finished run.
type Entry struct {
	OwnerID     string
	WatchlistID string
	Type        string
	Attempted   int
	Succeeded   int
	Skipped     int
	Purged      int
	Errors      []string
}

type Recorder struct {
	store  Store
	logger *slog.Logger
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, logger: slog.Default()}
}

// Record appends a run log. ErrorCount is derived from Errors.
func (r *Recorder) Record(e Entry) (storage.RunLog, error) {
	l, err := r.store.InsertRunLog(storage.RunLog{
		OwnerID:     e.OwnerID,
		WatchlistID: e.WatchlistID,
		Type:        e.Type,
		Attempted:   e.Attempted,
		Succeeded:   e.Succeeded,
		Skipped:     e.Skipped,
		Purged:      e.Purged,
		ErrorCount:  len(e.Errors),
		Errors:      e.Errors,
	})
	if err != nil {
		return storage.RunLog{}, err
	}
	metrics.RecordRun(e.Type, len(e.Errors))
	r.logger.Info("run recorded",
		"type", e.Type,
		"watchlist_id", e.WatchlistID,
		"attempted", e.Attempted,
		"succeeded", e.Succeeded,
		"skipped", e.Skipped,
		"purged", e.Purged,
		"errors", len(e.Errors),
	)
	return l, nil
}

// List returns a watchlist's run logs newest first. limit <= 0 uses
// DefaultListLimit; larger values are capped at MaxListLimit. Errors is
// never nil so it serializes as an array.
func (r *Recorder) List(watchlistID string, limit int) ([]storage.RunLog, error) {
	logs, err := r.store.ListRunLogs(watchlistID, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []storage.RunLog{}
	}
	for i := range logs {
		if logs[i].Errors == nil {
			logs[i].Errors = []string{}
		}
	}
	return logs, nil
}

// ClampLimit applies the list default and ceiling.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return min(limit, MaxListLimit)
}

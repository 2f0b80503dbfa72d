// Package scheduler runs fetch runs for watchlists whose configured fetch
// interval has elapsed, then translates the posts they stored.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kalambet/watchfeed/internal/llm"
	"github.com/kalambet/watchfeed/internal/pipeline"
	"github.com/kalambet/watchfeed/internal/provider"
	"github.com/kalambet/watchfeed/internal/retention"
	"github.com/kalambet/watchfeed/internal/storage"
)

// Worker polls watchlists and starts due fetch runs.
type Worker struct {
	store      *storage.Store
	fetcher    *pipeline.Fetcher
	translator *pipeline.Translator
	poll       time.Duration
	now        func() time.Time
	logger     *slog.Logger

	// attempted holds the start of the last scheduled run per watchlist.
	// Runs that record no log (no members, no provider key) still count.
	attempted map[string]time.Time
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to one minute.
func NewWorker(store *storage.Store, fetcher *pipeline.Fetcher, translator *pipeline.Translator, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Minute
	}
	return &Worker{
		store:      store,
		fetcher:    fetcher,
		translator: translator,
		poll:       pollInterval,
		now:        time.Now,
		logger:     slog.Default(),
		attempted:  make(map[string]time.Time),
	}
}

// Run checks for due watchlists every poll interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := w.RunOnce(ctx); err != nil {
			w.logger.Error("scheduler iteration failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce fetches every watchlist that is due and returns how many were
// fetched. Failures of one watchlist are logged and do not stop the others.
// It is called from a single goroutine.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	watchlists, err := w.store.ListWatchlists("")
	if err != nil {
		return 0, fmt.Errorf("listing watchlists: %w", err)
	}

	fetched := 0
	for _, wl := range watchlists {
		if ctx.Err() != nil {
			break
		}
		due, err := w.isDue(wl)
		if err != nil {
			w.logger.Warn("checking schedule failed", "watchlist_id", wl.ID, "error", err)
			continue
		}
		if !due {
			continue
		}
		w.attempted[wl.ID] = w.now()
		if err := w.process(ctx, wl); err != nil {
			w.logger.Warn("scheduled fetch failed", "watchlist_id", wl.ID, "error", err)
			continue
		}
		fetched++
	}
	return fetched, nil
}

// isDue reports whether the watchlist has auto fetch enabled and both its
// last fetch run and its last scheduled attempt are older than the
// configured interval.
func (w *Worker) isDue(wl storage.Watchlist) (bool, error) {
	cfg, err := retention.Resolve(w.store, wl.OwnerID, wl.ID)
	if err != nil {
		return false, err
	}
	if cfg.FetchIntervalMinutes == 0 {
		return false, nil
	}
	interval := time.Duration(cfg.FetchIntervalMinutes) * time.Minute
	now := w.now()

	if at, ok := w.attempted[wl.ID]; ok && now.Sub(at) < interval {
		return false, nil
	}

	last, err := w.store.LatestRunLog(wl.ID, storage.RunTypeFetch)
	if errors.Is(err, storage.ErrNotFound) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	return now.Sub(last.CreatedAt) >= interval, nil
}

func (w *Worker) process(ctx context.Context, wl storage.Watchlist) error {
	seq, err := w.fetcher.Start(ctx, wl.OwnerID, wl.ID)
	if err != nil {
		if errors.Is(err, provider.ErrNotConfigured) {
			w.logger.Debug("skipping watchlist without provider key", "watchlist_id", wl.ID)
			return nil
		}
		return err
	}
	done, ok := pipeline.Drain(seq)
	if !ok {
		return nil
	}
	summary, _ := done.Data.(pipeline.FetchSummary)
	if summary.NewPosts == 0 {
		return nil
	}

	if err := w.translator.CheckConfigured(ctx, wl.OwnerID); err != nil {
		if errors.Is(err, llm.ErrNotConfigured) {
			return nil
		}
		return fmt.Errorf("resolving AI backend: %w", err)
	}
	tseq, err := w.translator.Start(ctx, wl.OwnerID, wl.ID, pipeline.MaxTranslateLimit)
	if err != nil {
		return fmt.Errorf("starting translation: %w", err)
	}
	pipeline.Drain(tseq)
	return nil
}

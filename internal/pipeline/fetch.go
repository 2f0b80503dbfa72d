// Package pipeline runs watchlist fetch and translate runs and reports their
// progress as a lazy sequence of events.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/kalambet/watchfeed/internal/metrics"
	"github.com/kalambet/watchfeed/internal/provider"
	"github.com/kalambet/watchfeed/internal/retention"
	"github.com/kalambet/watchfeed/internal/runlog"
	"github.com/kalambet/watchfeed/internal/storage"
)

// ErrInvalidInput is returned for malformed ids or limits.
var ErrInvalidInput = errors.New("invalid input")

// ProviderResolver returns an upstream client scoped to one owner.
type ProviderResolver interface {
	ForOwner(ownerID string) (provider.Fetcher, error)
}

// Fetcher runs fetch runs: purge, then pull every member's newest posts.
type Fetcher struct {
	store     *storage.Store
	providers ProviderResolver
	recorder  *runlog.Recorder
	pageSize  int
	now       func() time.Time
	logger    *slog.Logger
}

// NewFetcher creates a Fetcher. If pageSize is <= 0, it defaults to
// provider.DefaultPageSize.
func NewFetcher(store *storage.Store, providers ProviderResolver, recorder *runlog.Recorder, pageSize int) *Fetcher {
	if pageSize <= 0 {
		pageSize = provider.DefaultPageSize
	}
	return &Fetcher{
		store:     store,
		providers: providers,
		recorder:  recorder,
		pageSize:  pageSize,
		now:       time.Now,
		logger:    slog.Default(),
	}
}

// ownedWatchlist loads a watchlist and checks it belongs to ownerID. A
// foreign watchlist is reported as not found.
func ownedWatchlist(store *storage.Store, ownerID, watchlistID string) (storage.Watchlist, error) {
	if watchlistID == "" {
		return storage.Watchlist{}, fmt.Errorf("watchlist id is required: %w", ErrInvalidInput)
	}
	w, err := store.GetWatchlist(watchlistID)
	if err != nil {
		return storage.Watchlist{}, fmt.Errorf("watchlist %s: %w", watchlistID, err)
	}
	if w.OwnerID != ownerID {
		return storage.Watchlist{}, fmt.Errorf("watchlist %s: %w", watchlistID, storage.ErrNotFound)
	}
	return w, nil
}

// Start checks the preconditions of a fetch run and returns its event
// sequence. Nothing is purged or fetched until the sequence is ranged over.
// The sequence can be consumed once; it stops early when the consumer stops
// ranging or ctx is cancelled, still recording the run log for the members
// processed so far.
func (f *Fetcher) Start(ctx context.Context, ownerID, watchlistID string) (iter.Seq[Event], error) {
	w, err := ownedWatchlist(f.store, ownerID, watchlistID)
	if err != nil {
		return nil, err
	}
	client, err := f.providers.ForOwner(ownerID)
	if err != nil {
		return nil, err
	}

	var used atomic.Bool
	return func(yield func(Event) bool) {
		if used.Swap(true) {
			return
		}
		f.run(ctx, w, client, &emitter{yield: yield})
	}, nil
}

func (f *Fetcher) run(ctx context.Context, w storage.Watchlist, client provider.Fetcher, out *emitter) {
	log := f.logger.With("watchlist_id", w.ID)
	summary := FetchSummary{Errors: []string{}}

	members, err := f.store.ListMembers(w.ID)
	if err != nil {
		log.Error("loading members failed", "error", err)
		summary.Errors = append(summary.Errors, fmt.Sprintf("loading members: %v", err))
		out.emit(EventDone, summary)
		return
	}
	if len(members) == 0 {
		out.emit(EventDone, summary)
		return
	}

	now := f.now()
	expired, orphans := f.purge(w.ID, members, now, &summary)
	summary.Purged = expired + orphans
	if summary.Purged > 0 {
		out.emit(EventCleanup, CleanupEvent{PurgedExpired: expired, PurgedOrphans: orphans})
	}

	cfg, err := retention.Resolve(f.store, w.OwnerID, w.ID)
	if err != nil {
		log.Warn("resolving retention failed, using default", "error", err)
		cfg.RetentionDays = retention.DefaultRetentionDays
	}
	cutoff := retention.FetchCutoff(now, cfg.RetentionDays)

	for i, m := range members {
		if out.stopped || ctx.Err() != nil {
			break
		}
		summary.Fetched++

		progress, stored := f.fetchMember(ctx, w, m, client, cutoff)
		progress.Current = i + 1
		progress.Total = len(members)
		summary.NewPosts += progress.NewPosts
		summary.SkippedOld += progress.Filtered
		if progress.Error != "" {
			summary.Errors = append(summary.Errors, fmt.Sprintf("@%s: %s", m.Username, progress.Error))
			log.Warn("member fetch failed", "username", m.Username, "error", progress.Error)
		}

		if !out.emit(EventProgress, progress) {
			break
		}
		if len(stored) > 0 && !out.emit(EventPosts, PostsEvent{Posts: stored}) {
			break
		}
	}

	metrics.PostsStored.Add(float64(summary.NewPosts))
	_, err = f.recorder.Record(runlog.Entry{
		OwnerID:     w.OwnerID,
		WatchlistID: w.ID,
		Type:        storage.RunTypeFetch,
		Attempted:   summary.Fetched,
		Succeeded:   summary.NewPosts,
		Skipped:     summary.SkippedOld,
		Purged:      summary.Purged,
		Errors:      summary.Errors,
	})
	if err != nil {
		log.Error("recording fetch run failed", "error", err)
	}

	out.emit(EventDone, summary)
}

// purge deletes posts older than the maximum window and posts of removed
// members. Failures are recorded in summary and count as zero.
func (f *Fetcher) purge(watchlistID string, members []storage.Member, now time.Time, summary *FetchSummary) (int, int) {
	expired, err := f.store.PurgePostsBefore(watchlistID, retention.PurgeCutoff(now))
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		expired = 0
	}

	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	orphans, err := f.store.PurgeOrphanedPosts(watchlistID, ids)
	if err != nil {
		summary.Errors = append(summary.Errors, err.Error())
		orphans = 0
	}

	metrics.RecordPurge(expired, orphans)
	return expired, orphans
}

// fetchMember pulls one member's posts, drops those older than cutoff and
// stores the rest. Errors are reported through the progress event.
func (f *Fetcher) fetchMember(ctx context.Context, w storage.Watchlist, m storage.Member, client provider.Fetcher, cutoff time.Time) (ProgressEvent, []storage.Post) {
	progress := ProgressEvent{Username: m.Username}

	posts, err := client.FetchUserPosts(ctx, m.Username, provider.FetchOptions{Count: f.pageSize})
	if err != nil {
		progress.Error = err.Error()
		return progress, nil
	}
	progress.TweetsReceived = len(posts)

	staged := make([]storage.Post, 0, len(posts))
	for _, p := range posts {
		if !retention.IsWithinRetention(p.CreatedAt, cutoff) {
			progress.Filtered++
			continue
		}
		staged = append(staged, storage.Post{
			OwnerID:       w.OwnerID,
			WatchlistID:   w.ID,
			MemberID:      m.ID,
			ExternalID:    p.ID,
			Username:      m.Username,
			Text:          p.Text,
			RawJSON:       string(p.Raw),
			PostCreatedAt: p.CreatedAt,
		})
	}

	stored, err := f.store.InsertPosts(staged)
	if err != nil {
		progress.Error = fmt.Sprintf("storing posts: %v", err)
		return progress, nil
	}
	progress.NewPosts = len(stored)
	return progress, stored
}

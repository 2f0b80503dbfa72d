package pipeline

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync/atomic"

	"github.com/kalambet/watchfeed/internal/llm"
	"github.com/kalambet/watchfeed/internal/metrics"
	"github.com/kalambet/watchfeed/internal/provider"
	"github.com/kalambet/watchfeed/internal/runlog"
	"github.com/kalambet/watchfeed/internal/storage"
)

const (
	DefaultTranslateLimit = 20
	MaxTranslateLimit     = 50

	defaultMaxOutputTokens = 1024
)

// GeneratorResolver returns the AI backend configured by one owner.
type GeneratorResolver interface {
	ForOwner(ctx context.Context, ownerID string) (llm.Generator, llm.Settings, error)
}

// Translator fills in missing translations of stored posts.
type Translator struct {
	store           *storage.Store
	generators      GeneratorResolver
	recorder        *runlog.Recorder
	maxOutputTokens int
	logger          *slog.Logger
}

// NewTranslator creates a Translator. If maxOutputTokens is <= 0, it
// defaults to 1024.
func NewTranslator(store *storage.Store, generators GeneratorResolver, recorder *runlog.Recorder, maxOutputTokens int) *Translator {
	if maxOutputTokens <= 0 {
		maxOutputTokens = defaultMaxOutputTokens
	}
	return &Translator{
		store:           store,
		generators:      generators,
		recorder:        recorder,
		maxOutputTokens: maxOutputTokens,
		logger:          slog.Default(),
	}
}

// ClampTranslateLimit applies the batch default and ceiling.
func ClampTranslateLimit(limit int) int {
	if limit <= 0 {
		return DefaultTranslateLimit
	}
	return min(limit, MaxTranslateLimit)
}

// CheckConfigured reports llm.ErrNotConfigured when the owner has no usable
// AI backend.
func (t *Translator) CheckConfigured(ctx context.Context, ownerID string) error {
	_, _, err := t.generators.ForOwner(ctx, ownerID)
	return err
}

// ErrEmptyTranslation is the per-post failure for a response whose
// translation section is blank. The post stays untranslated.
var ErrEmptyTranslation = errors.New("empty translation in AI response")

// backend is the AI configuration resolved once per run. err is set when the
// owner is not configured; every post of the run then fails with it.
type backend struct {
	gen      llm.Generator
	settings llm.Settings
	err      error
}

func (t *Translator) resolveBackend(ctx context.Context, ownerID string) (backend, error) {
	gen, settings, err := t.generators.ForOwner(ctx, ownerID)
	if err != nil && !errors.Is(err, llm.ErrNotConfigured) {
		return backend{}, err
	}
	return backend{gen: gen, settings: settings, err: err}, nil
}

// Start selects up to limit untranslated posts of the watchlist, newest
// fetched first, and returns the event sequence that translates them one at
// a time. When the consumer stops ranging or ctx is cancelled, no further
// post is started and no done event is emitted; the post in flight is
// finished and the run log is recorded.
func (t *Translator) Start(ctx context.Context, ownerID, watchlistID string, limit int) (iter.Seq[Event], error) {
	w, err := ownedWatchlist(t.store, ownerID, watchlistID)
	if err != nil {
		return nil, err
	}
	posts, err := t.store.ListUntranslatedPosts(w.ID, ClampTranslateLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("selecting untranslated posts: %w", err)
	}
	b, err := t.resolveBackend(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var used atomic.Bool
	return func(yield func(Event) bool) {
		if used.Swap(true) {
			return
		}
		t.run(ctx, w, posts, b, &emitter{yield: yield})
	}, nil
}

func (t *Translator) run(ctx context.Context, w storage.Watchlist, posts []storage.Post, b backend, out *emitter) {
	log := t.logger.With("watchlist_id", w.ID)
	summary := TranslateSummary{Translated: []string{}, Errors: []TranslateError{}}
	cancelled := false

	for _, p := range posts {
		if out.stopped || ctx.Err() != nil {
			cancelled = true
			break
		}

		tr, err := t.translatePost(context.WithoutCancel(ctx), b, p)
		if err != nil {
			log.Warn("post translation failed", "post_id", p.ID, "error", err)
			summary.Errors = append(summary.Errors, TranslateError{PostID: p.ID, Error: err.Error()})
			out.emit(EventError, ErrorEvent{PostID: p.ID, Error: err.Error()})
			continue
		}
		summary.Translated = append(summary.Translated, p.ID)
		out.emit(EventTranslated, TranslatedEvent{
			PostID:               p.ID,
			TranslatedText:       tr.TranslatedText,
			CommentText:          tr.CommentText,
			QuotedTranslatedText: tr.QuotedTranslatedText,
		})
	}
	if out.stopped || ctx.Err() != nil {
		cancelled = true
	}

	t.finish(w, &summary)
	if cancelled {
		log.Info("translate run cancelled", "translated", len(summary.Translated), "selected", len(posts))
		return
	}
	out.emit(EventDone, summary)
}

// TranslateOne translates a single post of the watchlist, replacing any
// existing translation. A per-post failure is reported in the summary's
// errors; only lookup failures are returned as errors.
func (t *Translator) TranslateOne(ctx context.Context, ownerID, watchlistID, postID string) (TranslateSummary, error) {
	w, err := ownedWatchlist(t.store, ownerID, watchlistID)
	if err != nil {
		return TranslateSummary{}, err
	}
	if postID == "" {
		return TranslateSummary{}, fmt.Errorf("post id is required: %w", ErrInvalidInput)
	}
	p, err := t.store.GetPost(postID)
	if err != nil {
		return TranslateSummary{}, fmt.Errorf("post %s: %w", postID, err)
	}
	if p.WatchlistID != w.ID {
		return TranslateSummary{}, fmt.Errorf("post %s: %w", postID, storage.ErrNotFound)
	}
	b, err := t.resolveBackend(ctx, ownerID)
	if err != nil {
		return TranslateSummary{}, err
	}

	summary := TranslateSummary{Translated: []string{}, Errors: []TranslateError{}}
	tr, err := t.translatePost(context.WithoutCancel(ctx), b, p)
	if err != nil {
		t.logger.Warn("post translation failed", "post_id", p.ID, "error", err)
		summary.Errors = append(summary.Errors, TranslateError{PostID: p.ID, Error: err.Error()})
	} else {
		summary.Translated = append(summary.Translated, p.ID)
		summary.TranslatedText = tr.TranslatedText
		summary.CommentText = tr.CommentText
		summary.QuotedTranslatedText = tr.QuotedTranslatedText
	}

	t.finish(w, &summary)
	return summary, nil
}

// finish computes the remaining count and records the run log.
func (t *Translator) finish(w storage.Watchlist, summary *TranslateSummary) {
	remaining, err := t.store.CountUntranslatedPosts(w.ID)
	if err != nil {
		t.logger.Error("counting untranslated posts failed", "watchlist_id", w.ID, "error", err)
	}
	summary.Remaining = remaining

	errs := make([]string, len(summary.Errors))
	for i, e := range summary.Errors {
		errs[i] = e.PostID + ": " + e.Error
	}
	_, err = t.recorder.Record(runlog.Entry{
		OwnerID:     w.OwnerID,
		WatchlistID: w.ID,
		Type:        storage.RunTypeTranslate,
		Attempted:   len(summary.Translated) + len(summary.Errors),
		Succeeded:   len(summary.Translated),
		Errors:      errs,
	})
	if err != nil {
		t.logger.Error("recording translate run failed", "watchlist_id", w.ID, "error", err)
	}
}

// translatePost generates, parses and stores the translation of one post.
func (t *Translator) translatePost(ctx context.Context, b backend, p storage.Post) (Translation, error) {
	if b.err != nil {
		metrics.RecordTranslation(false)
		return Translation{}, b.err
	}

	raw, err := b.gen.GenerateText(ctx, llm.Request{
		Model:           b.settings.Model,
		Prompt:          BuildPrompt(p.Text, quotedText(p)),
		MaxOutputTokens: t.maxOutputTokens,
	})
	if err != nil {
		metrics.RecordTranslation(false)
		return Translation{}, fmt.Errorf("generating translation: %w", err)
	}

	tr := ParseTranslation(raw)
	if tr.TranslatedText == "" {
		// Storing "" would mark the post translated and hide it from later runs.
		metrics.RecordTranslation(false)
		return Translation{}, ErrEmptyTranslation
	}

	err = t.store.UpdatePostTranslation(p.ID, storage.Translation{
		TranslatedText:       tr.TranslatedText,
		CommentText:          tr.CommentText,
		QuotedTranslatedText: tr.QuotedTranslatedText,
	})
	if err != nil {
		metrics.RecordTranslation(false)
		return Translation{}, fmt.Errorf("saving translation: %w", err)
	}
	metrics.RecordTranslation(true)
	return tr, nil
}

// quotedText returns the text of the post quoted by p, read from its stored
// upstream payload.
func quotedText(p storage.Post) string {
	decoded, err := provider.DecodePost([]byte(p.RawJSON))
	if err != nil {
		return ""
	}
	return decoded.QuotedText
}

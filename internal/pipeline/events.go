package pipeline

import (
	"iter"

	"github.com/kalambet/watchfeed/internal/storage"
)

// Event names, in the order a consumer may observe them.
const (
	EventCleanup    = "cleanup"
	EventProgress   = "progress"
	EventPosts      = "posts"
	EventTranslated = "translated"
	EventError      = "error"
	EventDone       = "done"
)

// Event is one progress record of a run. Data is one of the payload types
// below and is serialized as JSON by the stream adapters.
type Event struct {
	Name string
	Data any
}

type CleanupEvent struct {
	PurgedExpired int `json:"purgedExpired"`
	PurgedOrphans int `json:"purgedOrphans"`
}

type ProgressEvent struct {
	Current        int    `json:"current"`
	Total          int    `json:"total"`
	Username       string `json:"username"`
	TweetsReceived int    `json:"tweetsReceived"`
	Filtered       int    `json:"filtered"`
	NewPosts       int    `json:"newPosts"`
	Error          string `json:"error,omitempty"`
}

type PostsEvent struct {
	Posts []storage.Post `json:"posts"`
}

// FetchSummary is the payload of a fetch run's done event. Fetched is the
// number of members processed.
type FetchSummary struct {
	Fetched    int      `json:"fetched"`
	NewPosts   int      `json:"newPosts"`
	SkippedOld int      `json:"skippedOld"`
	Purged     int      `json:"purged"`
	Errors     []string `json:"errors"`
}

type TranslatedEvent struct {
	PostID               string `json:"postId"`
	TranslatedText       string `json:"translatedText"`
	CommentText          string `json:"commentText"`
	QuotedTranslatedText string `json:"quotedTranslatedText,omitempty"`
}

type ErrorEvent struct {
	PostID string `json:"postId"`
	Error  string `json:"error"`
}

type TranslateError struct {
	PostID string `json:"postId"`
	Error  string `json:"error"`
}

// TranslateSummary is the payload of a translate run's done event and the
// non-streamed response. The text fields are set only for a successful
// single-post translation.
type TranslateSummary struct {
	Translated           []string         `json:"translated"`
	Errors               []TranslateError `json:"errors"`
	Remaining            int              `json:"remaining"`
	TranslatedText       string           `json:"translatedText,omitempty"`
	CommentText          string           `json:"commentText,omitempty"`
	QuotedTranslatedText string           `json:"quotedTranslatedText,omitempty"`
}

// Drain consumes seq to the end and returns its done event.
func Drain(seq iter.Seq[Event]) (Event, bool) {
	var done Event
	var ok bool
	for ev := range seq {
		if ev.Name == EventDone {
			done, ok = ev, true
		}
	}
	return done, ok
}

// emitter wraps a yield function and remembers when the consumer stopped,
// so no event is delivered after yield has returned false.
type emitter struct {
	yield   func(Event) bool
	stopped bool
}

func (e *emitter) emit(name string, data any) bool {
	if e.stopped {
		return false
	}
	if !e.yield(Event{Name: name, Data: data}) {
		e.stopped = true
	}
	return !e.stopped
}

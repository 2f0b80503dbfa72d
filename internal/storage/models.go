package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when an insert violates a uniqueness rule that the
// caller is expected to report (e.g. a handle already tracked by a watchlist).
var ErrConflict = errors.New("already exists")

// Run types recorded in run_logs.
const (
	RunTypeFetch     = "fetch"
	RunTypeTranslate = "translate"
)

type Watchlist struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Member is one tracked account inside a watchlist. Username is stored
// normalized: lowercase, without a leading "@".
type Member struct {
	ID          string    `json:"id"`
	WatchlistID string    `json:"watchlistId"`
	OwnerID     string    `json:"ownerId"`
	Username    string    `json:"username"`
	Note        string    `json:"note,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Post is a cached, denormalized copy of one upstream post.
type Post struct {
	ID                   string     `json:"id"`
	OwnerID              string     `json:"ownerId"`
	WatchlistID          string     `json:"watchlistId"`
	MemberID             string     `json:"memberId"`
	ExternalID           string     `json:"tweetId"`
	Username             string     `json:"username"`
	Text                 string     `json:"text"`
	RawJSON              string     `json:"rawJson"`
	PostCreatedAt        time.Time  `json:"tweetCreatedAt"`
	FetchedAt            time.Time  `json:"fetchedAt"`
	TranslatedText       *string    `json:"translatedText"`
	CommentText          *string    `json:"commentText"`
	QuotedTranslatedText *string    `json:"quotedTranslatedText"`
	TranslatedAt         *time.Time `json:"translatedAt"`
}

// Translation holds the fields written by a translate run.
type Translation struct {
	TranslatedText       string
	CommentText          string
	QuotedTranslatedText string
	TranslatedAt         time.Time
}

// RunLog is an immutable record of one fetch or translate invocation.
// WatchlistID is empty when the watchlist was deleted after the run.
type RunLog struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	WatchlistID string    `json:"watchlistId,omitempty"`
	Type        string    `json:"type"`
	Attempted   int       `json:"attempted"`
	Succeeded   int       `json:"succeeded"`
	Skipped     int       `json:"skipped"`
	Purged      int       `json:"purged"`
	ErrorCount  int       `json:"errorCount"`
	Errors      []string  `json:"errors"`
	CreatedAt   time.Time `json:"createdAt"`
}

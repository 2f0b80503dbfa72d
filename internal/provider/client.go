// Package provider fetches recent posts of an account from the upstream
// content API.
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kalambet/watchfeed/internal/metrics"
)

const (
	DefaultBaseURL  = "https://api.twitterapi.io"
	DefaultPageSize = 30

	defaultTimeout = 30 * time.Second
	maxPages       = 5
)

var (
	// ErrNotConfigured is returned when no API key is available for an owner.
	ErrNotConfigured = errors.New("content provider API key not configured")
	// ErrUnauthorized is returned when the upstream rejects the API key.
	ErrUnauthorized = errors.New("content provider rejected the API key")
	// ErrRateLimited is returned on HTTP 429.
	ErrRateLimited = errors.New("content provider rate limit exceeded")
)

// Post is one upstream post. Raw keeps the full upstream payload.
type Post struct {
	ID         string
	Text       string
	CreatedAt  time.Time
	QuotedText string
	Lang       string
	Raw        json.RawMessage
}

type FetchOptions struct {
	Count int
}

// Fetcher is implemented by Client and by test fakes.
type Fetcher interface {
	FetchUserPosts(ctx context.Context, handle string, opts FetchOptions) ([]Post, error)
}

// Client talks to the upstream content API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewClient creates a client. A nil limiter disables client-side rate limiting.
func NewClient(apiKey, baseURL string, limiter *rate.Limiter) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    limiter,
		logger:     slog.Default(),
	}
}

type lastPostsResponse struct {
	Status      string            `json:"status"`
	Msg         string            `json:"msg"`
	Message     string            `json:"message"`
	Data        *lastPostsData    `json:"data"`
	Tweets      []json.RawMessage `json:"tweets"`
	HasNextPage bool              `json:"has_next_page"`
	NextCursor  string            `json:"next_cursor"`
}

type lastPostsData struct {
	Tweets []json.RawMessage `json:"tweets"`
}

// FetchUserPosts returns up to opts.Count of the newest posts of handle,
// following upstream pagination when a page holds fewer posts. Items that
// fail to decode are logged and skipped; only transport, status and
// envelope failures fail the call.
func (c *Client) FetchUserPosts(ctx context.Context, handle string, opts FetchOptions) ([]Post, error) {
	count := opts.Count
	if count <= 0 {
		count = DefaultPageSize
	}
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")

	var posts []Post
	cursor := ""
	for range maxPages {
		page, err := c.fetchPage(ctx, handle, cursor)
		if err != nil {
			return nil, err
		}

		raw := page.Tweets
		if page.Data != nil {
			raw = page.Data.Tweets
		}
		for _, r := range raw {
			p, err := DecodePost(r)
			if err != nil {
				// A malformed item must not cost the member its valid posts.
				c.logger.Warn("skipping undecodable post", "username", handle, "error", err)
				continue
			}
			posts = append(posts, p)
			if len(posts) >= count {
				return posts, nil
			}
		}

		if !page.HasNextPage || page.NextCursor == "" || len(raw) == 0 {
			break
		}
		cursor = page.NextCursor
	}
	return posts, nil
}

func (c *Client) fetchPage(ctx context.Context, handle, cursor string) (*lastPostsResponse, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	q := url.Values{"userName": {handle}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/twitter/user/last_tweets?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	metrics.ObserveUpstream("provider", time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("requesting posts: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, ErrUnauthorized
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page lastPostsResponse
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}
	if page.Status == "error" {
		msg := page.Msg
		if msg == "" {
			msg = page.Message
		}
		return nil, fmt.Errorf("upstream error: %s", msg)
	}
	return &page, nil
}

type rawPost struct {
	ID          string         `json:"id"`
	IDStr       string         `json:"id_str"`
	Text        string         `json:"text"`
	FullText    string         `json:"full_text"`
	CreatedAt   string         `json:"createdAt"`
	CreatedAtSC string         `json:"created_at"`
	Lang        string         `json:"lang"`
	Quoted      *rawQuotedPost `json:"quoted_tweet"`
}

type rawQuotedPost struct {
	Text string `json:"text"`
}

// createdAtLayouts are tried in order; the first is the upstream's native format.
var createdAtLayouts = []string{time.RubyDate, time.RFC3339, time.RFC3339Nano}

// DecodePost parses one upstream post payload.
func DecodePost(raw json.RawMessage) (Post, error) {
	var r rawPost
	if err := json.Unmarshal(raw, &r); err != nil {
		return Post{}, err
	}

	p := Post{
		ID:   r.ID,
		Text: r.Text,
		Lang: r.Lang,
		Raw:  raw,
	}
	if p.ID == "" {
		p.ID = r.IDStr
	}
	if p.ID == "" {
		return Post{}, errors.New("post without id")
	}
	if p.Text == "" {
		p.Text = r.FullText
	}
	if r.Quoted != nil {
		p.QuotedText = r.Quoted.Text
	}

	created := r.CreatedAt
	if created == "" {
		created = r.CreatedAtSC
	}
	t, err := parseCreatedAt(created)
	if err != nil {
		return Post{}, fmt.Errorf("post %s: %w", p.ID, err)
	}
	p.CreatedAt = t
	return p, nil
}

func parseCreatedAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("missing creation time")
	}
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized creation time %q", s)
}

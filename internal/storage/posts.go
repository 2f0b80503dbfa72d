package storage

import (
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var postColumns = []string{
	"id", "owner_id", "watchlist_id", "member_id", "external_id", "username", "text", "raw_json",
	"post_created_at", "fetched_at", "translated_text", "comment_text", "quoted_translated_text", "translated_at",
}

const insertPostSQL = `
	INSERT INTO fetched_posts (id, owner_id, watchlist_id, member_id, external_id, username, text, raw_json, post_created_at, fetched_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(watchlist_id, external_id) DO NOTHING`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPost(row rowScanner) (Post, error) {
	var p Post
	var createdAt, fetchedAt string
	var translated, comment, quoted, translatedAt sql.NullString
	err := row.Scan(&p.ID, &p.OwnerID, &p.WatchlistID, &p.MemberID, &p.ExternalID, &p.Username, &p.Text, &p.RawJSON,
		&createdAt, &fetchedAt, &translated, &comment, &quoted, &translatedAt)
	if err != nil {
		return Post{}, err
	}
	if p.PostCreatedAt, err = parseTime("post_created_at", createdAt); err != nil {
		return Post{}, err
	}
	if p.FetchedAt, err = parseTime("fetched_at", fetchedAt); err != nil {
		return Post{}, err
	}
	p.TranslatedText = stringPtr(translated)
	p.CommentText = stringPtr(comment)
	p.QuotedTranslatedText = stringPtr(quoted)
	if translatedAt.Valid {
		t, err := parseTime("translated_at", translatedAt.String)
		if err != nil {
			return Post{}, err
		}
		p.TranslatedAt = &t
	}
	return p, nil
}

func (s *Store) queryPosts(q sq.SelectBuilder) ([]Post, error) {
	rows, err := q.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, p)
	}
	return results, rows.Err()
}

// preparePost fills generated fields and normalizes timestamps to the
// stored precision so the returned value matches what a later read yields.
func preparePost(p Post) Post {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.FetchedAt.IsZero() {
		p.FetchedAt = time.Now()
	}
	if p.RawJSON == "" {
		p.RawJSON = "{}"
	}
	p.Username = NormalizeUsername(p.Username)
	p.PostCreatedAt = p.PostCreatedAt.UTC().Truncate(time.Second)
	p.FetchedAt = p.FetchedAt.UTC().Truncate(time.Second)
	return p
}

// PostExists reports whether a post with the given external id is already
// stored for the watchlist.
func (s *Store) PostExists(watchlistID, externalID string) (bool, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM fetched_posts WHERE watchlist_id = ? AND external_id = ?`,
		watchlistID, externalID).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertPostIfNew stores p unless the (watchlist, external id) pair already
// exists, in which case it returns nil without side effects.
func (s *Store) InsertPostIfNew(p Post) (*Post, error) {
	p = preparePost(p)
	res, err := s.db.Exec(insertPostSQL, postArgs(p)...)
	if err != nil {
		return nil, fmt.Errorf("inserting post %s: %w", p.ExternalID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	return &p, nil
}

// InsertPosts applies InsertPostIfNew to each post inside one transaction and
// returns the rows that were actually inserted. Duplicates are skipped.
func (s *Store) InsertPosts(posts []Post) ([]Post, error) {
	if len(posts) == 0 {
		return nil, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(insertPostSQL)
	if err != nil {
		return nil, fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	var inserted []Post
	for _, p := range posts {
		p = preparePost(p)
		res, err := stmt.Exec(postArgs(p)...)
		if err != nil {
			return nil, fmt.Errorf("inserting post %s: %w", p.ExternalID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n > 0 {
			inserted = append(inserted, p)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing posts: %w", err)
	}
	return inserted, nil
}

func postArgs(p Post) []any {
	return []any{
		p.ID, p.OwnerID, p.WatchlistID, p.MemberID, p.ExternalID, p.Username, p.Text, p.RawJSON,
		formatTime(p.PostCreatedAt), formatTime(p.FetchedAt),
	}
}

func (s *Store) GetPost(id string) (Post, error) {
	row := s.builder().Select(postColumns...).From("fetched_posts").Where(sq.Eq{"id": id}).QueryRow()
	p, err := scanPost(row)
	if err == sql.ErrNoRows {
		return Post{}, ErrNotFound
	}
	return p, err
}

// ListPosts returns the newest posts of a watchlist by upstream creation time.
func (s *Store) ListPosts(watchlistID string, limit int) ([]Post, error) {
	return s.queryPosts(s.builder().Select(postColumns...).
		From("fetched_posts").
		Where(sq.Eq{"watchlist_id": watchlistID}).
		OrderBy("post_created_at DESC", "rowid DESC").
		Limit(uint64(limit)))
}

// ListUntranslatedPosts returns up to limit posts without a translation,
// newest-fetched first.
func (s *Store) ListUntranslatedPosts(watchlistID string, limit int) ([]Post, error) {
	return s.queryPosts(s.builder().Select(postColumns...).
		From("fetched_posts").
		Where(sq.Eq{"watchlist_id": watchlistID, "translated_text": nil}).
		OrderBy("fetched_at DESC", "rowid DESC").
		Limit(uint64(limit)))
}

func (s *Store) CountUntranslatedPosts(watchlistID string) (int, error) {
	var n int
	err := s.builder().Select("COUNT(*)").
		From("fetched_posts").
		Where(sq.Eq{"watchlist_id": watchlistID, "translated_text": nil}).
		QueryRow().Scan(&n)
	return n, err
}

// UpdatePostTranslation writes translation fields onto a post. Empty comment
// and quote strings are stored as NULL.
func (s *Store) UpdatePostTranslation(id string, t Translation) error {
	var comment, quoted *string
	if t.CommentText != "" {
		comment = &t.CommentText
	}
	if t.QuotedTranslatedText != "" {
		quoted = &t.QuotedTranslatedText
	}
	if t.TranslatedAt.IsZero() {
		t.TranslatedAt = time.Now()
	}
	res, err := s.db.Exec(`
		UPDATE fetched_posts
		SET translated_text = ?, comment_text = ?, quoted_translated_text = ?, translated_at = ?
		WHERE id = ?`,
		t.TranslatedText, nullString(comment), nullString(quoted), formatTime(t.TranslatedAt), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgePostsBefore deletes posts of the watchlist created upstream before cutoff.
func (s *Store) PurgePostsBefore(watchlistID string, cutoff time.Time) (int, error) {
	res, err := s.builder().Delete("fetched_posts").
		Where(sq.Eq{"watchlist_id": watchlistID}).
		Where(sq.Lt{"post_created_at": formatTime(cutoff)}).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("purging expired posts: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// PurgeOrphanedPosts deletes posts of the watchlist whose member id is not in
// memberIDs. An empty memberIDs purges every post of the watchlist.
func (s *Store) PurgeOrphanedPosts(watchlistID string, memberIDs []string) (int, error) {
	res, err := s.builder().Delete("fetched_posts").
		Where(sq.Eq{"watchlist_id": watchlistID}).
		Where(sq.NotEq{"member_id": memberIDs}).
		Exec()
	if err != nil {
		return 0, fmt.Errorf("purging orphaned posts: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

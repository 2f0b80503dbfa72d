package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

// --- Watchlists ---

func (s *Store) CreateWatchlist(w Watchlist) (Watchlist, error) {
	if w.ID == "" {
		w.ID = uuid.New().String()
	}
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	w.CreatedAt = w.CreatedAt.UTC().Truncate(time.Second)
	_, err := s.db.Exec(`INSERT INTO watchlists (id, owner_id, name, created_at) VALUES (?, ?, ?, ?)`,
		w.ID, w.OwnerID, w.Name, formatTime(w.CreatedAt))
	if err != nil {
		return Watchlist{}, err
	}
	return w, nil
}

func (s *Store) GetWatchlist(id string) (Watchlist, error) {
	var w Watchlist
	var createdAt string
	err := s.db.QueryRow(`SELECT id, owner_id, name, created_at FROM watchlists WHERE id = ?`, id).
		Scan(&w.ID, &w.OwnerID, &w.Name, &createdAt)
	if err == sql.ErrNoRows {
		return Watchlist{}, ErrNotFound
	}
	if err != nil {
		return Watchlist{}, err
	}
	if w.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return Watchlist{}, err
	}
	return w, nil
}

// ListWatchlists returns the watchlists of one owner, or of every owner when
// ownerID is empty (used by the scheduler).
func (s *Store) ListWatchlists(ownerID string) ([]Watchlist, error) {
	q := s.builder().Select("id", "owner_id", "name", "created_at").
		From("watchlists").
		OrderBy("created_at ASC", "id ASC")
	if ownerID != "" {
		q = q.Where(sq.Eq{"owner_id": ownerID})
	}
	rows, err := q.Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Watchlist
	for rows.Next() {
		var w Watchlist
		var createdAt string
		if err := rows.Scan(&w.ID, &w.OwnerID, &w.Name, &createdAt); err != nil {
			return nil, err
		}
		if w.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		results = append(results, w)
	}
	return results, rows.Err()
}

// DeleteWatchlist removes a watchlist. Members and posts cascade; settings
// scoped to the watchlist are removed in the same transaction.
func (s *Store) DeleteWatchlist(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM watchlists WHERE id = ?`, id)
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
	if _, err := tx.Exec(`DELETE FROM settings WHERE key LIKE ?`, "%:"+id); err != nil {
		return fmt.Errorf("deleting watchlist settings: %w", err)
	}
	return tx.Commit()
}

// --- Members ---

// NormalizeUsername lowercases a handle and strips a leading "@".
func NormalizeUsername(handle string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(handle), "@"))
}

func (s *Store) AddMember(m Member) (Member, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.CreatedAt = m.CreatedAt.UTC().Truncate(time.Second)
	m.Username = NormalizeUsername(m.Username)

	res, err := s.db.Exec(`
		INSERT INTO watchlist_members (id, watchlist_id, owner_id, username, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(watchlist_id, username) DO NOTHING`,
		m.ID, m.WatchlistID, m.OwnerID, m.Username, m.Note, formatTime(m.CreatedAt),
	)
	if err != nil {
		return Member{}, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return Member{}, err
	}
	if n == 0 {
		return Member{}, fmt.Errorf("member @%s: %w", m.Username, ErrConflict)
	}
	return m, nil
}

// ListMembers returns the members of a watchlist in insertion order.
func (s *Store) ListMembers(watchlistID string) ([]Member, error) {
	rows, err := s.db.Query(`
		SELECT id, watchlist_id, owner_id, username, note, created_at
		FROM watchlist_members WHERE watchlist_id = ?
		ORDER BY created_at ASC, rowid ASC`, watchlistID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Member
	for rows.Next() {
		var m Member
		var createdAt string
		if err := rows.Scan(&m.ID, &m.WatchlistID, &m.OwnerID, &m.Username, &m.Note, &createdAt); err != nil {
			return nil, err
		}
		if m.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
			return nil, err
		}
		results = append(results, m)
	}
	return results, rows.Err()
}

// RemoveMember deletes a member and the posts fetched for it.
func (s *Store) RemoveMember(watchlistID, memberID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning remove transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(`DELETE FROM watchlist_members WHERE id = ? AND watchlist_id = ?`, memberID, watchlistID)
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
	if _, err := tx.Exec(`DELETE FROM fetched_posts WHERE member_id = ? AND watchlist_id = ?`, memberID, watchlistID); err != nil {
		return fmt.Errorf("deleting member posts: %w", err)
	}
	return tx.Commit()
}

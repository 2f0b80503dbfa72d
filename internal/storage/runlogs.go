package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

var runLogColumns = []string{
	"id", "owner_id", "watchlist_id", "type", "attempted", "succeeded", "skipped", "purged",
	"error_count", "errors", "created_at",
}

// InsertRunLog appends a run log. Errors are stored as a JSON array, or NULL
// when the run had none.
func (s *Store) InsertRunLog(l RunLog) (RunLog, error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
	l.CreatedAt = l.CreatedAt.UTC().Truncate(time.Second)

	var errorsJSON sql.NullString
	if len(l.Errors) > 0 {
		b, err := json.Marshal(l.Errors)
		if err != nil {
			return RunLog{}, fmt.Errorf("marshalling run errors: %w", err)
		}
		errorsJSON = sql.NullString{String: string(b), Valid: true}
	}
	watchlistID := sql.NullString{String: l.WatchlistID, Valid: l.WatchlistID != ""}

	_, err := s.builder().Insert("run_logs").
		Columns(runLogColumns...).
		Values(l.ID, l.OwnerID, watchlistID, l.Type, l.Attempted, l.Succeeded, l.Skipped, l.Purged,
			l.ErrorCount, errorsJSON, formatTime(l.CreatedAt)).
		Exec()
	if err != nil {
		return RunLog{}, err
	}
	return l, nil
}

func scanRunLog(row rowScanner) (RunLog, error) {
	var l RunLog
	var watchlistID, errorsJSON sql.NullString
	var createdAt string
	err := row.Scan(&l.ID, &l.OwnerID, &watchlistID, &l.Type, &l.Attempted, &l.Succeeded, &l.Skipped, &l.Purged,
		&l.ErrorCount, &errorsJSON, &createdAt)
	if err != nil {
		return RunLog{}, err
	}
	l.WatchlistID = watchlistID.String
	if errorsJSON.Valid && errorsJSON.String != "" {
		if err := json.Unmarshal([]byte(errorsJSON.String), &l.Errors); err != nil {
			return RunLog{}, fmt.Errorf("parsing errors of run log %s: %w", l.ID, err)
		}
	}
	if l.CreatedAt, err = parseTime("created_at", createdAt); err != nil {
		return RunLog{}, err
	}
	return l, nil
}

// ListRunLogs returns the run logs of a watchlist, newest first.
func (s *Store) ListRunLogs(watchlistID string, limit int) ([]RunLog, error) {
	rows, err := s.builder().Select(runLogColumns...).
		From("run_logs").
		Where(sq.Eq{"watchlist_id": watchlistID}).
		OrderBy("created_at DESC", "rowid DESC").
		Limit(uint64(limit)).
		Query()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RunLog
	for rows.Next() {
		l, err := scanRunLog(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, l)
	}
	return results, rows.Err()
}

// LatestRunLog returns the newest run log of the given type for a watchlist.
func (s *Store) LatestRunLog(watchlistID, runType string) (RunLog, error) {
	row := s.builder().Select(runLogColumns...).
		From("run_logs").
		Where(sq.Eq{"watchlist_id": watchlistID, "type": runType}).
		OrderBy("created_at DESC", "rowid DESC").
		Limit(1).
		QueryRow()
	l, err := scanRunLog(row)
	if err == sql.ErrNoRows {
		return RunLog{}, ErrNotFound
	}
	return l, err
}

// DeleteRunLogs removes every run log of an owner and returns how many were deleted.
func (s *Store) DeleteRunLogs(ownerID string) (int, error) {
	res, err := s.db.Exec(`DELETE FROM run_logs WHERE owner_id = ?`, ownerID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

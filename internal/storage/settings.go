package storage

import (
	"database/sql"
	"time"
)

// --- Owner settings ---

func (s *Store) SetSetting(ownerID, key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO settings (owner_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(owner_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		ownerID, key, value, formatTime(time.Now()),
	)
	return err
}

func (s *Store) GetSetting(ownerID, key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE owner_id = ? AND key = ?`, ownerID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

func (s *Store) DeleteSetting(ownerID, key string) error {
	_, err := s.db.Exec(`DELETE FROM settings WHERE owner_id = ? AND key = ?`, ownerID, key)
	return err
}

func (s *Store) ListSettings(ownerID string) (map[string]string, error) {
	rows, err := s.db.Query(`SELECT key, value FROM settings WHERE owner_id = ?`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}

package storage

import (
	"fmt"
	"time"
)

// SaveRequest records a processed request outside any list transaction.
// Used when the request never reached a handler (translation failures,
// malformed input) but should still appear in history.
func (s *Store) SaveRequest(r RequestRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO requests (id, user_id, input, outcome, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Input, r.Outcome, r.Detail,
		r.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// GetRecentRequests returns the owner's most recent requests, newest first.
func (s *Store) GetRecentRequests(userID string, limit int) ([]RequestRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, input, outcome, detail, created_at
		FROM requests WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC LIMIT ?`, userID, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []RequestRecord
	for rows.Next() {
		var r RequestRecord
		var createdAt string
		if err := rows.Scan(&r.ID, &r.UserID, &r.Input, &r.Outcome, &r.Detail, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		r.CreatedAt = t
		results = append(results, r)
	}
	return results, rows.Err()
}

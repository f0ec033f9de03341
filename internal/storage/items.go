package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// ListItems returns all items owned by userID in insertion order.
func (s *Store) ListItems(userID string) ([]Item, error) {
	rows, err := s.db.Query(`
		SELECT id, user_id, content, created_at, updated_at
		FROM items WHERE user_id = ? ORDER BY id ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// ListTx is a write transaction over one user's list. Mutations made through
// it become visible atomically on Commit; Rollback discards them. Rollback
// after Commit is a no-op, so callers can defer it unconditionally.
type ListTx struct {
	tx *sql.Tx
}

func (s *Store) BeginList() (*ListTx, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("beginning list transaction: %w", err)
	}
	return &ListTx{tx: tx}, nil
}

func (t *ListTx) Commit() error {
	return t.tx.Commit()
}

func (t *ListTx) Rollback() error {
	err := t.tx.Rollback()
	if err == sql.ErrTxDone {
		return nil
	}
	return err
}

// Items returns the owner's items in insertion order, as seen by this transaction.
func (t *ListTx) Items(userID string) ([]Item, error) {
	rows, err := t.tx.Query(`
		SELECT id, user_id, content, created_at, updated_at
		FROM items WHERE user_id = ? ORDER BY id ASC`, userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanItems(rows)
}

// InsertItem appends a new item to the owner's list and returns it with its
// assigned ID.
func (t *ListTx) InsertItem(userID, content string) (Item, error) {
	now := time.Now().UTC()
	res, err := t.tx.Exec(`
		INSERT INTO items (user_id, content, created_at, updated_at)
		VALUES (?, ?, ?, ?)`,
		userID, content, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		return Item{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Item{}, err
	}
	return Item{ID: id, UserID: userID, Content: content, CreatedAt: now, UpdatedAt: now}, nil
}

// UpdateItemContent replaces the content of the owner's item. Returns
// ErrNotFound if no item with that ID belongs to the owner.
func (t *ListTx) UpdateItemContent(userID string, id int64, content string) error {
	res, err := t.tx.Exec(`
		UPDATE items SET content = ?, updated_at = ?
		WHERE id = ? AND user_id = ?`,
		content, time.Now().UTC().Format(time.RFC3339), id, userID,
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

// DeleteItem removes the owner's item. Returns ErrNotFound if no item with
// that ID belongs to the owner.
func (t *ListTx) DeleteItem(userID string, id int64) error {
	res, err := t.tx.Exec(`DELETE FROM items WHERE id = ? AND user_id = ?`, id, userID)
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

// LogRequest records a processed request inside the same transaction as the
// list mutation it produced.
func (t *ListTx) LogRequest(r RequestRecord) error {
	_, err := t.tx.Exec(`
		INSERT INTO requests (id, user_id, input, outcome, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.UserID, r.Input, r.Outcome, r.Detail,
		r.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

func scanItems(rows *sql.Rows) ([]Item, error) {
	var items []Item
	for rows.Next() {
		var it Item
		var createdAt, updatedAt string
		if err := rows.Scan(&it.ID, &it.UserID, &it.Content, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		it.CreatedAt = t
		if t, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		it.UpdatedAt = t
		items = append(items, it)
	}
	return items, rows.Err()
}

// Package notes owns the persisted note collection.
package notes

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/kuitang/noteboard/internal/errs"
)

// SQLStore implements Store over the notes table.
type SQLStore struct {
	db *sql.DB
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore wraps an open database that already has the notes schema.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// List returns all notes ordered by id.
func (s *SQLStore) List(ctx context.Context) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, text, completed FROM notes ORDER BY id`)
	if err != nil {
		return nil, unavailable("list notes", err)
	}
	defer rows.Close()

	result := []Note{}
	for rows.Next() {
		var n Note
		if err := rows.Scan(&n.ID, &n.Text, &n.Completed); err != nil {
			return nil, unavailable("scan note", err)
		}
		result = append(result, n)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list notes", err)
	}
	return result, nil
}

// Insert persists a new note. The id comes from the connection that ran
// the insert, so concurrent callers never observe each other's ids.
func (s *SQLStore) Insert(ctx context.Context, text string, completed bool) (Note, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO notes (text, completed) VALUES (?, ?)`, text, completed)
	if err != nil {
		return Note{}, unavailable("insert note", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Note{}, unavailable("insert note", err)
	}
	return Note{ID: id, Text: text, Completed: completed}, nil
}

// Clear deletes every note in one transaction.
func (s *SQLStore) Clear(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return unavailable("clear notes", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM notes`); err != nil {
		return unavailable("clear notes", err)
	}
	if err := tx.Commit(); err != nil {
		return unavailable("clear notes", err)
	}
	return nil
}

// Ping checks that the backing storage is reachable.
func (s *SQLStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func unavailable(op string, err error) error {
	return errs.Wrap(errs.Unavailable, "note store unavailable", fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err))
}

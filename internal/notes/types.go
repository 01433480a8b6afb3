package notes

import (
	"context"
	"errors"
)

// ErrStoreUnavailable is matched with errors.Is when the backing storage
// cannot service an operation.
var ErrStoreUnavailable = errors.New("note store unavailable")

// Note is a single todo-style note.
type Note struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// NoteIn is the create payload. Both fields are required; pointers tell a
// missing field apart from its zero value.
type NoteIn struct {
	Text      *string `json:"text"`
	Completed *bool   `json:"completed"`
}

// Store is the note collection contract used by the HTTP layer.
type Store interface {
	// List returns every note in id order; never nil.
	List(ctx context.Context) ([]Note, error)
	// Insert persists a note and returns it with its assigned id.
	Insert(ctx context.Context, text string, completed bool) (Note, error)
	// Clear deletes every note atomically.
	Clear(ctx context.Context) error
}

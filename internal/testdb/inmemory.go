// Package testdb builds throwaway databases for tests.
package testdb

import (
	"bytes"
	"context"
	"database/sql"
	"testing"

	"github.com/kuitang/noteboard/internal/db"
)

// NewInMemory opens an encrypted in-memory database with the notes schema
// applied. It is closed when the test ends.
func NewInMemory(t testing.TB) *sql.DB {
	t.Helper()
	sqlDB, err := db.Open(context.Background(), db.Options{
		Path: db.MemoryPath,
		Key:  bytes.Repeat([]byte{0x5a}, db.KeySize),
	})
	if err != nil {
		t.Fatalf("failed to open in-memory database: %v", err)
	}
	t.Cleanup(func() {
		sqlDB.Close()
	})
	return sqlDB
}

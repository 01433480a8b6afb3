// Package db opens the SQLCipher-backed database that holds the notes table.
package db

import (
	"context"
	"database/sql"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

const (
	// MemoryPath opens a private in-memory database.
	MemoryPath = ":memory:"

	// KeySize is the SQLCipher raw key length in bytes.
	KeySize = 32

	// MaxOpenConns bounds the pool for file databases. SQLite is
	// single-writer, so high connection counts are counterproductive.
	MaxOpenConns = 10

	// MaxIdleConns is the idle pool size for file databases.
	MaxIdleConns = 2
)

// Options describes how to open the database.
type Options struct {
	// Path is a filesystem path or MemoryPath.
	Path string
	// Key is an optional 32-byte SQLCipher key. Nil leaves the file unencrypted.
	Key []byte
}

// ParseKey decodes a 64-character hex SQLCipher key. An empty string
// yields a nil key.
func ParseKey(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("database key is not hex: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("database key must be %d bytes, got %d", KeySize, len(key))
	}
	return key, nil
}

// Open opens the database, verifies the key by querying it, and applies
// the schema. The caller owns the returned pool.
func Open(ctx context.Context, opts Options) (*sql.DB, error) {
	if opts.Path == "" {
		return nil, fmt.Errorf("database path cannot be empty")
	}
	if opts.Key != nil && len(opts.Key) != KeySize {
		return nil, fmt.Errorf("database key must be %d bytes, got %d", KeySize, len(opts.Key))
	}

	memory := opts.Path == MemoryPath
	if !memory {
		if dir := filepath.Dir(opts.Path); dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	sqlDB, err := sql.Open(SQLiteDriverName, DSN(opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if memory {
		// Every pooled connection must see the same in-memory database,
		// and shared-cache table locks do not wait, so use one connection.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
	} else {
		sqlDB.SetMaxOpenConns(MaxOpenConns)
		sqlDB.SetMaxIdleConns(MaxIdleConns)
	}

	// A wrong key only surfaces on the first real query.
	var sqliteVersion string
	if err := sqlDB.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&sqliteVersion); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}

	if _, err := sqlDB.ExecContext(ctx, Schema); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return sqlDB, nil
}

// DSN builds the driver connection string for opts.
func DSN(opts Options) string {
	var dsn string
	if opts.Path == MemoryPath {
		dsn = fmt.Sprintf("file:noteboard-%s?mode=memory&cache=shared", uuid.NewString())
	} else {
		dsn = opts.Path
	}
	if opts.Key != nil {
		// Format: file.db?_pragma_key=x'HEX_KEY'&_pragma_cipher_page_size=4096
		dsn = appendSQLiteParams(dsn, fmt.Sprintf("_pragma_key=x'%s'&_pragma_cipher_page_size=4096", hex.EncodeToString(opts.Key)))
	}
	if opts.Path != MemoryPath {
		dsn = appendSQLiteParams(dsn, sqliteCommonParams())
	}
	return dsn
}

func sqliteCommonParams() string {
	// WAL + NORMAL provides good throughput while preserving safety.
	return "_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
}

func appendSQLiteParams(dsn, params string) string {
	if strings.Contains(dsn, "?") {
		return dsn + "&" + params
	}
	return dsn + "?" + params
}

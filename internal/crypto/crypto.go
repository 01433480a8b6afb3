// Package crypto derives database encryption keys from the configured
// master key. The SQLCipher key is never the master key itself:
// HKDF-SHA256 binds it to a purpose label and a key version, so rotating
// DATABASE_KEY_VERSION yields an unrelated key from the same secret.
package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// DatabaseKeySize is the size of a derived SQLCipher key in bytes (256 bits)
	DatabaseKeySize = 32

	// MinMasterKeySize is the shortest master key accepted.
	MinMasterKeySize = 32
)

// DeriveDatabaseKey derives the SQLCipher key for the named database.
// info = "noteboard:db:" + name + ":v" + version
func DeriveDatabaseKey(masterKey []byte, name string, version int) ([]byte, error) {
	if len(masterKey) < MinMasterKeySize {
		return nil, fmt.Errorf("master key must be at least %d bytes, got %d", MinMasterKeySize, len(masterKey))
	}
	if version < 1 {
		return nil, fmt.Errorf("key version must be positive, got %d", version)
	}

	info := fmt.Sprintf("noteboard:db:%s:v%d", name, version)
	reader := hkdf.New(sha256.New, masterKey, nil, []byte(info))

	key := make([]byte, DatabaseKeySize)
	if _, err := io.ReadFull(reader, key); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return key, nil
}

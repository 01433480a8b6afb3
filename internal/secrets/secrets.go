// Package secrets resolves configuration values that may point at external
// storage. A value of the form s3://bucket/key is fetched from object
// storage, file://path is read from disk, and anything else is returned
// as-is.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrNoObjectStore is returned for s3:// references when the resolver was
// built without an object store.
var ErrNoObjectStore = errors.New("secrets: s3 reference but no object store configured")

// ObjectGetter fetches raw object bytes. *s3client.Client implements it.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
}

// Resolver dereferences secret references.
type Resolver struct {
	objects ObjectGetter
}

// NewResolver returns a resolver. objects may be nil when no s3:// values
// are expected.
func NewResolver(objects ObjectGetter) *Resolver {
	return &Resolver{objects: objects}
}

// IsReference reports whether value would be dereferenced by Resolve.
func IsReference(value string) bool {
	return strings.HasPrefix(value, "s3://") || strings.HasPrefix(value, "file://")
}

// Resolve returns the secret named by value. Fetched content has
// surrounding whitespace trimmed.
func (r *Resolver) Resolve(ctx context.Context, value string) (string, error) {
	switch {
	case strings.HasPrefix(value, "s3://"):
		bucket, key, ok := strings.Cut(strings.TrimPrefix(value, "s3://"), "/")
		if !ok || bucket == "" || key == "" {
			return "", fmt.Errorf("secrets: malformed s3 reference %q (want s3://bucket/key)", value)
		}
		if r == nil || r.objects == nil {
			return "", ErrNoObjectStore
		}
		data, err := r.objects.GetObject(ctx, bucket, key)
		if err != nil {
			return "", fmt.Errorf("secrets: fetch %s: %w", value, err)
		}
		return strings.TrimSpace(string(data)), nil

	case strings.HasPrefix(value, "file://"):
		path := strings.TrimPrefix(value, "file://")
		if path == "" {
			return "", fmt.Errorf("secrets: empty file reference")
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("secrets: read %s: %w", path, err)
		}
		return strings.TrimSpace(string(data)), nil

	default:
		return value, nil
	}
}

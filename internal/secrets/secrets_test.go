package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/kuitang/noteboard/internal/s3client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func testResolve_LiteralPassthrough(t *rapid.T) {
	value := rapid.StringMatching(`[A-Za-z0-9:/._-]{0,40}`).Filter(func(s string) bool {
		return !IsReference(s)
	}).Draw(t, "value")

	got, err := NewResolver(nil).Resolve(context.Background(), value)
	if err != nil {
		t.Fatalf("Resolve(%q): %v", value, err)
	}
	if got != value {
		t.Fatalf("Resolve(%q) = %q", value, got)
	}
}

func TestResolve_LiteralPassthrough(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testResolve_LiteralPassthrough)
}

func TestResolve_S3Reference(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	client := s3client.TestClient(t, "config")
	require.NoError(t, client.PutObject(ctx, "config", "noteboard/db-key", []byte("  abc123\n")))

	r := NewResolver(client)
	got, err := r.Resolve(ctx, "s3://config/noteboard/db-key")
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)

	_, err = r.Resolve(ctx, "s3://config/missing")
	assert.ErrorIs(t, err, s3client.ErrObjectNotFound)

	for _, bad := range []string{"s3://", "s3://bucket", "s3://bucket/", "s3:///key"} {
		_, err := r.Resolve(ctx, bad)
		assert.Error(t, err, bad)
	}
}

func TestResolve_S3WithoutStore(t *testing.T) {
	t.Parallel()
	_, err := NewResolver(nil).Resolve(context.Background(), "s3://b/k")
	assert.True(t, errors.Is(err, ErrNoObjectStore))
}

func TestResolve_FileReference(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "secret.txt")
	require.NoError(t, os.WriteFile(path, []byte("file-secret\n"), 0o600))

	r := NewResolver(nil)
	got, err := r.Resolve(context.Background(), "file://"+path)
	require.NoError(t, err)
	assert.Equal(t, "file-secret", got)

	_, err = r.Resolve(context.Background(), "file://"+filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)
	_, err = r.Resolve(context.Background(), "file://")
	assert.Error(t, err)
}

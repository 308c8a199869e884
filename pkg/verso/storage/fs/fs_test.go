package fs_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/verso-archive/verso/pkg/verso"
	"github.com/verso-archive/verso/pkg/verso/storage/fs"
)

func newBackend(t *testing.T) *fs.Backend {
	t.Helper()

	backend, err := fs.New(fs.Config{BaseDir: t.TempDir()})
	require.NoError(t, err)
	return backend
}

func TestNewRequiresBaseDir(t *testing.T) {
	_, err := fs.New(fs.Config{})
	assert.Error(t, err)
}

func TestBucketLifecycle(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()

	exists, err := backend.BucketExists(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, backend.CreateBucket(ctx, "docs"))

	exists, err = backend.BucketExists(ctx, "docs")
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, backend.DeleteBucket(ctx, "docs"))

	exists, err = backend.BucketExists(ctx, "docs")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStageAndPromote(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateBucket(ctx, "docs"))

	content := "file content"
	staged, err := backend.UploadTemp(ctx, strings.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, verso.Digest([]byte(content)), staged.Checksum)
	assert.Equal(t, int64(len(content)), staged.Size)

	exists, err := backend.ObjectExists(ctx, "docs", staged.Checksum)
	require.NoError(t, err)
	assert.False(t, exists, "staged content must not be addressable yet")

	require.NoError(t, backend.Promote(ctx, "docs", staged.TempRef, staged.Checksum))

	exists, err = backend.ObjectExists(ctx, "docs", staged.Checksum)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := backend.OpenRead(ctx, "docs", staged.Checksum)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, content, string(data))
}

func TestDeleteTemp(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()

	staged, err := backend.UploadTemp(ctx, strings.NewReader("abandoned"))
	require.NoError(t, err)

	require.NoError(t, backend.DeleteTemp(ctx, staged.TempRef))

	// Deleting an already removed temp is not an error.
	require.NoError(t, backend.DeleteTemp(ctx, staged.TempRef))
}

func TestDeleteBlob(t *testing.T) {
	backend := newBackend(t)
	ctx := context.Background()

	require.NoError(t, backend.CreateBucket(ctx, "docs"))

	staged, err := backend.UploadTemp(ctx, strings.NewReader("bytes"))
	require.NoError(t, err)
	require.NoError(t, backend.Promote(ctx, "docs", staged.TempRef, staged.Checksum))

	require.NoError(t, backend.Delete(ctx, "docs", staged.Checksum))

	_, err = backend.OpenRead(ctx, "docs", staged.Checksum)
	assert.Error(t, err)

	// Idempotent on a missing blob.
	require.NoError(t, backend.Delete(ctx, "docs", staged.Checksum))
}

func TestRedirectURLs(t *testing.T) {
	ctx := context.Background()

	t.Run("WithoutPrefix", func(t *testing.T) {
		backend := newBackend(t)
		assert.False(t, backend.SupportsRedirect())

		_, err := backend.RedirectURLs(ctx, "docs", "abc")
		assert.Error(t, err)
	})

	t.Run("WithPrefix", func(t *testing.T) {
		backend, err := fs.New(fs.Config{
			BaseDir:   t.TempDir(),
			URLPrefix: "https://cdn.example.com/blobs",
		})
		require.NoError(t, err)
		assert.True(t, backend.SupportsRedirect())

		urls, err := backend.RedirectURLs(ctx, "docs", "abc")
		require.NoError(t, err)
		require.Len(t, urls, 1)
		assert.Equal(t, "https://cdn.example.com/blobs/docs/abc", urls[0])
	})
}

func TestTempFilesLiveUnderTempDir(t *testing.T) {
	base := t.TempDir()
	backend, err := fs.New(fs.Config{BaseDir: base})
	require.NoError(t, err)

	staged, err := backend.UploadTemp(context.Background(), strings.NewReader("x"))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(base, ".tmp", staged.TempRef))
	assert.NoError(t, err)
}

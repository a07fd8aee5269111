package minio

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/surfmatch/blobstore"
)

// TestMinioStore_Integration requires a running MinIO instance.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		endpoint = "localhost:9000"
	}

	ctx := context.Background()
	store, err := Connect(ctx, Config{
		Endpoint:     endpoint,
		AccessKey:    "minioadmin",
		SecretKey:    "minioadmin",
		Bucket:       "test-surfmatch",
		Prefix:       "test-prefix/",
		CreateBucket: true,
	})
	if err != nil {
		t.Skipf("MinIO not available: %v", err)
	}

	// Put and Open
	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "models/a/test.ppf", data))

	blob, err := store.Open(ctx, "models/a/test.ppf")
	require.NoError(t, err)
	require.Equal(t, int64(len(data)), blob.Size())

	got, err := blobstore.ReadAll(ctx, blob)
	require.NoError(t, err)
	require.Equal(t, data, got)

	// ReadRange
	rc, err := blob.ReadRange(ctx, 6, 5)
	require.NoError(t, err)
	part, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "minio", string(part))
	require.NoError(t, rc.Close())
	require.NoError(t, blob.Close())

	// List
	names, err := store.List(ctx, "models/a/")
	require.NoError(t, err)
	assert.Equal(t, []string{"models/a/test.ppf"}, names)

	// Delete twice
	require.NoError(t, store.Delete(ctx, "models/a/test.ppf"))
	require.NoError(t, store.Delete(ctx, "models/a/test.ppf"))

	_, err = store.Open(ctx, "models/a/test.ppf")
	require.ErrorIs(t, err, blobstore.ErrNotFound)

	// Streaming create
	wb, err := store.Create(ctx, "stream.bin")
	require.NoError(t, err)
	_, err = wb.Write([]byte("streamed data"))
	require.NoError(t, err)
	require.NoError(t, wb.Close())

	blob3, err := store.Open(ctx, "stream.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(13), blob3.Size())
	require.NoError(t, blob3.Close())

	_ = store.Delete(ctx, "stream.bin")
}

package blob_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/gaspermerela/journal-service-sub002/internal/blob"
	"github.com/gaspermerela/journal-service-sub002/internal/config"
	"github.com/gaspermerela/journal-service-sub002/internal/testutil/tests3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestS3Store_PutAndOpen(t *testing.T) {
	bucket := tests3.StartS3(t)

	cfg := config.DefaultConfig()
	cfg.S3Bucket = bucket
	cfg.S3Prefix = "entries/"
	cfg.S3UsePathStyle = true

	ctx := context.Background()
	store, err := blob.NewS3Store(ctx, &cfg)
	require.NoError(t, err)

	key := uuid.NewString() + ".m4a"
	handle, err := store.Put(ctx, key, bytes.NewReader([]byte("fake audio bytes")))
	require.NoError(t, err)
	require.Equal(t, "entries/"+key, handle.Key())

	reader, err := handle.Open(ctx)
	require.NoError(t, err)
	defer reader.Close()

	body, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.Equal(t, "fake audio bytes", string(body))
}

func TestS3Store_Handle_AppliesPrefix(t *testing.T) {
	bucket := tests3.StartS3(t)

	cfg := config.DefaultConfig()
	cfg.S3Bucket = bucket
	cfg.S3Prefix = "entries/"
	cfg.S3UsePathStyle = true

	store, err := blob.NewS3Store(context.Background(), &cfg)
	require.NoError(t, err)

	handle := store.Handle("already-uploaded.m4a")
	require.Equal(t, "entries/already-uploaded.m4a", handle.Key())
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	cfg := config.DefaultConfig()
	_, err := blob.NewS3Store(context.Background(), &cfg)
	require.Error(t, err)
}

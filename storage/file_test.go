package storage

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/pod-mint-service/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dir := t.TempDir()

	backend, err := NewFileBackend(dir, logger)
	require.NoError(t, err)
	ctx := context.Background()

	assert.True(t, backend.Available(ctx))

	_, err = backend.Fetch(ctx, testDocument)
	assert.ErrorIs(t, err, interfaces.ErrContentNotFound)

	require.NoError(t, backend.Store(ctx, testDocument, []byte("v1")))
	require.NoError(t, backend.Store(ctx, testDocument, []byte("v2")))

	data, err := backend.Fetch(ctx, testDocument)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), data)

	info, err := os.Stat(filepath.Join(dir, testDocument))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// No temporary files are left behind
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Error(t, backend.Store(ctx, "../escape.json", []byte("x")))
	_, err = backend.Fetch(ctx, "nested/store.json")
	assert.Error(t, err)
}

func TestStorageBackendFactory(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	factory := NewStorageBackendFactory(logger)

	dir := t.TempDir()
	backend, err := factory.StorageBackendFor(interfaces.StorageBackendLocation("file://" + dir))
	require.NoError(t, err)
	assert.Equal(t, "file://"+dir, backend.LocationURI())

	_, err = factory.StorageBackendFor("ftp://example.com/store")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	_, err = factory.StorageBackendFor("vault://vault.local:8200/")
	assert.ErrorIs(t, err, interfaces.ErrInvalidLocationURI)

	_, err = factory.CreateMultiBackend("gopher://nowhere", nil)
	assert.Error(t, err)

	multi, err := factory.CreateMultiBackend(
		interfaces.StorageBackendLocation("file://"+dir),
		[]interfaces.StorageBackendLocation{"ftp://bad", interfaces.StorageBackendLocation("file://" + t.TempDir())},
	)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, multi.Store(ctx, testDocument, []byte("doc")))
	data, err := multi.Fetch(ctx, testDocument)
	require.NoError(t, err)
	assert.Equal(t, []byte("doc"), data)
}

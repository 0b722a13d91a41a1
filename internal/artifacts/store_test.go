package artifacts

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestLocalStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStore(filepath.Join(dir, "models"))
	require.NoError(t, err)

	loc, err := s.Save(ctx, "lstm_v20250101_0600", []byte("weights"), map[string]string{"val_loss": "0.012"})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "models", "lstm_v20250101_0600.bin"), loc)
	assert.FileExists(t, filepath.Join(dir, "models", "lstm_v20250101_0600_metadata.json"))

	blob, meta, err := s.Load(ctx, "lstm_v20250101_0600")
	require.NoError(t, err)
	assert.Equal(t, []byte("weights"), blob)
	assert.Equal(t, map[string]string{"val_loss": "0.012"}, meta)

	ok, err := s.Exists(ctx, "lstm_v20250101_0600")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalStore_NoMetadata(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Save(ctx, "scaler", []byte("{}"), nil)
	require.NoError(t, err)

	_, meta, err := s.Load(ctx, "scaler")
	require.NoError(t, err)
	assert.Empty(t, meta)
}

func TestLocalStore_ListAndDelete(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	require.NoError(t, err)

	for _, name := range []string{"b_model", "a_model"} {
		_, err := s.Save(ctx, name, []byte(name), map[string]string{"k": "v"})
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	names, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a_model", "b_model"}, names)

	deleted, err := s.Delete(ctx, "a_model")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoFileExists(t, filepath.Join(dir, "a_model_metadata.json"))

	deleted, err = s.Delete(ctx, "a_model")
	require.NoError(t, err)
	assert.False(t, deleted)

	ok, err := s.Exists(ctx, "a_model")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocalStore_NotFound(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	_, _, err = s.Load(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestInvalidNames(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, name := range []string{"", "../escape", "a/b", `a\b`} {
		_, err := s.Save(ctx, name, []byte("x"), nil)
		assert.Error(t, err, name)
	}
}

func TestNew(t *testing.T) {
	ctx := context.Background()

	s, err := New(ctx, Config{Backend: "local", LocalPath: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, s)

	_, err = New(ctx, Config{Backend: "gcs"})
	assert.Error(t, err)

	_, err = New(ctx, Config{Backend: "s3"})
	assert.Error(t, err)
}

func TestGCSStore_Paths(t *testing.T) {
	s, err := NewGCSStore(context.Background(), "courtcast-models", "/models/", option.WithoutAuthentication())
	require.NoError(t, err)
	defer s.Close()

	obj := s.object("lstm_v1", blobSuffix)
	assert.Equal(t, "models/lstm_v1.bin", obj)
	assert.Equal(t, "models/lstm_v1_metadata.json", s.object("lstm_v1", metadataSuffix))
	assert.Equal(t, "gs://courtcast-models/models/lstm_v1.bin", s.location(obj))
}

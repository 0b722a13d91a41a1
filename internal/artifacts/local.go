package artifacts

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/fortuna/courtcast/internal/logging"
)

// LocalStore keeps artifacts in a directory as {name}.bin with a
// {name}_metadata.json sidecar.
type LocalStore struct {
	dir    string
	logger zerolog.Logger
}

// NewLocalStore creates the directory if needed.
func NewLocalStore(dir string) (*LocalStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating artifact directory %s", dir)
	}
	return &LocalStore{dir: dir, logger: logging.Component("artifacts")}, nil
}

func (s *LocalStore) blobPath(name string) string {
	return filepath.Join(s.dir, name+blobSuffix)
}

func (s *LocalStore) metadataPath(name string) string {
	return filepath.Join(s.dir, name+metadataSuffix)
}

// Save implements Store. Files are written to a temporary name and renamed.
func (s *LocalStore) Save(_ context.Context, name string, blob []byte, meta map[string]string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	path := s.blobPath(name)
	if err := writeFile(path, blob); err != nil {
		return "", err
	}
	if len(meta) > 0 {
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return "", errors.Wrap(err, "encoding artifact metadata")
		}
		if err := writeFile(s.metadataPath(name), data); err != nil {
			return "", err
		}
	}
	s.logger.Info().Str("path", path).Str("size", humanize.Bytes(uint64(len(blob)))).Msg("saved artifact")
	return path, nil
}

func writeFile(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

// Load implements Store.
func (s *LocalStore) Load(_ context.Context, name string) ([]byte, map[string]string, error) {
	if err := validName(name); err != nil {
		return nil, nil, err
	}
	blob, err := os.ReadFile(s.blobPath(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, errors.Wrapf(ErrNotFound, "%s", name)
		}
		return nil, nil, errors.Wrapf(err, "reading artifact %s", name)
	}

	meta := map[string]string{}
	data, err := os.ReadFile(s.metadataPath(name))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, nil, errors.Wrapf(err, "decoding metadata of %s", name)
		}
	case !errors.Is(err, os.ErrNotExist):
		return nil, nil, errors.Wrapf(err, "reading metadata of %s", name)
	}
	return blob, meta, nil
}

// List implements Store.
func (s *LocalStore) List(_ context.Context) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*"+blobSuffix))
	if err != nil {
		return nil, errors.Wrap(err, "listing artifacts")
	}
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, strings.TrimSuffix(filepath.Base(m), blobSuffix))
	}
	sort.Strings(names)
	return names, nil
}

// Delete implements Store.
func (s *LocalStore) Delete(_ context.Context, name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	err := os.Remove(s.blobPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "deleting artifact %s", name)
	}
	if err := os.Remove(s.metadataPath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return true, errors.Wrapf(err, "deleting metadata of %s", name)
	}
	s.logger.Info().Str("name", name).Msg("deleted artifact")
	return true, nil
}

// Exists implements Store.
func (s *LocalStore) Exists(_ context.Context, name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	_, err := os.Stat(s.blobPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

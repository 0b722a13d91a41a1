// Package artifacts persists trained model blobs with a JSON metadata
// sidecar on the local filesystem or in Google Cloud Storage.
package artifacts

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// ErrNotFound is returned when an artifact does not exist.
var ErrNotFound = errors.New("artifact not found")

// Store saves and loads named artifacts. Each artifact is one blob plus an
// optional metadata map.
type Store interface {
	// Save writes the blob and, when meta is not empty, its metadata. It
	// returns the artifact's location.
	Save(ctx context.Context, name string, blob []byte, meta map[string]string) (string, error)
	// Load returns the blob and its metadata; metadata is empty when none
	// was saved.
	Load(ctx context.Context, name string) ([]byte, map[string]string, error)
	// List returns the artifact names in lexical order.
	List(ctx context.Context) ([]string, error)
	// Delete removes the artifact and its metadata. It reports whether the
	// artifact existed.
	Delete(ctx context.Context, name string) (bool, error)
	Exists(ctx context.Context, name string) (bool, error)
}

const (
	blobSuffix     = ".bin"
	metadataSuffix = "_metadata.json"
)

// Backend names.
const (
	BackendLocal = "local"
	BackendGCS   = "gcs"
)

// Config selects and configures a backend.
type Config struct {
	Backend   string
	LocalPath string
	Bucket    string
	Prefix    string
}

// New opens the configured backend.
func New(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case BackendGCS:
		s, err := NewGCSStore(ctx, cfg.Bucket, cfg.Prefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendLocal, "":
		s, err := NewLocalStore(cfg.LocalPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.Newf("unknown artifact backend %q", cfg.Backend)
	}
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return errors.Newf("invalid artifact name %q", name)
	}
	return nil
}

package artifacts

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/fortuna/courtcast/internal/logging"
)

// GCSStore keeps artifacts under gs://bucket/prefix/ with the same naming
// as LocalStore.
type GCSStore struct {
	client *storage.Client
	bucket *storage.BucketHandle
	name   string
	prefix string
	logger zerolog.Logger
}

// NewGCSStore connects with application default credentials.
func NewGCSStore(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*GCSStore, error) {
	if bucket == "" {
		return nil, errors.New("gcs artifact store requires a bucket")
	}
	opts = append([]option.ClientOption{option.WithScopes(storage.ScopeReadWrite)}, opts...)
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create google cloud client")
	}
	return &GCSStore{
		client: client,
		bucket: client.Bucket(bucket),
		name:   bucket,
		prefix: strings.Trim(prefix, "/"),
		logger: logging.Component("artifacts"),
	}, nil
}

func (s *GCSStore) object(name, suffix string) string {
	return path.Join(s.prefix, name+suffix)
}

func (s *GCSStore) location(object string) string {
	return fmt.Sprintf("gs://%s/%s", s.name, object)
}

func (s *GCSStore) put(ctx context.Context, object, contentType string, data []byte) error {
	w := s.bucket.Object(object).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return errors.Wrapf(err, "uploading %s", s.location(object))
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "uploading %s", s.location(object))
	}
	return nil
}

func (s *GCSStore) get(ctx context.Context, object string) ([]byte, error) {
	r, err := s.bucket.Object(object).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, errors.Wrapf(ErrNotFound, "%s", s.location(object))
		}
		return nil, errors.Wrapf(err, "reading %s", s.location(object))
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", s.location(object))
	}
	return data, nil
}

// Save implements Store.
func (s *GCSStore) Save(ctx context.Context, name string, blob []byte, meta map[string]string) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	object := s.object(name, blobSuffix)
	if err := s.put(ctx, object, "application/octet-stream", blob); err != nil {
		return "", err
	}
	if len(meta) > 0 {
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return "", errors.Wrap(err, "encoding artifact metadata")
		}
		if err := s.put(ctx, s.object(name, metadataSuffix), "application/json", data); err != nil {
			return "", err
		}
	}
	loc := s.location(object)
	s.logger.Info().Str("path", loc).Str("size", humanize.Bytes(uint64(len(blob)))).Msg("saved artifact")
	return loc, nil
}

// Load implements Store.
func (s *GCSStore) Load(ctx context.Context, name string) ([]byte, map[string]string, error) {
	if err := validName(name); err != nil {
		return nil, nil, err
	}
	blob, err := s.get(ctx, s.object(name, blobSuffix))
	if err != nil {
		return nil, nil, err
	}

	meta := map[string]string{}
	data, err := s.get(ctx, s.object(name, metadataSuffix))
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &meta); err != nil {
			return nil, nil, errors.Wrapf(err, "decoding metadata of %s", name)
		}
	case !errors.Is(err, ErrNotFound):
		return nil, nil, err
	}
	return blob, meta, nil
}

// List implements Store.
func (s *GCSStore) List(ctx context.Context) ([]string, error) {
	dir := s.prefix
	if dir != "" {
		dir += "/"
	}
	it := s.bucket.Objects(ctx, &storage.Query{Prefix: dir, Delimiter: "/"})

	var names []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "unable to list artifacts in gcs bucket")
		}
		base := strings.TrimPrefix(attrs.Name, dir)
		if strings.HasSuffix(base, blobSuffix) {
			names = append(names, strings.TrimSuffix(base, blobSuffix))
		}
	}
	sort.Strings(names)
	return names, nil
}

// Delete implements Store.
func (s *GCSStore) Delete(ctx context.Context, name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	err := s.bucket.Object(s.object(name, blobSuffix)).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "deleting artifact %s", name)
	}
	err = s.bucket.Object(s.object(name, metadataSuffix)).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return true, errors.Wrapf(err, "deleting metadata of %s", name)
	}
	s.logger.Info().Str("name", name).Msg("deleted artifact")
	return true, nil
}

// Exists implements Store.
func (s *GCSStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := validName(name); err != nil {
		return false, err
	}
	_, err := s.bucket.Object(s.object(name, blobSuffix)).Attrs(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "checking artifact %s", name)
	}
	return true, nil
}

// Close releases the client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

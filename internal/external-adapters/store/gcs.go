package store

import (
	"context"
	stderrors "errors"
	"io"
	"path"
	"sort"
	"strings"

	gcs "cloud.google.com/go/storage"
	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// textSuffixes are stored gzip-encoded; GCS decompresses them on read
var textSuffixes = []string{".md", ".sha256", ".asc", ".json"}

// GCSStore stores artifacts as objects under a bucket prefix
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

var _ gateways.ArtifactStore = &GCSStore{}

// NewGCSStore creates a store for a gs://bucket/prefix location
func NewGCSStore(ctx context.Context, location string, opts ...option.ClientOption) (*GCSStore, error) {
	bucket, prefix, err := parseGCSLocation(location)
	if err != nil {
		return nil, err
	}
	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating GCS client")
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func parseGCSLocation(location string) (bucket, prefix string, err error) {
	if !strings.HasPrefix(location, "gs://") {
		return "", "", errors.Errorf("invalid GCS location: %s", location)
	}
	bucket, prefix, _ = strings.Cut(strings.TrimPrefix(location, "gs://"), "/")
	if bucket == "" {
		return "", "", errors.Errorf("invalid GCS location: %s", location)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}

func (s *GCSStore) objectPath(name string) string {
	return path.Join(s.prefix, name)
}

func compressible(name string) bool {
	for _, suffix := range textSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// Put uploads content under name
func (s *GCSStore) Put(ctx context.Context, name string, content io.Reader) error {
	if err := ValidateName(name); err != nil {
		return err
	}

	objectPath := s.objectPath(name)
	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	var dst io.Writer = w
	var zw *gzip.Writer
	if compressible(name) {
		w.ContentEncoding = "gzip"
		w.ContentType = "text/plain; charset=utf-8"
		zw = gzip.NewWriter(w)
		dst = zw
	} else {
		w.ContentType = "application/octet-stream"
	}

	if _, err := io.Copy(dst, content); err != nil {
		//nolint:errcheck // Best effort close on failed upload
		w.Close()
		return errors.Wrapf(err, "uploading %s", objectPath)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			//nolint:errcheck // Best effort close on failed upload
			w.Close()
			return errors.Wrapf(err, "compressing %s", objectPath)
		}
	}
	if err := w.Close(); err != nil {
		return errors.Wrapf(err, "finalizing %s", objectPath)
	}
	return nil
}

// Get returns a reader for name. Gzip-encoded objects are decompressed by
// the client.
func (s *GCSStore) Get(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}
	objectPath := s.objectPath(name)
	r, err := s.client.Bucket(s.bucket).Object(objectPath).NewReader(ctx)
	if err != nil {
		if stderrors.Is(err, gcs.ErrObjectNotExist) {
			err = stderrors.Join(err, gateways.ErrArtifactNotFound)
		}
		return nil, errors.Wrapf(err, "creating GCS reader for %s", objectPath)
	}
	return r, nil
}

// Delete removes the object stored under name
func (s *GCSStore) Delete(ctx context.Context, name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	objectPath := s.objectPath(name)
	err := s.client.Bucket(s.bucket).Object(objectPath).Delete(ctx)
	if err != nil && !stderrors.Is(err, gcs.ErrObjectNotExist) {
		return errors.Wrapf(err, "deleting %s", objectPath)
	}
	return nil
}

// List returns the sorted names under the store prefix that start with
// prefix
func (s *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	base := s.prefix
	if base != "" {
		base += "/"
	}
	objs := s.client.Bucket(s.bucket).Objects(ctx, &gcs.Query{Prefix: base + prefix})

	var names []string
	for {
		attrs, err := objs.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "listing gs://%s/%s", s.bucket, base)
		}
		name := strings.TrimPrefix(attrs.Name, base)
		if name == "" || strings.Contains(name, "/") {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Close releases the GCS client
func (s *GCSStore) Close() error {
	return s.client.Close()
}

package gateways

import (
	"context"
	"errors"
	"io"
)

// ErrArtifactNotFound is returned by stores for unknown names
var ErrArtifactNotFound = errors.New("artifact not found")

// ArtifactStore persists artifacts outside the build environment, keyed by
// name. It offers no query API beyond name lookup and listing. Delete of
// an unknown name succeeds.
type ArtifactStore interface {
	Put(ctx context.Context, name string, content io.Reader) error
	Get(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

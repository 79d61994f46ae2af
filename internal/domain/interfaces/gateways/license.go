package gateways

import (
	"context"
	"io"

	"github.com/ochairo/distill/internal/domain/entities"
)

// AdvisoryGateway looks up security advisories for a dependency
type AdvisoryGateway interface {
	QueryAdvisories(ctx context.Context, dep entities.DependencyRecord) ([]entities.Advisory, error)
}

// TextFetcher fetches a license text from its canonical upstream location
type TextFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// BinaryInspector reads the dynamic linking requirements of a binary
type BinaryInspector interface {
	InspectLinkage(path string) (*entities.LinkageReport, error)
}

// Signer produces armored detached signatures
type Signer interface {
	SignDetached(message io.Reader) ([]byte, error)
}

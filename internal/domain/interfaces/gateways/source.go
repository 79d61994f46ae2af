package gateways

import "context"

// SourceGateway produces an independent checkout of a revision
type SourceGateway interface {
	// Checkout clones repository into dir at revision and returns the
	// resolved commit hash.
	Checkout(ctx context.Context, repository, revision, dir string) (string, error)

	// Resolve returns the commit hash a revision names in repository
	Resolve(ctx context.Context, repository, revision string) (string, error)
}

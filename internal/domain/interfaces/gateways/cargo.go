package gateways

import (
	"context"

	"github.com/ochairo/distill/internal/domain/entities"
)

// CargoGateway wraps the package manager and compiler commands run against a
// checkout.
type CargoGateway interface {
	// CheckFormat verifies formatting without modifying files
	CheckFormat(ctx context.Context, dir string) (*CommandOutput, error)

	// Test runs the unit tests for the host target
	Test(ctx context.Context, dir string) (*CommandOutput, error)

	// Dependencies returns the resolved dependency graph, excluding workspace
	// members, in resolution order.
	Dependencies(ctx context.Context, dir string) ([]entities.DependencyRecord, error)

	// BundleLicenses returns the license texts for every dependency
	BundleLicenses(ctx context.Context, dir string) ([]entities.BundledPackage, error)

	// Deny runs the external license policy checker
	Deny(ctx context.Context, dir, policyPath string) (*CommandOutput, error)

	// BuildCommand returns the compiler invocation for a release build
	BuildCommand(target entities.BuildTarget) []string

	// Build compiles a release binary for target on the host
	Build(ctx context.Context, dir string, target entities.BuildTarget) (*CommandOutput, error)
}

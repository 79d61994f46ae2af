// Package services defines interfaces for domain service contracts.
package services

import (
	"github.com/ochairo/distill/internal/domain/entities"
)

// PolicyService defines the license and supply chain rules a dependency graph
// is audited against. Pure business logic, no I/O.
type PolicyService interface {
	// Evaluate checks licenses, bans, duplicate versions and sources
	Evaluate(policy entities.LicensePolicy, deps []entities.DependencyRecord) *entities.PolicyReport

	// EvaluateAdvisories turns advisories into findings at the policy's
	// vulnerability level.
	EvaluateAdvisories(policy entities.LicensePolicy, advisories []entities.Advisory) *entities.PolicyReport

	// SelectLicense picks the license a package is distributed under in the
	// manifest.
	SelectLicense(policy entities.LicensePolicy, pkg entities.BundledPackage) (entities.LicenseText, error)
}

// ManifestService assembles and renders the third-party license manifest
type ManifestService interface {
	Assemble(policy entities.LicensePolicy, graph []entities.DependencyRecord, bundled []entities.BundledPackage, runtime entities.RuntimeAddendum, runtimeText string) (*entities.LicenseManifest, error)
	Render(manifest *entities.LicenseManifest) []byte
}

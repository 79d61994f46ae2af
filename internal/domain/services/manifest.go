package services

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces/services"
)

// manifestService implements ManifestService
type manifestService struct {
	policy services.PolicyService
}

// NewManifestService creates a manifest service that selects licenses with
// the given policy service.
func NewManifestService(policy services.PolicyService) services.ManifestService {
	return &manifestService{policy: policy}
}

// Assemble builds the manifest in resolution order. Duplicate records are
// collapsed and the runtime addendum is always appended last. Any record
// without a permissible license text fails the whole manifest.
func (s *manifestService) Assemble(
	policy entities.LicensePolicy,
	graph []entities.DependencyRecord,
	bundled []entities.BundledPackage,
	runtime entities.RuntimeAddendum,
	runtimeText string,
) (*entities.LicenseManifest, error) {
	byKey := make(map[string]entities.BundledPackage, len(bundled))
	for _, pkg := range bundled {
		byKey[pkg.Key()] = pkg
	}

	manifest := &entities.LicenseManifest{}
	seen := make(map[string]bool, len(graph))
	for _, dep := range graph {
		if dep.Source == entities.SourceSystemRuntime || seen[dep.Key()] {
			continue
		}
		seen[dep.Key()] = true

		pkg, ok := byKey[dep.Key()]
		if !ok {
			return nil, fmt.Errorf("no license texts collected for %s", dep.Key())
		}
		lic, err := s.policy.SelectLicense(policy, pkg)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(lic.Text) == "" {
			return nil, fmt.Errorf("license text for %s (%s) is empty", dep.Key(), lic.ID)
		}
		manifest.Entries = append(manifest.Entries, entities.ManifestEntry{
			Dependency: dep,
			License:    lic.ID,
			Text:       lic.Text,
		})
	}

	if strings.TrimSpace(runtimeText) == "" {
		return nil, fmt.Errorf("license text for runtime %s is empty", runtime.Name)
	}
	manifest.Entries = append(manifest.Entries, entities.ManifestEntry{
		Dependency: runtime.Record(),
		License:    runtime.License,
		Text:       runtimeText,
	})

	if err := manifest.Validate(graph); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}
	return manifest, nil
}

// Render writes the manifest as markdown, one section per entry
func (s *manifestService) Render(manifest *entities.LicenseManifest) []byte {
	var buf bytes.Buffer
	buf.WriteString("# Third party library licenses\n\n")
	for _, e := range manifest.Entries {
		fmt.Fprintf(&buf, "## %s %s\n\n", e.Dependency.Name, e.Dependency.Version)
		fmt.Fprintf(&buf, "%s\n\n", e.License)
		buf.WriteString(strings.TrimRight(e.Text, "\n"))
		buf.WriteString("\n\n\n")
	}
	return buf.Bytes()
}

package entities

import "fmt"

// ManifestEntry pairs a dependency with the license it is distributed under
type ManifestEntry struct {
	Dependency DependencyRecord
	License    string
	Text       string
}

// LicenseManifest is the ordered list of third-party licenses for a release
type LicenseManifest struct {
	Entries []ManifestEntry
}

// Validate checks that the manifest covers graph exactly once per record and
// ends with exactly one system runtime entry.
func (m *LicenseManifest) Validate(graph []DependencyRecord) error {
	seen := make(map[string]bool, len(m.Entries))
	runtimeEntries := 0
	for i, e := range m.Entries {
		key := e.Dependency.Key()
		if seen[key] {
			return fmt.Errorf("duplicate manifest entry for %s", key)
		}
		seen[key] = true
		if e.Text == "" {
			return fmt.Errorf("manifest entry %s has no license text", key)
		}
		if e.Dependency.Source == SourceSystemRuntime {
			runtimeEntries++
			if i != len(m.Entries)-1 {
				return fmt.Errorf("runtime entry %s must be last", key)
			}
		}
	}

	if runtimeEntries != 1 {
		return fmt.Errorf("manifest must contain exactly one runtime entry, found %d", runtimeEntries)
	}

	for _, dep := range graph {
		if !seen[dep.Key()] {
			return fmt.Errorf("dependency %s missing from manifest", dep.Key())
		}
	}

	return nil
}

// Keys returns entry keys in manifest order
func (m *LicenseManifest) Keys() []string {
	keys := make([]string, 0, len(m.Entries))
	for _, e := range m.Entries {
		keys = append(keys, e.Dependency.Key())
	}
	return keys
}

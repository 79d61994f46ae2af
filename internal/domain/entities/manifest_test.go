package entities

import (
	"strings"
	"testing"
)

func record(name, version string) DependencyRecord {
	return DependencyRecord{Name: name, Version: version, License: "MIT", Source: SourcePackageManager}
}

func entry(dep DependencyRecord) ManifestEntry {
	return ManifestEntry{Dependency: dep, License: "MIT", Text: "text"}
}

func TestLicenseManifestValidate(t *testing.T) {
	runtime := DefaultRuntimeAddendum().Record()
	graph := []DependencyRecord{record("a", "1.0.0"), record("b", "2.0.0")}

	tests := []struct {
		name    string
		entries []ManifestEntry
		wantErr string
	}{
		{
			name:    "complete",
			entries: []ManifestEntry{entry(graph[0]), entry(graph[1]), entry(runtime)},
		},
		{
			name:    "duplicate",
			entries: []ManifestEntry{entry(graph[0]), entry(graph[0]), entry(graph[1]), entry(runtime)},
			wantErr: "duplicate",
		},
		{
			name:    "runtime not last",
			entries: []ManifestEntry{entry(graph[0]), entry(runtime), entry(graph[1])},
			wantErr: "must be last",
		},
		{
			name:    "runtime missing",
			entries: []ManifestEntry{entry(graph[0]), entry(graph[1])},
			wantErr: "exactly one runtime entry",
		},
		{
			name:    "graph record missing",
			entries: []ManifestEntry{entry(graph[0]), entry(runtime)},
			wantErr: "b@2.0.0 missing",
		},
		{
			name:    "empty text",
			entries: []ManifestEntry{entry(graph[0]), {Dependency: graph[1], License: "MIT"}, entry(runtime)},
			wantErr: "no license text",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &LicenseManifest{Entries: tt.entries}
			err := m.Validate(graph)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

// Package entities defines core domain models and data structures.
package entities

// ArtifactKind distinguishes release outputs
type ArtifactKind string

// Artifact kinds
const (
	ArtifactBinary   ArtifactKind = "binary"
	ArtifactManifest ArtifactKind = "manifest"
)

// Artifact is a release output produced by a stage and owned by the publisher
type Artifact struct {
	Name   string       `json:"name"`
	Path   string       `json:"path"`
	Kind   ArtifactKind `json:"kind"`
	Target *BuildTarget `json:"target,omitempty"`
	SHA256 string       `json:"sha256,omitempty"`
}

// CountKind counts artifacts of the given kind
func CountKind(artifacts []Artifact, kind ArtifactKind) int {
	n := 0
	for _, a := range artifacts {
		if a.Kind == kind {
			n++
		}
	}
	return n
}

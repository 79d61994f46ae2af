package services

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ochairo/distill/internal/domain/entities"
)

// Sidecar suffixes published next to every artifact
const (
	ChecksumSuffix  = ".sha256"
	SignatureSuffix = ".asc"
)

// ReleaseStatus represents the completeness of a published release
type ReleaseStatus string

// Release validation statuses
const (
	StatusReady               ReleaseStatus = "ready"
	StatusNoArtifacts         ReleaseStatus = "no_artifacts"
	StatusArtifactMismatch    ReleaseStatus = "artifact_mismatch"
	StatusUnexpectedArtifacts ReleaseStatus = "unexpected_artifacts"
	StatusMissingChecksums    ReleaseStatus = "missing_checksums"
)

// ReleaseValidation contains the validation result for a revision
type ReleaseValidation struct {
	Status              ReleaseStatus
	ExpectedArtifacts   []string
	AvailableArtifacts  []string
	MissingArtifacts    []string
	UnexpectedArtifacts []string
	MissingChecksums    []string
	ExpectedCount       int
	AvailableCount      int
}

// IsReady returns true if every expected artifact is published
func (rv *ReleaseValidation) IsReady() bool {
	return rv.Status == StatusReady
}

// ErrorMessage returns a human-readable error message if not ready
func (rv *ReleaseValidation) ErrorMessage() string {
	switch rv.Status {
	case StatusReady:
		return ""
	case StatusNoArtifacts:
		return fmt.Sprintf("No artifacts found (expected: %d)", rv.ExpectedCount)
	case StatusArtifactMismatch:
		msg := fmt.Sprintf("Artifact count mismatch (expected: %d, have: %d)", rv.ExpectedCount, rv.AvailableCount)
		if len(rv.MissingArtifacts) > 0 {
			msg += fmt.Sprintf("\n   Missing: %s", strings.Join(rv.MissingArtifacts, ", "))
		}
		if len(rv.UnexpectedArtifacts) > 0 {
			msg += fmt.Sprintf("\n   Unexpected: %s", strings.Join(rv.UnexpectedArtifacts, ", "))
		}
		return msg
	case StatusUnexpectedArtifacts:
		return fmt.Sprintf("Unexpected artifacts found: %s", strings.Join(rv.UnexpectedArtifacts, ", "))
	case StatusMissingChecksums:
		return fmt.Sprintf("Artifacts without checksum: %s", strings.Join(rv.MissingChecksums, ", "))
	default:
		return "Unknown status"
	}
}

// ReleaseService handles release validation logic
type ReleaseService struct{}

// NewReleaseService creates a new release service
func NewReleaseService() *ReleaseService {
	return &ReleaseService{}
}

// ExpectedArtifacts returns the names every instance publishes for the
// environment's revision: one binary per target and one manifest overall.
func (s *ReleaseService) ExpectedArtifacts(env entities.Environment, instances []entities.PipelineInstance) []string {
	var names []string
	manifest := false
	for _, inst := range instances {
		if inst.Enabled(entities.StageBuild) {
			for _, t := range inst.Targets {
				names = append(names, env.BinaryArtifactName(t))
			}
		}
		if inst.IncludesLicensing() {
			manifest = true
		}
	}
	if manifest {
		names = append(names, env.ManifestArtifactName())
	}
	return names
}

// ValidateRelease compares the artifacts found in the store with the
// artifacts the configuration should have produced.
func (s *ReleaseService) ValidateRelease(env entities.Environment, instances []entities.PipelineInstance, storedNames []string) *ReleaseValidation {
	validation := &ReleaseValidation{}

	validation.ExpectedArtifacts = s.ExpectedArtifacts(env, instances)
	validation.ExpectedCount = len(validation.ExpectedArtifacts)

	validation.AvailableArtifacts = s.extractAvailableArtifacts(env, storedNames)
	validation.AvailableCount = len(validation.AvailableArtifacts)

	validation.MissingArtifacts = difference(validation.ExpectedArtifacts, validation.AvailableArtifacts)
	validation.UnexpectedArtifacts = difference(validation.AvailableArtifacts, validation.ExpectedArtifacts)

	for _, name := range validation.AvailableArtifacts {
		if !slices.Contains(storedNames, name+ChecksumSuffix) {
			validation.MissingChecksums = append(validation.MissingChecksums, name)
		}
	}

	switch {
	case validation.AvailableCount == 0:
		validation.Status = StatusNoArtifacts
	case validation.AvailableCount != validation.ExpectedCount || len(validation.MissingArtifacts) > 0:
		validation.Status = StatusArtifactMismatch
	case len(validation.UnexpectedArtifacts) > 0:
		validation.Status = StatusUnexpectedArtifacts
	case len(validation.MissingChecksums) > 0:
		validation.Status = StatusMissingChecksums
	default:
		validation.Status = StatusReady
	}

	return validation
}

// extractAvailableArtifacts keeps the stored names that belong to the
// revision, skipping sidecars and provenance statements.
func (s *ReleaseService) extractAvailableArtifacts(env entities.Environment, storedNames []string) []string {
	binaryPrefix := fmt.Sprintf("%s-%s-", env.Crate.Binary, env.ShortRevision())
	manifest := env.ManifestArtifactName()

	var names []string
	for _, name := range storedNames {
		if IsSidecar(name) {
			continue
		}
		if name == manifest || strings.HasPrefix(name, binaryPrefix) {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return slices.Compact(names)
}

// IsSidecar reports whether a stored name is a checksum, signature or
// provenance file rather than a release artifact.
func IsSidecar(name string) bool {
	return strings.HasSuffix(name, ChecksumSuffix) ||
		strings.HasSuffix(name, SignatureSuffix) ||
		strings.HasSuffix(name, ".intoto.json")
}

// difference returns the elements of a missing from b
func difference(a, b []string) []string {
	var out []string
	for _, x := range a {
		if !slices.Contains(b, x) {
			out = append(out, x)
		}
	}
	return out
}

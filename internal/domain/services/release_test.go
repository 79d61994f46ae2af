package services

import (
	"strings"
	"testing"

	"github.com/ochairo/distill/internal/domain/entities"
)

func releaseEnv() entities.Environment {
	return entities.Environment{
		Crate:    entities.CrateInfo{Name: "piconfig2uboot", Binary: "piconfig2uboot"},
		Revision: "abc1234def",
	}
}

func withSidecars(names ...string) []string {
	var out []string
	for _, n := range names {
		out = append(out, n, n+ChecksumSuffix)
	}
	return out
}

func TestExpectedArtifacts(t *testing.T) {
	env := releaseEnv()
	instances := entities.DefaultInstances(entities.DeclaredTargets())

	got := NewReleaseService().ExpectedArtifacts(env, instances)

	want := []string{
		"piconfig2uboot-abc1234-arm-unknown-linux-musleabihf-static",
		"piconfig2uboot-abc1234-x86_64-unknown-linux-gnu-dynamic",
		"piconfig2uboot-abc1234-armv7-unknown-linux-gnueabihf-dynamic",
		"THIRD_PARTY_LICENSES-abc1234.md",
	}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("ExpectedArtifacts() = %v, want %v", got, want)
	}
}

func TestValidateRelease(t *testing.T) {
	env := releaseEnv()
	instances := entities.DefaultInstances(entities.DeclaredTargets())
	all := NewReleaseService().ExpectedArtifacts(env, instances)

	tests := []struct {
		name            string
		stored          []string
		expectedStatus  ReleaseStatus
		expectedReady   bool
		expectedMissing int
	}{
		{
			name:           "all artifacts present - ready",
			stored:         append(withSidecars(all...), "provenance-abc1234-static-arm.intoto.json", all[0]+SignatureSuffix),
			expectedStatus: StatusReady,
			expectedReady:  true,
		},
		{
			name:            "no artifacts - error",
			stored:          nil,
			expectedStatus:  StatusNoArtifacts,
			expectedMissing: 4,
		},
		{
			name:            "missing manifest - error",
			stored:          withSidecars(all[:3]...),
			expectedStatus:  StatusArtifactMismatch,
			expectedMissing: 1,
		},
		{
			name:            "other revision ignored",
			stored:          append(withSidecars(all[:3]...), "piconfig2uboot-fff0000-x86_64-unknown-linux-gnu-dynamic"),
			expectedStatus:  StatusArtifactMismatch,
			expectedMissing: 1,
		},
		{
			name:           "missing checksum - error",
			stored:         append(withSidecars(all[:3]...), all[3]),
			expectedStatus: StatusMissingChecksums,
		},
	}

	service := NewReleaseService()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := service.ValidateRelease(env, instances, tt.stored)

			if result.Status != tt.expectedStatus {
				t.Errorf("ValidateRelease() status = %v, want %v (%s)", result.Status, tt.expectedStatus, result.ErrorMessage())
			}
			if result.IsReady() != tt.expectedReady {
				t.Errorf("ValidateRelease() IsReady = %v, want %v", result.IsReady(), tt.expectedReady)
			}
			if len(result.MissingArtifacts) != tt.expectedMissing {
				t.Errorf("ValidateRelease() missing = %v, want %d", result.MissingArtifacts, tt.expectedMissing)
			}
		})
	}
}

func TestValidateReleaseUnexpected(t *testing.T) {
	env := releaseEnv()
	instances := []entities.PipelineInstance{{
		Name:    entities.InstanceLicenseOnly,
		Stages:  []entities.StageName{entities.StageAggregate, entities.StagePublish},
		Targets: nil,
	}}
	stored := withSidecars(env.ManifestArtifactName(), "piconfig2uboot-abc1234-x86_64-unknown-linux-gnu-dynamic")

	result := NewReleaseService().ValidateRelease(env, instances, stored)
	if result.Status != StatusArtifactMismatch {
		t.Errorf("ValidateRelease() status = %v, want %v", result.Status, StatusArtifactMismatch)
	}
	if len(result.UnexpectedArtifacts) != 1 {
		t.Errorf("UnexpectedArtifacts = %v, want 1", result.UnexpectedArtifacts)
	}
	if !strings.Contains(result.ErrorMessage(), "Unexpected") {
		t.Errorf("ErrorMessage() = %q", result.ErrorMessage())
	}
}

func TestIsSidecar(t *testing.T) {
	tests := map[string]bool{
		"bin-abc1234-x86_64-unknown-linux-gnu-dynamic":        false,
		"bin-abc1234-x86_64-unknown-linux-gnu-dynamic.sha256": true,
		"bin-abc1234-x86_64-unknown-linux-gnu-dynamic.asc":    true,
		"provenance-abc1234-static-arm.intoto.json":           true,
		"THIRD_PARTY_LICENSES-abc1234.md":                     false,
	}
	for name, want := range tests {
		if got := IsSidecar(name); got != want {
			t.Errorf("IsSidecar(%q) = %v, want %v", name, got, want)
		}
	}
}

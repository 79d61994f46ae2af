package services

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/in-toto/in-toto-golang/in_toto"
	slsa1 "github.com/in-toto/in-toto-golang/in_toto/slsa_provenance/v1"

	"github.com/ochairo/distill/internal/domain/entities"
)

func TestSecurityArtifactsService_GenerateSHA256(t *testing.T) {
	service := NewSecurityArtifactsService()

	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "piconfig2uboot")
	if err := os.WriteFile(testFile, []byte("hello"), 0600); err != nil {
		t.Fatalf("Failed to create test file: %v", err)
	}

	digest, sidecar, err := service.GenerateSHA256(testFile, "piconfig2uboot-abc1234-x86_64-unknown-linux-gnu-dynamic")
	if err != nil {
		t.Fatalf("GenerateSHA256 failed: %v", err)
	}

	const want = "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"
	if digest != want {
		t.Errorf("digest = %s, want %s", digest, want)
	}

	//nolint:gosec // G304: sidecar is test output file
	content, err := os.ReadFile(sidecar)
	if err != nil {
		t.Fatalf("Failed to read checksum file: %v", err)
	}
	if got := string(content); got != want+"  piconfig2uboot-abc1234-x86_64-unknown-linux-gnu-dynamic\n" {
		t.Errorf("sidecar content = %q", got)
	}
}

func TestSecurityArtifactsService_ComputeSHA256MissingFile(t *testing.T) {
	service := NewSecurityArtifactsService()
	if _, err := service.ComputeSHA256(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("ComputeSHA256() expected error for missing file")
	}
}

func TestSecurityArtifactsService_GenerateProvenance(t *testing.T) {
	service := NewSecurityArtifactsService()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	service.now = func() time.Time { return fixed }

	env := entities.Environment{Repository: "https://github.com/example/piconfig2uboot", Revision: "0123456789abcdef"}
	run := entities.NewPipelineRun(entities.InstanceSharedMulti, env.Revision)
	if err := run.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	target := entities.DeclaredTargets()[0]
	artifacts := []entities.Artifact{
		{Name: "bin-0123456-x86_64", Kind: entities.ArtifactBinary, Target: &target, SHA256: "aa"},
		{Name: "THIRD_PARTY_LICENSES-0123456.md", Kind: entities.ArtifactManifest, SHA256: "bb"},
	}

	prov, err := service.GenerateProvenance(run, env, artifacts)
	if err != nil {
		t.Fatalf("GenerateProvenance() error = %v", err)
	}

	if prov.Type != in_toto.StatementInTotoV1 {
		t.Errorf("Type = %s, want %s", prov.Type, in_toto.StatementInTotoV1)
	}
	if prov.PredicateType != slsa1.PredicateSLSAProvenance {
		t.Errorf("PredicateType = %s", prov.PredicateType)
	}
	if len(prov.Subject) != 2 || prov.Subject[0].Digest["sha256"] != "aa" {
		t.Errorf("Subject = %+v", prov.Subject)
	}
	if got := prov.Predicate.RunDetails.BuildMetadata.InvocationID; got != run.ID {
		t.Errorf("InvocationID = %s, want %s", got, run.ID)
	}
	if got := prov.Predicate.BuildDefinition.ExternalParameters.Targets; len(got) != 1 || got[0] != target.Triple {
		t.Errorf("Targets = %v, want [%s]", got, target.Triple)
	}

	data, err := prov.Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("provenance is not valid JSON: %v", err)
	}
	if !strings.Contains(string(data), `"buildType": "`+BuildTypeRelease+`"`) {
		t.Errorf("provenance missing build type:\n%s", data)
	}
}

func TestSecurityArtifactsService_GenerateProvenanceRequiresDigests(t *testing.T) {
	service := NewSecurityArtifactsService()
	run := entities.NewPipelineRun(entities.InstanceLicenseOnly, "abc")

	if _, err := service.GenerateProvenance(run, entities.Environment{}, nil); err == nil {
		t.Error("GenerateProvenance() expected error without artifacts")
	}
	if _, err := service.GenerateProvenance(run, entities.Environment{}, []entities.Artifact{{Name: "x"}}); err == nil {
		t.Error("GenerateProvenance() expected error for artifact without digest")
	}
}

func TestProvenanceName(t *testing.T) {
	env := entities.Environment{Revision: "0123456789"}
	if got := ProvenanceName(env, entities.InstanceStaticARM); got != "provenance-0123456-static-arm.intoto.json" {
		t.Errorf("ProvenanceName() = %s", got)
	}
}

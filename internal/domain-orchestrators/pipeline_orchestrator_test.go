package orchestrators

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces"
	"github.com/ochairo/distill/internal/domain/services"
)

// harness wires every stage to mocks
type harness struct {
	env        entities.Environment
	source     *mockSource
	cargo      *mockCargo
	toolchain  *mockToolchain
	containers *mockContainers
	verifier   *mockVerifier
	fetcher    *mockFetcher
	store      *memoryStore
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return &harness{
		env:        testEnvironment(t),
		source:     &mockSource{},
		cargo:      &mockCargo{binary: "piconfig2uboot", deps: testDependencies(), bundled: testBundle()},
		toolchain:  &mockToolchain{},
		containers: &mockContainers{binary: "piconfig2uboot", installed: "arm-unknown-linux-musleabihf\nx86_64-unknown-linux-gnu\n"},
		verifier:   &mockVerifier{},
		fetcher:    &mockFetcher{text: "Copyright © 2005-2020 Rich Felker, et al.\n\nMIT license"},
		store:      newMemoryStore(),
	}
}

func (h *harness) pipeline() *PipelineOrchestrator {
	logger := &interfaces.NoOpLogger{}
	policy := services.NewPolicyService()
	return NewPipelineOrchestrator(h.source, logger,
		NewProvisionStage(h.toolchain, h.containers, logger),
		NewQualityStage(h.cargo),
		NewAuditStage(h.cargo, policy, nil, logger),
		NewAggregateStage(h.cargo, h.fetcher, services.NewManifestService(policy)),
		NewBuildStage(h.cargo, h.containers, h.verifier, logger),
		NewPublishStage(h.store, services.NewSecurityArtifactsService(), nil, logger),
	)
}

// allTargetsInstance builds every declared target and the manifest
func allTargetsInstance() entities.PipelineInstance {
	return entities.PipelineInstance{
		Name:    "all",
		Stages:  entities.StageOrder,
		Targets: entities.DeclaredTargets(),
	}
}

func stageNames(run *entities.PipelineRun) []entities.StageName {
	var names []entities.StageName
	for _, r := range run.StageResults {
		names = append(names, r.Stage)
	}
	return names
}

func TestPipelineAllTargetsSucceed(t *testing.T) {
	h := newHarness(t)
	run := h.pipeline().Run(context.Background(), h.env, allTargetsInstance())

	if run.Status != entities.RunSucceeded {
		t.Fatalf("Run() status = %s, failed stage %+v", run.Status, run.FailedStage())
	}
	if got := entities.CountKind(run.Artifacts, entities.ArtifactBinary); got != 3 {
		t.Errorf("binaries = %d, want 3", got)
	}
	if got := entities.CountKind(run.Artifacts, entities.ArtifactManifest); got != 1 {
		t.Errorf("manifests = %d, want 1", got)
	}

	wantStages := append([]entities.StageName{entities.StageCheckout}, entities.StageOrder...)
	if diff := cmp.Diff(wantStages, stageNames(run)); diff != "" {
		t.Errorf("stage results mismatch (-want +got):\n%s", diff)
	}

	for _, a := range run.Artifacts {
		if a.SHA256 == "" {
			t.Errorf("artifact %s has no digest", a.Name)
		}
		rc, err := h.store.Get(context.Background(), a.Name)
		if err != nil {
			t.Errorf("artifact %s not retrievable: %v", a.Name, err)
			continue
		}
		//nolint:errcheck // Test cleanup
		rc.Close()
		if _, err := h.store.Get(context.Background(), a.Name+services.ChecksumSuffix); err != nil {
			t.Errorf("checksum of %s not published: %v", a.Name, err)
		}
	}

	names := h.store.names()
	for _, want := range []string{
		"piconfig2uboot-1a2b3c4-x86_64-unknown-linux-gnu-dynamic",
		"piconfig2uboot-1a2b3c4-armv7-unknown-linux-gnueabihf-dynamic",
		"piconfig2uboot-1a2b3c4-arm-unknown-linux-musleabihf-static",
		"THIRD_PARTY_LICENSES-1a2b3c4.md",
		"provenance-1a2b3c4-all.intoto.json",
	} {
		found := false
		for _, n := range names {
			found = found || n == want
		}
		if !found {
			t.Errorf("store is missing %s, have %v", want, names)
		}
	}

	rc, err := h.store.Get(context.Background(), "THIRD_PARTY_LICENSES-1a2b3c4.md")
	if err != nil {
		t.Fatalf("Get(manifest) error = %v", err)
	}
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	manifest := string(data)
	clap := strings.Index(manifest, "## clap 4.5.4")
	strsim := strings.Index(manifest, "## strsim 0.11.1")
	musl := strings.Index(manifest, "## musl 1.2.5")
	if clap < 0 || strsim < clap || musl < strsim {
		t.Errorf("manifest order wrong:\n%s", manifest)
	}
	if !strings.Contains(manifest, "MIT License (clap)") {
		t.Errorf("manifest should pick MIT for clap:\n%s", manifest)
	}
}

func TestPipelineFormatViolationPublishesNothing(t *testing.T) {
	h := newHarness(t)
	h.cargo.fmtErr = errors.New("exit status 1")

	run := h.pipeline().Run(context.Background(), h.env, allTargetsInstance())

	if run.Status != entities.RunFailed {
		t.Fatalf("Run() status = %s, want failed", run.Status)
	}
	failed := run.FailedStage()
	if failed == nil || failed.Stage != entities.StageQuality || failed.ErrorKind != entities.ErrFormat {
		t.Fatalf("FailedStage() = %+v, want quality-gate FormatViolation", failed)
	}
	if !entities.IsKind(run.Err, entities.ErrFormat) {
		t.Errorf("run.Err = %v, want FormatViolation", run.Err)
	}
	if h.cargo.buildCount() != 0 || len(h.containers.runs) != 1 {
		t.Errorf("builder invoked after quality failure: builds=%d container runs=%d", h.cargo.buildCount(), len(h.containers.runs))
	}
	if names := h.store.names(); len(names) != 0 {
		t.Errorf("published %v, want nothing", names)
	}
	if len(run.Artifacts) != 0 {
		t.Errorf("run.Artifacts = %v, want none", run.Artifacts)
	}
	if run.Ran(entities.StageAudit) || run.Ran(entities.StageBuild) {
		t.Errorf("stages after failure ran: %v", stageNames(run))
	}
}

func TestPipelinePartialUploadPublishesNothing(t *testing.T) {
	h := newHarness(t)
	h.store.failOn = "piconfig2uboot-1a2b3c4-armv7-unknown-linux-gnueabihf-dynamic"

	run := h.pipeline().Run(context.Background(), h.env, allTargetsInstance())

	failed := run.FailedStage()
	if failed == nil || failed.Stage != entities.StagePublish || failed.ErrorKind != entities.ErrPublish {
		t.Fatalf("FailedStage() = %+v, want artifact-publisher PublishError", failed)
	}
	if names := h.store.names(); len(names) != 0 {
		t.Errorf("published %v, want nothing", names)
	}
}

func TestPipelinePolicyViolationPublishesNothing(t *testing.T) {
	h := newHarness(t)
	h.cargo.deps = append(h.cargo.deps, entities.DependencyRecord{
		Name: "gpl-crate", Version: "1.0.0", License: "GPL-3.0-only", Source: entities.SourcePackageManager, Registry: cratesIO,
	})

	run := h.pipeline().Run(context.Background(), h.env, allTargetsInstance())

	failed := run.FailedStage()
	if failed == nil || failed.ErrorKind != entities.ErrLicensePolicy {
		t.Fatalf("FailedStage() = %+v, want LicensePolicyViolation", failed)
	}
	if !strings.Contains(failed.Diagnostics, "gpl-crate 1.0.0") {
		t.Errorf("diagnostics = %q, want dependency name and version", failed.Diagnostics)
	}
	if names := h.store.names(); len(names) != 0 {
		t.Errorf("published %v, want nothing", names)
	}
	if h.cargo.buildCount() != 0 {
		t.Error("builder invoked after policy violation")
	}
}

func TestPipelineRuntimeFetchFailure(t *testing.T) {
	h := newHarness(t)
	h.fetcher.err = errors.New("HTTP 404 from https://git.musl-libc.org/cgit/musl/plain/COPYRIGHT")

	inst := entities.DefaultInstances(entities.DeclaredTargets())[2]
	run := h.pipeline().Run(context.Background(), h.env, inst)

	failed := run.FailedStage()
	if failed == nil || failed.Stage != entities.StageAggregate || failed.ErrorKind != entities.ErrManifestAssembly {
		t.Fatalf("FailedStage() = %+v, want license-aggregate ManifestAssemblyError", failed)
	}
	if names := h.store.names(); len(names) != 0 {
		t.Errorf("published %v, want no manifest", names)
	}
}

func TestPipelineCheckoutFailure(t *testing.T) {
	h := newHarness(t)
	h.source.err = errors.New("authentication required")

	run := h.pipeline().Run(context.Background(), h.env, allTargetsInstance())

	failed := run.FailedStage()
	if failed == nil || failed.Stage != entities.StageCheckout || failed.ErrorKind != entities.ErrCheckout {
		t.Fatalf("FailedStage() = %+v, want checkout CheckoutError", failed)
	}
	if len(h.toolchain.calls) != 0 {
		t.Errorf("provisioning ran after checkout failure: %v", h.toolchain.calls)
	}
}

func TestPipelineSkipsDisabledStages(t *testing.T) {
	h := newHarness(t)
	inst := entities.DefaultInstances(entities.DeclaredTargets())[2]

	run := h.pipeline().Run(context.Background(), h.env, inst)
	if run.Status != entities.RunSucceeded {
		t.Fatalf("Run() status = %s, failed stage %+v", run.Status, run.FailedStage())
	}

	want := []entities.StageName{
		entities.StageCheckout,
		entities.StageProvision,
		entities.StageAudit,
		entities.StageAggregate,
		entities.StagePublish,
	}
	if diff := cmp.Diff(want, stageNames(run)); diff != "" {
		t.Errorf("stage results mismatch (-want +got):\n%s", diff)
	}
	if h.cargo.called("fmt") || h.cargo.called("test") {
		t.Error("quality gate ran for license-only instance")
	}
	if run.Artifacts[0].Kind != entities.ArtifactManifest || len(run.Artifacts) != 1 {
		t.Errorf("run.Artifacts = %+v, want the manifest only", run.Artifacts)
	}
}

func TestPipelineMissingStageImplementation(t *testing.T) {
	h := newHarness(t)
	o := NewPipelineOrchestrator(h.source, nil, NewQualityStage(h.cargo))

	run := o.Run(context.Background(), h.env, allTargetsInstance())
	failed := run.FailedStage()
	if failed == nil || failed.Stage != entities.StageProvision || failed.ErrorKind != entities.ErrProvisioning {
		t.Errorf("FailedStage() = %+v, want provision ProvisioningError", failed)
	}
}

func TestPipelineUnclassifiedStageError(t *testing.T) {
	h := newHarness(t)
	failing := stageFunc{name: entities.StageProvision, fn: func(context.Context, *RunState) (string, error) {
		return "", errors.New("disk full")
	}}
	o := NewPipelineOrchestrator(h.source, nil, failing)

	run := o.Run(context.Background(), h.env, entities.PipelineInstance{
		Name:   "provision-only",
		Stages: []entities.StageName{entities.StageProvision},
	})
	failed := run.FailedStage()
	if failed == nil || failed.ErrorKind != entities.ErrProvisioning || failed.Diagnostics != "disk full" {
		t.Errorf("FailedStage() = %+v, want ProvisioningError with diagnostics", failed)
	}
}

package orchestrators

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
	"github.com/ochairo/distill/internal/domain/services"
)

// PublishStage persists every artifact of a successful run in the store,
// each with a checksum sidecar, an optional detached signature and one
// provenance statement for the run.
type PublishStage struct {
	store    gateways.ArtifactStore
	security *services.SecurityArtifactsService
	signer   gateways.Signer
	logger   interfaces.Logger
}

// NewPublishStage creates the artifact publisher. signer may be nil.
func NewPublishStage(store gateways.ArtifactStore, security *services.SecurityArtifactsService, signer gateways.Signer, logger interfaces.Logger) *PublishStage {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &PublishStage{store: store, security: security, signer: signer, logger: logger}
}

// Name implements Stage
func (s *PublishStage) Name() entities.StageName {
	return entities.StagePublish
}

func publishError(artifact string, err error) error {
	return entities.NewStageError(entities.ErrPublish, entities.StagePublish,
		fmt.Sprintf("artifact %s: %v", artifact, err),
		fmt.Errorf("failed to publish %s: %w", artifact, err))
}

// validateArtifacts checks names are unique and the run produced exactly
// one binary per target plus the manifest when licensing is enabled.
func validateArtifacts(inst entities.PipelineInstance, artifacts []entities.Artifact) error {
	seen := make(map[string]bool, len(artifacts))
	for _, a := range artifacts {
		if seen[a.Name] {
			return fmt.Errorf("duplicate artifact name %s", a.Name)
		}
		seen[a.Name] = true
	}

	wantBinaries := 0
	if inst.Enabled(entities.StageBuild) {
		wantBinaries = len(inst.Targets)
	}
	if got := entities.CountKind(artifacts, entities.ArtifactBinary); got != wantBinaries {
		return fmt.Errorf("have %d binaries, want %d", got, wantBinaries)
	}
	wantManifests := 0
	if inst.IncludesLicensing() {
		wantManifests = 1
	}
	if got := entities.CountKind(artifacts, entities.ArtifactManifest); got != wantManifests {
		return fmt.Errorf("have %d manifests, want %d", got, wantManifests)
	}
	return nil
}

// Execute implements Stage. Checksums are computed for every artifact
// before the first upload. When any upload fails every object this run
// already put is deleted again, so a store never holds a partial release.
func (s *PublishStage) Execute(ctx context.Context, state *RunState) (string, error) {
	if err := validateArtifacts(state.Instance, state.Artifacts); err != nil {
		return "", entities.NewStageError(entities.ErrPublish, entities.StagePublish, err.Error(), err)
	}

	artifacts := make([]entities.Artifact, len(state.Artifacts))
	sidecars := make([]string, len(state.Artifacts))
	for i, a := range state.Artifacts {
		digest, sidecar, err := s.security.GenerateSHA256(a.Path, a.Name)
		if err != nil {
			return "", publishError(a.Name, err)
		}
		a.SHA256 = digest
		artifacts[i] = a
		sidecars[i] = sidecar
	}

	var published []string
	fail := func(name string, err error) (string, error) {
		s.rollback(ctx, state.Instance.Name, append(published, name))
		return "", publishError(name, err)
	}

	for i, a := range artifacts {
		if err := s.putFile(ctx, a.Name, a.Path); err != nil {
			return fail(a.Name, err)
		}
		published = append(published, a.Name)
		if err := s.putFile(ctx, a.Name+services.ChecksumSuffix, sidecars[i]); err != nil {
			return fail(a.Name+services.ChecksumSuffix, err)
		}
		published = append(published, a.Name+services.ChecksumSuffix)
		if s.signer != nil {
			if err := s.putSignature(ctx, a); err != nil {
				return fail(a.Name+services.SignatureSuffix, err)
			}
			published = append(published, a.Name+services.SignatureSuffix)
		}
		s.logger.Info("artifact published",
			interfaces.F("instance", state.Instance.Name),
			interfaces.F("name", a.Name),
			interfaces.F("sha256", a.SHA256))
	}

	name := services.ProvenanceName(state.Env, state.Instance.Name)
	provenance, err := s.security.GenerateProvenance(state.Run, state.Env, artifacts)
	if err != nil {
		return fail(name, err)
	}
	data, err := provenance.Marshal()
	if err != nil {
		return fail(name, err)
	}
	if err := s.store.Put(ctx, name, bytes.NewReader(data)); err != nil {
		return fail(name, err)
	}
	published = append(published, name)

	state.Artifacts = artifacts
	return fmt.Sprintf("%d artifacts published (%d uploads)", len(artifacts), len(published)), nil
}

// rollback deletes names newest first. It outlives cancellation of ctx
// so an interrupted publish is still cleaned up.
func (s *PublishStage) rollback(ctx context.Context, instance string, names []string) {
	ctx = context.WithoutCancel(ctx)
	for i := len(names) - 1; i >= 0; i-- {
		if err := s.store.Delete(ctx, names[i]); err != nil {
			s.logger.Error("failed to roll back artifact",
				interfaces.F("instance", instance),
				interfaces.F("name", names[i]),
				interfaces.F("error", err))
		}
	}
	s.logger.Warn("publish rolled back",
		interfaces.F("instance", instance),
		interfaces.F("deleted", len(names)))
}

func (s *PublishStage) putFile(ctx context.Context, name, path string) error {
	//nolint:gosec // G304: path is an artifact of this run
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	//nolint:errcheck // Defer close
	defer f.Close()
	return s.store.Put(ctx, name, f)
}

func (s *PublishStage) putSignature(ctx context.Context, a entities.Artifact) error {
	//nolint:gosec // G304: path is an artifact of this run
	f, err := os.Open(a.Path)
	if err != nil {
		return err
	}
	//nolint:errcheck // Defer close
	defer f.Close()

	sig, err := s.signer.SignDetached(f)
	if err != nil {
		return fmt.Errorf("failed to sign: %w", err)
	}
	return s.store.Put(ctx, a.Name+services.SignatureSuffix, bytes.NewReader(sig))
}

package orchestrators

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
	"github.com/ochairo/distill/internal/domain/interfaces/services"
)

// AggregateStage assembles the third-party license manifest from the
// bundled license texts and the runtime addendum fetched upstream.
type AggregateStage struct {
	cargo     gateways.CargoGateway
	fetcher   gateways.TextFetcher
	manifests services.ManifestService
}

// NewAggregateStage creates the license aggregator
func NewAggregateStage(cargo gateways.CargoGateway, fetcher gateways.TextFetcher, manifests services.ManifestService) *AggregateStage {
	return &AggregateStage{cargo: cargo, fetcher: fetcher, manifests: manifests}
}

// Name implements Stage
func (s *AggregateStage) Name() entities.StageName {
	return entities.StageAggregate
}

func manifestError(err error) error {
	return entities.NewStageError(entities.ErrManifestAssembly, entities.StageAggregate, err.Error(), err)
}

// Execute implements Stage. No manifest is written unless every entry,
// including the runtime addendum, has its license text.
func (s *AggregateStage) Execute(ctx context.Context, state *RunState) (string, error) {
	env := state.Env

	deps := state.Dependencies
	if deps == nil {
		var err error
		if deps, err = s.cargo.Dependencies(ctx, state.SourceDir); err != nil {
			return "", manifestError(fmt.Errorf("failed to resolve dependencies: %w", err))
		}
		state.Dependencies = deps
	}

	bundled, err := s.cargo.BundleLicenses(ctx, state.SourceDir)
	if err != nil {
		return "", manifestError(fmt.Errorf("failed to bundle licenses: %w", err))
	}

	runtimeText, err := s.fetcher.FetchText(ctx, env.Runtime.URL)
	if err != nil {
		return "", manifestError(fmt.Errorf("failed to fetch %s license: %w", env.Runtime.Name, err))
	}

	manifest, err := s.manifests.Assemble(env.Policy, deps, bundled, env.Runtime, runtimeText)
	if err != nil {
		return "", manifestError(fmt.Errorf("failed to assemble manifest: %w", err))
	}

	name := env.ManifestArtifactName()
	path := filepath.Join(state.OutputDir(), name)
	if err := os.MkdirAll(state.OutputDir(), 0750); err != nil {
		return "", manifestError(fmt.Errorf("failed to create output directory: %w", err))
	}
	if err := os.WriteFile(path, s.manifests.Render(manifest), 0600); err != nil {
		return "", manifestError(fmt.Errorf("failed to write manifest: %w", err))
	}

	state.Artifacts = append(state.Artifacts, entities.Artifact{
		Name: name,
		Path: path,
		Kind: entities.ArtifactManifest,
	})
	return fmt.Sprintf("%d manifest entries", len(manifest.Entries)), nil
}

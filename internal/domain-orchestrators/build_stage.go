package orchestrators

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// ContainerSourceDir is where the checkout is mounted in build containers
const ContainerSourceDir = "/src"

// BuildStage compiles one release binary per target. Targets build
// concurrently and a failing target never cancels the others.
type BuildStage struct {
	cargo      gateways.CargoGateway
	containers gateways.ContainerGateway
	verifier   StaticVerifier
	logger     interfaces.Logger
}

// NewBuildStage creates the multi-target builder
func NewBuildStage(cargo gateways.CargoGateway, containers gateways.ContainerGateway, verifier StaticVerifier, logger interfaces.Logger) *BuildStage {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &BuildStage{cargo: cargo, containers: containers, verifier: verifier, logger: logger}
}

// Name implements Stage
func (s *BuildStage) Name() entities.StageName {
	return entities.StageBuild
}

type targetFailure struct {
	target      string
	diagnostics string
}

// Execute implements Stage
func (s *BuildStage) Execute(ctx context.Context, state *RunState) (string, error) {
	targets := state.Instance.Targets
	artifacts := make([]*entities.Artifact, len(targets))

	var (
		mu       sync.Mutex
		failures = make(map[int]targetFailure)
	)
	var g errgroup.Group
	for i, t := range targets {
		g.Go(func() error {
			artifact, diagnostics, err := s.buildTarget(ctx, state, t)
			if err != nil {
				s.logger.Error("target failed",
					interfaces.F("instance", state.Instance.Name),
					interfaces.F("target", t.Name),
					interfaces.F("error", err))
				mu.Lock()
				failures[i] = targetFailure{target: t.Name, diagnostics: diagnostics}
				mu.Unlock()
				return nil
			}
			artifacts[i] = artifact
			return nil
		})
	}
	//nolint:errcheck // Per-target failures are collected above
	g.Wait()

	if len(failures) > 0 {
		var names, sections []string
		for i := range targets {
			f, ok := failures[i]
			if !ok {
				continue
			}
			names = append(names, f.target)
			sections = append(sections, fmt.Sprintf("%s:\n%s", f.target, f.diagnostics))
		}
		return "", entities.NewStageError(entities.ErrCompilation, entities.StageBuild,
			strings.Join(sections, "\n\n"),
			fmt.Errorf("failed targets: %s", strings.Join(names, ", ")))
	}

	for _, a := range artifacts {
		state.Artifacts = append(state.Artifacts, *a)
	}
	return fmt.Sprintf("%d binaries built", len(targets)), nil
}

// buildTarget compiles t and moves the binary into the output directory
// under its published name.
func (s *BuildStage) buildTarget(ctx context.Context, state *RunState, t entities.BuildTarget) (*entities.Artifact, string, error) {
	env := state.Env

	var (
		out *gateways.CommandOutput
		err error
	)
	if t.Containerized() {
		if s.containers == nil {
			return nil, "no container runtime configured", fmt.Errorf("target %s needs a container runtime", t.Name)
		}
		out, err = s.containers.Run(ctx, gateways.ContainerRunSpec{
			Image:   t.Container,
			Command: s.cargo.BuildCommand(t),
			Mounts:  map[string]string{state.SourceDir: ContainerSourceDir},
			Workdir: ContainerSourceDir,
			Env:     t.BuildEnv(),
		})
	} else {
		out, err = s.cargo.Build(ctx, state.SourceDir, t)
	}
	if err != nil {
		return nil, commandOutputOrError(out, err), fmt.Errorf("cargo build failed: %w", err)
	}

	built := filepath.Join(state.SourceDir, "target", t.Triple, "release", env.Crate.Binary)
	name := env.BinaryArtifactName(t)
	path := filepath.Join(state.OutputDir(), name)
	if err := copyFile(built, path, 0755); err != nil {
		return nil, err.Error(), err
	}

	if t.Static() {
		if _, err := s.verifier.VerifyStatic(path); err != nil {
			return nil, err.Error(), fmt.Errorf("static linkage check failed: %w", err)
		}
	}

	target := t
	return &entities.Artifact{
		Name:   name,
		Path:   path,
		Kind:   entities.ArtifactBinary,
		Target: &target,
	}, "", nil
}

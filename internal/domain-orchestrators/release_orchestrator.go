package orchestrators

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// InstanceRunner runs a single pipeline instance to completion
type InstanceRunner interface {
	Run(ctx context.Context, env entities.Environment, inst entities.PipelineInstance) *entities.PipelineRun
}

// PipelineSet routes each instance to the pipeline built for it
type PipelineSet map[string]InstanceRunner

// Run implements InstanceRunner. An instance without a pipeline fails at
// provisioning.
func (p PipelineSet) Run(ctx context.Context, env entities.Environment, inst entities.PipelineInstance) *entities.PipelineRun {
	if runner, ok := p[inst.Name]; ok {
		return runner.Run(ctx, env, inst)
	}
	run := entities.NewPipelineRun(inst.Name, env.Revision)
	//nolint:errcheck // A new run is always pending
	run.Start()
	err := fmt.Errorf("no pipeline configured for instance %s", inst.Name)
	result := entities.StageResult{
		Stage:       entities.StageProvision,
		Outcome:     entities.OutcomeFail,
		ErrorKind:   entities.ErrProvisioning,
		Diagnostics: err.Error(),
	}
	//nolint:errcheck // A running run accepts its first result
	run.Record(result, entities.NewStageError(entities.ErrProvisioning, entities.StageProvision, err.Error(), err))
	return run
}

// ReleaseOrchestrator fans the pipeline instances out over one immutable
// revision and joins on their runs.
type ReleaseOrchestrator struct {
	source   gateways.SourceGateway
	pipeline InstanceRunner
	logger   interfaces.Logger
}

// NewReleaseOrchestrator creates a release orchestrator
func NewReleaseOrchestrator(source gateways.SourceGateway, pipeline InstanceRunner, logger interfaces.Logger) *ReleaseOrchestrator {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &ReleaseOrchestrator{source: source, pipeline: pipeline, logger: logger}
}

// Release resolves the revision once, then runs every instance concurrently.
// A failing instance never affects the others; its failure is in its run.
// Runs are returned in instance order.
func (o *ReleaseOrchestrator) Release(ctx context.Context, env entities.Environment, instances []entities.PipelineInstance) ([]*entities.PipelineRun, error) {
	if len(instances) == 0 {
		return nil, fmt.Errorf("no pipeline instances configured")
	}

	revision, err := o.source.Resolve(ctx, env.Repository, env.Revision)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve revision %q: %w", env.Revision, err)
	}
	env.Revision = revision
	o.logger.Info("releasing revision",
		interfaces.F("revision", revision),
		interfaces.F("instances", len(instances)))

	runs := make([]*entities.PipelineRun, len(instances))
	// No shared context cancellation: siblings keep running on failure
	var g errgroup.Group
	for i, inst := range instances {
		g.Go(func() error {
			runs[i] = o.pipeline.Run(ctx, env, inst)
			return nil
		})
	}
	//nolint:errcheck // Instances report failures through their runs
	g.Wait()

	return runs, nil
}

// Failed returns the runs that did not succeed
func Failed(runs []*entities.PipelineRun) []*entities.PipelineRun {
	var failed []*entities.PipelineRun
	for _, r := range runs {
		if r.Status != entities.RunSucceeded {
			failed = append(failed, r)
		}
	}
	return failed
}

package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// stageFailureKinds classifies errors a stage returns without a StageError
var stageFailureKinds = map[entities.StageName]entities.ErrorKind{
	entities.StageCheckout:  entities.ErrCheckout,
	entities.StageProvision: entities.ErrProvisioning,
	entities.StageQuality:   entities.ErrTest,
	entities.StageAudit:     entities.ErrLicensePolicy,
	entities.StageAggregate: entities.ErrManifestAssembly,
	entities.StageBuild:     entities.ErrCompilation,
	entities.StagePublish:   entities.ErrPublish,
}

// PipelineOrchestrator runs one pipeline instance: a private checkout
// followed by the instance's enabled stages in fixed order. The first
// failing stage ends the run.
type PipelineOrchestrator struct {
	source gateways.SourceGateway
	stages map[entities.StageName]Stage
	logger interfaces.Logger
}

// NewPipelineOrchestrator creates an orchestrator over the given stages
func NewPipelineOrchestrator(source gateways.SourceGateway, logger interfaces.Logger, stages ...Stage) *PipelineOrchestrator {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	byName := make(map[entities.StageName]Stage, len(stages))
	for _, s := range stages {
		byName[s.Name()] = s
	}
	return &PipelineOrchestrator{source: source, stages: byName, logger: logger}
}

// Run executes inst against env and returns its terminal run. Failures are
// recorded in the run, never returned.
func (o *PipelineOrchestrator) Run(ctx context.Context, env entities.Environment, inst entities.PipelineInstance) *entities.PipelineRun {
	run := entities.NewPipelineRun(inst.Name, env.Revision)
	//nolint:errcheck // A new run is always pending
	run.Start()
	log := func(msg string, fields ...interfaces.Field) {
		o.logger.Info(msg, append([]interfaces.Field{interfaces.F("instance", inst.Name), interfaces.F("run", run.ID)}, fields...)...)
	}
	log("starting pipeline", interfaces.F("revision", env.Revision))

	state := &RunState{Env: env, Instance: inst, Run: run}

	// Checkout is not configurable and always runs first
	checkout := stageFunc{name: entities.StageCheckout, fn: func(ctx context.Context, state *RunState) (string, error) {
		dir := state.Env.CheckoutDir(inst.Name)
		hash, err := o.source.Checkout(ctx, state.Env.Repository, state.Env.Revision, dir)
		if err != nil {
			return "", entities.NewStageError(entities.ErrCheckout, entities.StageCheckout, err.Error(), err)
		}
		state.SourceDir = dir
		state.Env.Revision = hash
		run.Revision = hash
		return "checked out " + hash, nil
	}}
	if !o.execute(ctx, run, state, checkout) {
		return run
	}

	for _, name := range entities.StageOrder {
		if !inst.Enabled(name) {
			continue
		}
		stage, ok := o.stages[name]
		if !ok {
			err := fmt.Errorf("no implementation for stage %s", name)
			o.fail(run, entities.StageResult{Stage: name}, entities.NewStageError(stageFailureKinds[name], name, err.Error(), err))
			return run
		}
		if !o.execute(ctx, run, state, stage) {
			return run
		}
	}

	if err := run.Succeed(state.Artifacts); err != nil {
		o.logger.Error("failed to finish run", interfaces.F("instance", inst.Name), interfaces.F("error", err))
		return run
	}
	log("pipeline succeeded",
		interfaces.F("binaries", entities.CountKind(run.Artifacts, entities.ArtifactBinary)),
		interfaces.F("manifests", entities.CountKind(run.Artifacts, entities.ArtifactManifest)),
		interfaces.F("duration", run.Duration()))
	return run
}

// execute runs one stage and records its result. It reports whether the
// run may continue.
func (o *PipelineOrchestrator) execute(ctx context.Context, run *entities.PipelineRun, state *RunState, stage Stage) bool {
	name := stage.Name()
	o.logger.Debug("stage started", interfaces.F("instance", run.Instance), interfaces.F("stage", name))

	start := time.Now()
	summary, err := stage.Execute(ctx, state)
	result := entities.StageResult{Stage: name, Duration: time.Since(start)}

	if err != nil {
		var stageErr *entities.StageError
		if !errors.As(err, &stageErr) {
			stageErr = entities.NewStageError(stageFailureKinds[name], name, err.Error(), err)
		}
		o.fail(run, result, stageErr)
		return false
	}

	result.Outcome = entities.OutcomePass
	result.Diagnostics = summary
	if err := run.Record(result, nil); err != nil {
		o.logger.Error("failed to record stage", interfaces.F("stage", name), interfaces.F("error", err))
		return false
	}
	o.logger.Info("stage passed",
		interfaces.F("instance", run.Instance),
		interfaces.F("stage", name),
		interfaces.F("duration", result.Duration),
		interfaces.F("summary", summary))
	return true
}

func (o *PipelineOrchestrator) fail(run *entities.PipelineRun, result entities.StageResult, stageErr *entities.StageError) {
	result.Outcome = entities.OutcomeFail
	result.ErrorKind = stageErr.Kind
	result.Diagnostics = stageErr.Diagnostics
	if err := run.Record(result, stageErr); err != nil {
		o.logger.Error("failed to record stage", interfaces.F("stage", result.Stage), interfaces.F("error", err))
		return
	}
	o.logger.Error("stage failed",
		interfaces.F("instance", run.Instance),
		interfaces.F("stage", result.Stage),
		interfaces.F("kind", stageErr.Kind),
		interfaces.F("error", stageErr.Err))
}

// stageFunc adapts a function to the Stage interface
type stageFunc struct {
	name entities.StageName
	fn   func(ctx context.Context, state *RunState) (string, error)
}

func (s stageFunc) Name() entities.StageName { return s.name }

func (s stageFunc) Execute(ctx context.Context, state *RunState) (string, error) {
	return s.fn(ctx, state)
}

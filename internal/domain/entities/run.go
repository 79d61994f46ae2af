package entities

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StageName identifies a pipeline stage
type StageName string

// Pipeline stages in execution order
const (
	StageCheckout  StageName = "checkout"
	StageProvision StageName = "provision"
	StageQuality   StageName = "quality-gate"
	StageAudit     StageName = "license-audit"
	StageAggregate StageName = "license-aggregate"
	StageBuild     StageName = "build"
	StagePublish   StageName = "publish"
)

// StageOrder is the fixed order stages run in. Checkout always runs first and
// is not configurable.
var StageOrder = []StageName{
	StageProvision,
	StageQuality,
	StageAudit,
	StageAggregate,
	StageBuild,
	StagePublish,
}

// RunStatus is the lifecycle state of a pipeline run
type RunStatus string

// Run statuses
const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// Outcome is the pass/fail result of a stage
type Outcome string

// Stage outcomes
const (
	OutcomePass Outcome = "pass"
	OutcomeFail Outcome = "fail"
)

// ErrRunTerminal is returned when mutating a run that already finished
var ErrRunTerminal = errors.New("pipeline run is terminal")

// StageResult records the outcome of one stage. It is never modified after
// being appended to a run.
type StageResult struct {
	Stage       StageName     `json:"stage"`
	Outcome     Outcome       `json:"outcome"`
	Diagnostics string        `json:"diagnostics,omitempty"`
	Duration    time.Duration `json:"duration"`
	ErrorKind   ErrorKind     `json:"error_kind,omitempty"`
}

// PipelineRun is one execution of a pipeline instance
type PipelineRun struct {
	ID           string        `json:"id"`
	Instance     string        `json:"instance"`
	Revision     string        `json:"revision"`
	StageResults []StageResult `json:"stage_results"`
	Status       RunStatus     `json:"status"`
	Artifacts    []Artifact    `json:"artifacts,omitempty"`
	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Err          error         `json:"-"`
}

// NewPipelineRun creates a pending run for an instance and source revision
func NewPipelineRun(instance, revision string) *PipelineRun {
	return &PipelineRun{
		ID:       uuid.NewString(),
		Instance: instance,
		Revision: revision,
		Status:   RunPending,
	}
}

// Start moves a pending run to running
func (r *PipelineRun) Start() error {
	if r.Status != RunPending {
		return fmt.Errorf("cannot start run %s in status %s", r.ID, r.Status)
	}
	r.Status = RunRunning
	r.StartedAt = time.Now()
	return nil
}

// Terminal reports whether the run reached succeeded or failed
func (r *PipelineRun) Terminal() bool {
	return r.Status == RunSucceeded || r.Status == RunFailed
}

// Record appends a stage result. A failing result makes the run terminal.
func (r *PipelineRun) Record(result StageResult, err error) error {
	if r.Terminal() {
		return ErrRunTerminal
	}
	if r.Status != RunRunning {
		return fmt.Errorf("cannot record stage %s on run in status %s", result.Stage, r.Status)
	}
	r.StageResults = append(r.StageResults, result)
	if result.Outcome == OutcomeFail {
		r.Status = RunFailed
		r.Err = err
		r.FinishedAt = time.Now()
	}
	return nil
}

// Succeed marks the run succeeded and hands it the published artifacts
func (r *PipelineRun) Succeed(artifacts []Artifact) error {
	if r.Terminal() {
		return ErrRunTerminal
	}
	if r.Status != RunRunning {
		return fmt.Errorf("cannot finish run %s in status %s", r.ID, r.Status)
	}
	r.Status = RunSucceeded
	r.Artifacts = artifacts
	r.FinishedAt = time.Now()
	return nil
}

// FailedStage returns the failing stage result, or nil
func (r *PipelineRun) FailedStage() *StageResult {
	for i := range r.StageResults {
		if r.StageResults[i].Outcome == OutcomeFail {
			return &r.StageResults[i]
		}
	}
	return nil
}

// Ran reports whether the given stage produced a result
func (r *PipelineRun) Ran(stage StageName) bool {
	for _, res := range r.StageResults {
		if res.Stage == stage {
			return true
		}
	}
	return false
}

// Duration returns the wall time of the run
func (r *PipelineRun) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

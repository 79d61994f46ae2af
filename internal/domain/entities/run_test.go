package entities

import (
	"errors"
	"testing"
)

func TestPipelineRunLifecycle(t *testing.T) {
	run := NewPipelineRun(InstanceStaticARM, "abc")
	if run.Status != RunPending {
		t.Fatalf("NewPipelineRun() status = %s, want %s", run.Status, RunPending)
	}
	if run.ID == "" {
		t.Error("NewPipelineRun() ID is empty")
	}

	if err := run.Record(StageResult{Stage: StageProvision, Outcome: OutcomePass}, nil); err == nil {
		t.Error("Record() on pending run should fail")
	}

	if err := run.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := run.Start(); err == nil {
		t.Error("Start() twice should fail")
	}

	if err := run.Record(StageResult{Stage: StageProvision, Outcome: OutcomePass}, nil); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if err := run.Succeed([]Artifact{{Name: "bin", Kind: ArtifactBinary}}); err != nil {
		t.Fatalf("Succeed() error = %v", err)
	}

	if run.Status != RunSucceeded || len(run.Artifacts) != 1 {
		t.Errorf("run = %s with %d artifacts, want succeeded with 1", run.Status, len(run.Artifacts))
	}
	if err := run.Record(StageResult{Stage: StageBuild, Outcome: OutcomePass}, nil); !errors.Is(err, ErrRunTerminal) {
		t.Errorf("Record() after success = %v, want ErrRunTerminal", err)
	}
}

func TestPipelineRunFailureIsTerminal(t *testing.T) {
	run := NewPipelineRun(InstanceSharedMulti, "abc")
	if err := run.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	cause := NewStageError(ErrFormat, StageQuality, "diff", nil)
	if err := run.Record(StageResult{Stage: StageQuality, Outcome: OutcomeFail, ErrorKind: ErrFormat}, cause); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	if run.Status != RunFailed {
		t.Errorf("Status = %s, want %s", run.Status, RunFailed)
	}
	if !IsKind(run.Err, ErrFormat) {
		t.Errorf("Err = %v, want FormatViolation", run.Err)
	}
	if failed := run.FailedStage(); failed == nil || failed.Stage != StageQuality {
		t.Errorf("FailedStage() = %v, want %s", failed, StageQuality)
	}
	if !run.Ran(StageQuality) || run.Ran(StageBuild) {
		t.Error("Ran() mismatch")
	}
	if err := run.Succeed(nil); !errors.Is(err, ErrRunTerminal) {
		t.Errorf("Succeed() after failure = %v, want ErrRunTerminal", err)
	}
	if run.Duration() < 0 {
		t.Errorf("Duration() = %v", run.Duration())
	}
}

func TestStageError(t *testing.T) {
	inner := errors.New("exit status 101")
	err := NewStageError(ErrCompilation, StageBuild, "error[E0308]", inner)

	if got := err.Error(); got != "CompilationError in stage build: exit status 101" {
		t.Errorf("Error() = %q", got)
	}
	if !errors.Is(err, inner) {
		t.Error("errors.Is() should unwrap to the cause")
	}
	if IsKind(inner, ErrCompilation) {
		t.Error("IsKind() on plain error should be false")
	}
	if got := NewStageError(ErrPublish, StagePublish, "", nil).Error(); got != "PublishError in stage publish" {
		t.Errorf("Error() without cause = %q", got)
	}
}

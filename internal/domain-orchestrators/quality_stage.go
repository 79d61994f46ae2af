package orchestrators

import (
	"context"
	"fmt"
	"strings"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// QualityStage runs the format check and the host test suite. Both always
// run so the diagnostics carry both outcomes.
type QualityStage struct {
	cargo gateways.CargoGateway
}

// NewQualityStage creates the quality gate
func NewQualityStage(cargo gateways.CargoGateway) *QualityStage {
	return &QualityStage{cargo: cargo}
}

// Name implements Stage
func (s *QualityStage) Name() entities.StageName {
	return entities.StageQuality
}

// Execute implements Stage. A format violation takes precedence over a test
// failure when both occur.
func (s *QualityStage) Execute(ctx context.Context, state *RunState) (string, error) {
	fmtOut, fmtErr := s.cargo.CheckFormat(ctx, state.SourceDir)
	testOut, testErr := s.cargo.Test(ctx, state.SourceDir)

	section := func(title string, out *gateways.CommandOutput, err error) string {
		return fmt.Sprintf("%s:\n%s", title, commandOutputOrError(out, err))
	}

	switch {
	case fmtErr != nil:
		parts := []string{section("cargo fmt --check", fmtOut, fmtErr)}
		if testErr != nil {
			parts = append(parts, section("cargo test", testOut, testErr))
		}
		return "", entities.NewStageError(entities.ErrFormat, entities.StageQuality,
			strings.Join(parts, "\n\n"), fmt.Errorf("format check failed: %w", fmtErr))
	case testErr != nil:
		return "", entities.NewStageError(entities.ErrTest, entities.StageQuality,
			section("cargo test", testOut, testErr), fmt.Errorf("tests failed: %w", testErr))
	}
	return "format check and tests passed", nil
}

// commandOutputOrError returns the combined output, or err when there is none
func commandOutputOrError(out *gateways.CommandOutput, err error) string {
	if combined := out.Combined(); combined != "" {
		return combined
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

package orchestrators

import (
	"context"
	"fmt"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
	"github.com/ochairo/distill/internal/domain/interfaces/services"
)

// AuditStage evaluates the resolved dependency graph against the license
// policy, the advisory database and, when enabled, the external checker.
// It never looks at build outputs.
type AuditStage struct {
	cargo      gateways.CargoGateway
	policy     services.PolicyService
	advisories gateways.AdvisoryGateway
	logger     interfaces.Logger
}

// NewAuditStage creates the license auditor. advisories may be nil when the
// policy never denies vulnerable dependencies.
func NewAuditStage(cargo gateways.CargoGateway, policy services.PolicyService, advisories gateways.AdvisoryGateway, logger interfaces.Logger) *AuditStage {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &AuditStage{cargo: cargo, policy: policy, advisories: advisories, logger: logger}
}

// Name implements Stage
func (s *AuditStage) Name() entities.StageName {
	return entities.StageAudit
}

func auditError(diagnostics string, err error) error {
	return entities.NewStageError(entities.ErrLicensePolicy, entities.StageAudit, diagnostics, err)
}

// Execute implements Stage
func (s *AuditStage) Execute(ctx context.Context, state *RunState) (string, error) {
	env := state.Env

	deps, err := s.cargo.Dependencies(ctx, state.SourceDir)
	if err != nil {
		return "", auditError("dependency graph: "+err.Error(), fmt.Errorf("failed to resolve dependencies: %w", err))
	}
	state.Dependencies = deps

	report := s.policy.Evaluate(env.Policy, deps)

	if env.Policy.Vulnerability != entities.LevelAllow {
		if s.advisories == nil {
			return "", auditError("advisory lookups are required by the policy", fmt.Errorf("no advisory database configured"))
		}
		var found []entities.Advisory
		for _, dep := range deps {
			advisories, err := s.advisories.QueryAdvisories(ctx, dep)
			if err != nil {
				return "", auditError(fmt.Sprintf("advisory lookup for %s: %v", dep.Key(), err),
					fmt.Errorf("failed to query advisories: %w", err))
			}
			found = append(found, advisories...)
		}
		report.Merge(s.policy.EvaluateAdvisories(env.Policy, found))
	}

	if env.ExternalDeny {
		out, err := s.cargo.Deny(ctx, state.SourceDir, env.PolicyPath)
		if err != nil {
			report.Violations = append(report.Violations, entities.PolicyViolation{
				Dependency: ToolDeny,
				Rule:       entities.RuleExternalChecker,
				Detail:     commandOutputOrError(out, err),
			})
		}
	}

	for _, w := range report.Warnings {
		s.logger.Warn("policy warning",
			interfaces.F("instance", state.Instance.Name),
			interfaces.F("dependency", w.Dependency),
			interfaces.F("version", w.Version),
			interfaces.F("rule", w.Rule),
			interfaces.F("detail", w.Detail))
	}

	if !report.Passed() {
		return "", auditError(report.Diagnostics(), fmt.Errorf("%d policy violations", len(report.Violations)))
	}
	return fmt.Sprintf("%d dependencies audited, %d warnings", len(deps), len(report.Warnings)), nil
}

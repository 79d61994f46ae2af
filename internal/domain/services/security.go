package services

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ochairo/distill/internal/domain/entities"
)

var severityOrder = map[string]int{
	"CRITICAL": 4,
	"HIGH":     3,
	"MEDIUM":   2,
	"MODERATE": 2,
	"LOW":      1,
	"UNKNOWN":  0,
}

// EvaluateAdvisories reports advisories that are not ignored by ID or alias,
// most severe first.
func (s *policyService) EvaluateAdvisories(policy entities.LicensePolicy, advisories []entities.Advisory) *entities.PolicyReport {
	report := &entities.PolicyReport{}
	for _, adv := range sortBySeverity(advisories) {
		if isIgnoredAdvisory(policy, adv) {
			continue
		}
		detail := adv.ID
		if adv.Summary != "" {
			detail = fmt.Sprintf("%s: %s", adv.ID, adv.Summary)
		}
		if adv.Severity != "" {
			detail = fmt.Sprintf("%s [%s]", detail, adv.Severity)
		}
		report.Add(policy.Vulnerability, entities.PolicyViolation{
			Dependency: adv.Dependency,
			Version:    adv.Version,
			Rule:       entities.RuleAdvisory,
			Detail:     detail,
		})
	}
	return report
}

func isIgnoredAdvisory(policy entities.LicensePolicy, adv entities.Advisory) bool {
	if slices.Contains(policy.IgnoreAdvisories, adv.ID) {
		return true
	}
	for _, alias := range adv.Aliases {
		if slices.Contains(policy.IgnoreAdvisories, alias) {
			return true
		}
	}
	return false
}

// sortBySeverity returns a copy ordered by descending severity, stable for
// equal severities.
func sortBySeverity(advisories []entities.Advisory) []entities.Advisory {
	sorted := slices.Clone(advisories)
	slices.SortStableFunc(sorted, func(a, b entities.Advisory) int {
		return severityOrder[strings.ToUpper(b.Severity)] - severityOrder[strings.ToUpper(a.Severity)]
	})
	return sorted
}

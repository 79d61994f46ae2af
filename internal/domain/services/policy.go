// Package services implements domain business logic and use cases.
package services

import (
	"fmt"
	"slices"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces/services"
)

// policyService implements PolicyService with pure business logic
type policyService struct{}

// NewPolicyService creates a new policy service
func NewPolicyService() services.PolicyService {
	return &policyService{}
}

// Evaluate audits every dependency of the graph. All violations are
// collected; the audit never stops at the first finding.
func (s *policyService) Evaluate(policy entities.LicensePolicy, deps []entities.DependencyRecord) *entities.PolicyReport {
	report := &entities.PolicyReport{}
	for _, dep := range deps {
		if dep.Source == entities.SourceSystemRuntime {
			continue
		}
		s.checkLicense(report, policy, dep)
		s.checkBans(report, policy, dep)
		s.checkSource(report, policy, dep)
	}
	s.checkDuplicates(report, policy, deps)
	return report
}

func (s *policyService) checkLicense(report *entities.PolicyReport, policy entities.LicensePolicy, dep entities.DependencyRecord) {
	if strings.TrimSpace(dep.License) == "" {
		report.Add(entities.LevelDeny, violation(dep, entities.RuleLicenseMissing, "no license declared"))
		return
	}

	expr, err := parseLicenseExpr(dep.License)
	if err != nil {
		report.Add(entities.LevelDeny, violation(dep, entities.RuleLicenseNotAllowed, err.Error()))
		return
	}

	allowed := allowedLicenses(policy, dep.Name)
	if expr.satisfied(func(id string) bool { return allowed[id] && !slices.Contains(policy.Deny, id) }) {
		return
	}

	for _, id := range expr.collect(nil) {
		if slices.Contains(policy.Deny, id) {
			report.Add(entities.LevelDeny, violation(dep, entities.RuleLicenseDenied, fmt.Sprintf("%s is denied", id)))
			return
		}
	}
	report.Add(entities.LevelDeny, violation(dep, entities.RuleLicenseNotAllowed, fmt.Sprintf("%q is not in the allow list", dep.License)))
}

func (s *policyService) checkBans(report *entities.PolicyReport, policy entities.LicensePolicy, dep entities.DependencyRecord) {
	for _, ban := range policy.Banned {
		if ban.Name != dep.Name {
			continue
		}
		if ban.Version == "" || matchesRequirement(dep.Version, ban.Version) {
			detail := "crate is banned"
			if ban.Version != "" {
				detail = fmt.Sprintf("versions %s are banned", ban.Version)
			}
			report.Add(entities.LevelDeny, violation(dep, entities.RuleBanned, detail))
			return
		}
	}
}

func (s *policyService) checkDuplicates(report *entities.PolicyReport, policy entities.LicensePolicy, deps []entities.DependencyRecord) {
	versions := make(map[string][]string)
	var order []string
	for _, dep := range deps {
		if dep.Source == entities.SourceSystemRuntime {
			continue
		}
		if _, ok := versions[dep.Name]; !ok {
			order = append(order, dep.Name)
		}
		if !slices.Contains(versions[dep.Name], dep.Version) {
			versions[dep.Name] = append(versions[dep.Name], dep.Version)
		}
	}

	for _, name := range order {
		vs := versions[name]
		if len(vs) < 2 || slices.Contains(policy.MultipleVersionsSkip, name) {
			continue
		}
		report.Add(policy.MultipleVersions, entities.PolicyViolation{
			Dependency: name,
			Version:    strings.Join(vs, ", "),
			Rule:       entities.RuleDuplicateVersion,
			Detail:     fmt.Sprintf("%d versions in the graph", len(vs)),
		})
	}
}

func (s *policyService) checkSource(report *entities.PolicyReport, policy entities.LicensePolicy, dep entities.DependencyRecord) {
	if dep.Registry == "" {
		return
	}

	if strings.HasPrefix(dep.Registry, "git+") {
		repo := normalizeGitSource(dep.Registry)
		for _, allowed := range policy.AllowGit {
			if strings.HasPrefix(repo, strings.TrimSuffix(allowed, "/")) {
				return
			}
		}
		report.Add(policy.UnknownGit, violation(dep, entities.RuleSourceNotAllowed, fmt.Sprintf("git source %s is not allowed", repo)))
		return
	}

	registry := normalizeRegistry(dep.Registry)
	for _, allowed := range policy.AllowRegistries {
		if normalizeRegistry(allowed) == registry {
			return
		}
	}
	report.Add(policy.UnknownRegistry, violation(dep, entities.RuleSourceNotAllowed, fmt.Sprintf("registry %s is not allowed", registry)))
}

// SelectLicense returns the first license in allow-list order that the
// package offers. Crate exceptions are considered after the allow list.
func (s *policyService) SelectLicense(policy entities.LicensePolicy, pkg entities.BundledPackage) (entities.LicenseText, error) {
	if len(pkg.Licenses) == 0 {
		return entities.LicenseText{}, fmt.Errorf("no licenses found for %s", pkg.Key())
	}

	preference := slices.Clone(policy.Allow)
	for _, exc := range policy.Exceptions {
		if exc.Name == pkg.Name {
			preference = append(preference, exc.Allow...)
		}
	}

	for _, id := range preference {
		if slices.Contains(policy.Deny, id) {
			continue
		}
		for _, lic := range pkg.Licenses {
			if lic.ID == id {
				return lic, nil
			}
		}
	}

	offered := make([]string, 0, len(pkg.Licenses))
	for _, lic := range pkg.Licenses {
		offered = append(offered, lic.ID)
	}
	return entities.LicenseText{}, fmt.Errorf("no permissible license for %s among %s", pkg.Key(), strings.Join(offered, ", "))
}

func allowedLicenses(policy entities.LicensePolicy, crate string) map[string]bool {
	allowed := make(map[string]bool, len(policy.Allow))
	for _, id := range policy.Allow {
		allowed[id] = true
	}
	for _, exc := range policy.Exceptions {
		if exc.Name != crate {
			continue
		}
		for _, id := range exc.Allow {
			allowed[id] = true
		}
	}
	return allowed
}

func violation(dep entities.DependencyRecord, rule entities.PolicyRule, detail string) entities.PolicyViolation {
	return entities.PolicyViolation{
		Dependency: dep.Name,
		Version:    dep.Version,
		Rule:       rule,
		Detail:     detail,
	}
}

// normalizeRegistry strips cargo source prefixes and maps the sparse
// crates.io index onto the canonical index URL.
func normalizeRegistry(source string) string {
	source = strings.TrimPrefix(source, "registry+")
	source = strings.TrimPrefix(source, "sparse+")
	source = strings.TrimSuffix(source, "/")
	if source == "https://index.crates.io" {
		return entities.CratesIORegistry
	}
	return source
}

func normalizeGitSource(source string) string {
	source = strings.TrimPrefix(source, "git+")
	if i := strings.IndexAny(source, "?#"); i >= 0 {
		source = source[:i]
	}
	return strings.TrimSuffix(strings.TrimSuffix(source, "/"), ".git")
}

// matchesRequirement checks version against a cargo style requirement such
// as "<0.3.0", ">=1.0, <1.4" or "^0.2". Bare versions are caret requirements.
func matchesRequirement(version, requirement string) bool {
	v := canonicalVersion(version)
	if v == "" {
		return false
	}
	for _, clause := range strings.Split(requirement, ",") {
		if !matchesClause(v, strings.TrimSpace(clause)) {
			return false
		}
	}
	return true
}

func matchesClause(v, clause string) bool {
	if clause == "" || clause == "*" {
		return true
	}

	for _, op := range []string{">=", "<=", ">", "<", "=", "^", "~"} {
		if !strings.HasPrefix(clause, op) {
			continue
		}
		bound := strings.TrimSpace(strings.TrimPrefix(clause, op))
		b := canonicalVersion(bound)
		if b == "" {
			return false
		}
		cmp := semver.Compare(v, b)
		switch op {
		case ">=":
			return cmp >= 0
		case "<=":
			return cmp <= 0
		case ">":
			return cmp > 0
		case "<":
			return cmp < 0
		case "=":
			return cmp == 0
		case "^":
			return cmp >= 0 && semver.Compare(v, caretUpperBound(bound)) < 0
		case "~":
			return cmp >= 0 && semver.Compare(v, tildeUpperBound(bound)) < 0
		}
	}

	b := canonicalVersion(clause)
	return b != "" && semver.Compare(v, b) >= 0 && semver.Compare(v, caretUpperBound(clause)) < 0
}

func canonicalVersion(version string) string {
	return semver.Canonical("v" + strings.TrimPrefix(version, "v"))
}

// caretUpperBound returns the exclusive upper bound of ^version
func caretUpperBound(version string) string {
	parts := versionParts(version)
	switch {
	case parts[0] > 0 || len(parts) == 1:
		return fmt.Sprintf("v%d.0.0", parts[0]+1)
	case parts[1] > 0 || len(parts) == 2:
		return fmt.Sprintf("v0.%d.0", parts[1]+1)
	default:
		return fmt.Sprintf("v0.0.%d", parts[2]+1)
	}
}

// tildeUpperBound returns the exclusive upper bound of ~version
func tildeUpperBound(version string) string {
	parts := versionParts(version)
	if len(parts) == 1 {
		return fmt.Sprintf("v%d.0.0", parts[0]+1)
	}
	return fmt.Sprintf("v%d.%d.0", parts[0], parts[1]+1)
}

func versionParts(version string) []int {
	core := strings.TrimPrefix(version, "v")
	if i := strings.IndexAny(core, "-+"); i >= 0 {
		core = core[:i]
	}
	fields := strings.Split(core, ".")
	parts := make([]int, 0, 3)
	for _, f := range fields {
		var n int
		if _, err := fmt.Sscanf(f, "%d", &n); err != nil {
			break
		}
		parts = append(parts, n)
		if len(parts) == 3 {
			break
		}
	}
	if len(parts) == 0 {
		parts = append(parts, 0)
	}
	return parts
}

package entities

import (
	"fmt"
	"strings"
)

// PolicyLevel is the reaction to a class of findings
type PolicyLevel string

// Policy levels
const (
	LevelAllow PolicyLevel = "allow"
	LevelWarn  PolicyLevel = "warn"
	LevelDeny  PolicyLevel = "deny"
)

// LicenseException grants additional licenses to a single crate
type LicenseException struct {
	Name  string
	Allow []string
}

// BannedCrate bans a crate, optionally only for a version requirement such
// as "<0.3.0" or "=1.2.3". An empty Version bans every version.
type BannedCrate struct {
	Name    string
	Version string
}

// LicensePolicy is the static allow/deny ruleset dependencies are audited
// against. Allow order is significant: it is the preference order used to
// pick one license for the manifest.
type LicensePolicy struct {
	Allow      []string
	Deny       []string
	Exceptions []LicenseException

	Banned               []BannedCrate
	MultipleVersions     PolicyLevel
	MultipleVersionsSkip []string

	AllowRegistries []string
	AllowGit        []string
	UnknownRegistry PolicyLevel
	UnknownGit      PolicyLevel

	Vulnerability    PolicyLevel
	IgnoreAdvisories []string
}

// DefaultLicensePolicy allows MIT only, bans duplicates and restricts
// sources to crates.io.
func DefaultLicensePolicy() LicensePolicy {
	return LicensePolicy{
		Allow:            []string{"MIT"},
		MultipleVersions: LevelDeny,
		AllowRegistries:  []string{CratesIORegistry},
		UnknownRegistry:  LevelDeny,
		UnknownGit:       LevelDeny,
		Vulnerability:    LevelAllow,
	}
}

// CratesIORegistry is the canonical crates.io index URL
const CratesIORegistry = "https://github.com/rust-lang/crates.io-index"

// PolicyRule names the rule a dependency violated
type PolicyRule string

// Policy rules
const (
	RuleLicenseMissing    PolicyRule = "license-missing"
	RuleLicenseNotAllowed PolicyRule = "license-not-allowed"
	RuleLicenseDenied     PolicyRule = "license-denied"
	RuleBanned            PolicyRule = "banned"
	RuleDuplicateVersion  PolicyRule = "duplicate-version"
	RuleSourceNotAllowed  PolicyRule = "source-not-allowed"
	RuleAdvisory          PolicyRule = "advisory"
	RuleExternalChecker   PolicyRule = "external-checker"
)

// PolicyViolation is one policy finding against a dependency
type PolicyViolation struct {
	Dependency string
	Version    string
	Rule       PolicyRule
	Detail     string
}

func (v PolicyViolation) String() string {
	return fmt.Sprintf("%s %s: %s (%s)", v.Dependency, v.Version, v.Rule, v.Detail)
}

// PolicyReport collects the findings of one audit. Warnings are reported but
// never fail the audit.
type PolicyReport struct {
	Violations []PolicyViolation
	Warnings   []PolicyViolation
}

// Passed reports whether the audit found no violations
func (r *PolicyReport) Passed() bool {
	return len(r.Violations) == 0
}

// Merge appends the findings of other
func (r *PolicyReport) Merge(other *PolicyReport) {
	if other == nil {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// Add records a finding at the given level. Allow-level findings are dropped.
func (r *PolicyReport) Add(level PolicyLevel, v PolicyViolation) {
	switch level {
	case LevelDeny:
		r.Violations = append(r.Violations, v)
	case LevelWarn:
		r.Warnings = append(r.Warnings, v)
	}
}

// Diagnostics renders the violations one per line
func (r *PolicyReport) Diagnostics() string {
	lines := make([]string, 0, len(r.Violations))
	for _, v := range r.Violations {
		lines = append(lines, v.String())
	}
	return strings.Join(lines, "\n")
}

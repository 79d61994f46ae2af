package gateways

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// cargoGateway runs cargo subcommands through a command runner
type cargoGateway struct {
	runner  gateways.CommandRunner
	timeout time.Duration
	env     map[string]string
}

// NewCargoGateway creates a cargo gateway. env is added to every invocation,
// typically CARGO_HOME.
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewCargoGateway(runner gateways.CommandRunner, timeout time.Duration, env map[string]string) *cargoGateway {
	return &cargoGateway{runner: runner, timeout: timeout, env: env}
}

func (g *cargoGateway) spec(dir, description string, args ...string) gateways.CommandSpec {
	env := make(map[string]string, len(g.env))
	for k, v := range g.env {
		env[k] = v
	}
	return gateways.CommandSpec{
		Name:        "cargo",
		Args:        args,
		Dir:         dir,
		Env:         env,
		Timeout:     g.timeout,
		Description: description,
	}
}

// CheckFormat verifies formatting without touching the checkout
func (g *cargoGateway) CheckFormat(ctx context.Context, dir string) (*gateways.CommandOutput, error) {
	return g.runner.Run(ctx, g.spec(dir, "cargo fmt --check", "fmt", "--all", "--", "--check"))
}

// Test runs the unit tests for the host target
func (g *cargoGateway) Test(ctx context.Context, dir string) (*gateways.CommandOutput, error) {
	return g.runner.Run(ctx, g.spec(dir, "cargo test", "test"))
}

// Dependencies resolves the dependency graph with cargo metadata
func (g *cargoGateway) Dependencies(ctx context.Context, dir string) ([]entities.DependencyRecord, error) {
	out, err := g.runner.Run(ctx, g.spec(dir, "cargo metadata", "metadata", "--format-version", "1"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve dependencies: %w\n%s", err, out.Combined())
	}
	return ParseMetadata([]byte(out.Stdout))
}

// BundleLicenses collects the license texts of every dependency
func (g *cargoGateway) BundleLicenses(ctx context.Context, dir string) ([]entities.BundledPackage, error) {
	out, err := g.runner.Run(ctx, g.spec(dir, "cargo bundle-licenses", "bundle-licenses", "--format", "json"))
	if err != nil {
		return nil, fmt.Errorf("failed to bundle licenses: %w\n%s", err, out.Combined())
	}
	return ParseBundle([]byte(out.Stdout))
}

// Deny runs cargo-deny against the policy file
func (g *cargoGateway) Deny(ctx context.Context, dir, policyPath string) (*gateways.CommandOutput, error) {
	args := []string{"deny", "check"}
	if policyPath != "" {
		args = append(args, "--config", policyPath)
	}
	args = append(args, "licenses", "bans", "sources")
	return g.runner.Run(ctx, g.spec(dir, "cargo deny check", args...))
}

// BuildCommand returns the cargo arguments of a release build for target
func (g *cargoGateway) BuildCommand(target entities.BuildTarget) []string {
	return []string{"cargo", "build", "--release", "--target", target.Triple}
}

// Build compiles a release binary for target on the host
func (g *cargoGateway) Build(ctx context.Context, dir string, target entities.BuildTarget) (*gateways.CommandOutput, error) {
	cmd := g.BuildCommand(target)
	spec := g.spec(dir, "cargo build "+target.Name, cmd[1:]...)
	for k, v := range target.BuildEnv() {
		spec.Env[k] = v
	}
	return g.runner.Run(ctx, spec)
}

// cargo metadata output, reduced to the fields used here

type cargoMetadata struct {
	Packages         []cargoPackage `json:"packages"`
	WorkspaceMembers []string       `json:"workspace_members"`
	Resolve          *cargoResolve  `json:"resolve"`
}

type cargoPackage struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Version    string  `json:"version"`
	License    *string `json:"license"`
	Source     *string `json:"source"`
	Repository *string `json:"repository"`
}

type cargoResolve struct {
	Nodes []cargoNode `json:"nodes"`
}

type cargoNode struct {
	ID   string         `json:"id"`
	Deps []cargoNodeDep `json:"deps"`
}

type cargoNodeDep struct {
	Pkg      string         `json:"pkg"`
	DepKinds []cargoDepKind `json:"dep_kinds"`
}

type cargoDepKind struct {
	Kind *string `json:"kind"`
}

// ParseMetadata extracts the packages reachable from the workspace through
// normal and build dependencies, in resolution order. Workspace members and
// dev-only dependencies are excluded.
func ParseMetadata(data []byte) ([]entities.DependencyRecord, error) {
	var meta cargoMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse cargo metadata: %w", err)
	}
	if meta.Resolve == nil {
		return nil, fmt.Errorf("cargo metadata has no resolve graph")
	}

	packages := make(map[string]cargoPackage, len(meta.Packages))
	for _, p := range meta.Packages {
		packages[p.ID] = p
	}
	nodes := make(map[string]cargoNode, len(meta.Resolve.Nodes))
	for _, n := range meta.Resolve.Nodes {
		nodes[n.ID] = n
	}
	members := make(map[string]bool, len(meta.WorkspaceMembers))
	for _, id := range meta.WorkspaceMembers {
		members[id] = true
	}

	reachable := make(map[string]bool)
	queue := append([]string(nil), meta.WorkspaceMembers...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, dep := range nodes[id].Deps {
			if !isRuntimeDep(dep) || reachable[dep.Pkg] {
				continue
			}
			reachable[dep.Pkg] = true
			queue = append(queue, dep.Pkg)
		}
	}

	var records []entities.DependencyRecord
	for _, n := range meta.Resolve.Nodes {
		if members[n.ID] || !reachable[n.ID] {
			continue
		}
		p, ok := packages[n.ID]
		if !ok {
			return nil, fmt.Errorf("resolve node %s has no package entry", n.ID)
		}
		records = append(records, entities.DependencyRecord{
			Name:       p.Name,
			Version:    p.Version,
			License:    deref(p.License),
			Source:     entities.SourcePackageManager,
			Registry:   deref(p.Source),
			Repository: deref(p.Repository),
		})
	}
	return records, nil
}

// isRuntimeDep reports whether any dependency kind is normal or build
func isRuntimeDep(dep cargoNodeDep) bool {
	if len(dep.DepKinds) == 0 {
		return true
	}
	for _, k := range dep.DepKinds {
		if k.Kind == nil || *k.Kind != "dev" {
			return true
		}
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// cargo bundle-licenses --format json output

type bundleOutput struct {
	ThirdPartyLibraries []bundleLibrary `json:"third_party_libraries"`
}

type bundleLibrary struct {
	PackageName    string          `json:"package_name"`
	PackageVersion string          `json:"package_version"`
	License        string          `json:"license"`
	Licenses       []bundleLicense `json:"licenses"`
}

type bundleLicense struct {
	License string `json:"license"`
	Text    string `json:"text"`
}

// ParseBundle converts bundle-licenses JSON into bundled packages
func ParseBundle(data []byte) ([]entities.BundledPackage, error) {
	var out bundleOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse license bundle: %w", err)
	}

	pkgs := make([]entities.BundledPackage, 0, len(out.ThirdPartyLibraries))
	for _, lib := range out.ThirdPartyLibraries {
		pkg := entities.BundledPackage{
			Name:    lib.PackageName,
			Version: lib.PackageVersion,
			License: lib.License,
		}
		for _, l := range lib.Licenses {
			pkg.Licenses = append(pkg.Licenses, entities.LicenseText{ID: l.License, Text: l.Text})
		}
		pkgs = append(pkgs, pkg)
	}
	return pkgs, nil
}

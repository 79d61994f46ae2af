package entities

import (
	"fmt"
	"path/filepath"
	"time"
)

// Instance names of the three release pipelines
const (
	InstanceStaticARM   = "static-arm"
	InstanceSharedMulti = "shared-multi-target"
	InstanceLicenseOnly = "license-only"
)

// CrateInfo identifies the crate being released
type CrateInfo struct {
	Name    string
	Binary  string
	Version string
}

// ToolchainConfig describes the compiler toolchain every instance needs
type ToolchainConfig struct {
	Channel        string   // rustup toolchain, e.g. "stable"
	InstallerURL   string   // rustup-init script
	Components     []string // rustup components, e.g. rustfmt
	PackageInstall string   // shell prefix used to install system packages
}

// Environment is the immutable configuration handed to every stage. Stages
// must not modify it; anything they produce goes into the run state.
type Environment struct {
	Crate          CrateInfo
	Repository     string
	Revision       string
	WorkDir        string
	Toolchain      ToolchainConfig
	Policy         LicensePolicy
	PolicyPath     string
	Runtime        RuntimeAddendum
	ExternalDeny   bool
	CommandTimeout time.Duration
	Store          string
	SigningKeyPath string
	SigningPass    string
}

// ShortRevision returns the first 7 characters of the revision
func (e Environment) ShortRevision() string {
	if len(e.Revision) > 7 {
		return e.Revision[:7]
	}
	return e.Revision
}

// CheckoutDir returns the private checkout directory of an instance
func (e Environment) CheckoutDir(instance string) string {
	return filepath.Join(e.WorkDir, instance, "src")
}

// OutputDir returns the private output directory of an instance
func (e Environment) OutputDir(instance string) string {
	return filepath.Join(e.WorkDir, instance, "out")
}

// ToolchainHomes returns the private CARGO_HOME and RUSTUP_HOME of an
// instance. Concurrent instances never install into the same directories.
func (e Environment) ToolchainHomes(instance string) (cargoHome, rustupHome string) {
	dir := filepath.Join(e.WorkDir, instance)
	return filepath.Join(dir, "cargo"), filepath.Join(dir, "rustup")
}

// BinaryArtifactName binds triple and linkage into a stable published name
func (e Environment) BinaryArtifactName(t BuildTarget) string {
	return fmt.Sprintf("%s-%s-%s-%s", e.Crate.Binary, e.ShortRevision(), t.Triple, t.Linkage)
}

// ManifestArtifactName is the published name of the license manifest
func (e Environment) ManifestArtifactName() string {
	return fmt.Sprintf("THIRD_PARTY_LICENSES-%s.md", e.ShortRevision())
}

// PipelineInstance is one independent stage chain over its own checkout
type PipelineInstance struct {
	Name    string
	Stages  []StageName
	Targets []BuildTarget
}

// Enabled reports whether the instance runs the stage
func (p PipelineInstance) Enabled(stage StageName) bool {
	for _, s := range p.Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// IncludesLicensing reports whether the instance publishes a manifest
func (p PipelineInstance) IncludesLicensing() bool {
	return p.Enabled(StageAggregate)
}

// Validate checks stage names and that build stages have targets
func (p PipelineInstance) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("instance must have a name")
	}
	for _, s := range p.Stages {
		if !knownStage(s) {
			return fmt.Errorf("instance %s: unknown stage %q", p.Name, s)
		}
	}
	if p.Enabled(StageBuild) && len(p.Targets) == 0 {
		return fmt.Errorf("instance %s: build stage enabled without targets", p.Name)
	}
	names := make(map[string]bool)
	for _, t := range p.Targets {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("instance %s: %w", p.Name, err)
		}
		if names[t.Name] {
			return fmt.Errorf("instance %s: duplicate target %s", p.Name, t.Name)
		}
		names[t.Name] = true
	}
	return nil
}

func knownStage(s StageName) bool {
	for _, known := range StageOrder {
		if s == known {
			return true
		}
	}
	return false
}

// DefaultInstances splits the declared targets into the three release
// pipelines.
func DefaultInstances(targets []BuildTarget) []PipelineInstance {
	var static, shared []BuildTarget
	for _, t := range targets {
		if t.Static() {
			static = append(static, t)
		} else {
			shared = append(shared, t)
		}
	}

	buildStages := []StageName{StageProvision, StageQuality, StageAudit, StageBuild, StagePublish}
	return []PipelineInstance{
		{Name: InstanceStaticARM, Stages: buildStages, Targets: static},
		{Name: InstanceSharedMulti, Stages: buildStages, Targets: shared},
		{
			Name:   InstanceLicenseOnly,
			Stages: []StageName{StageProvision, StageAudit, StageAggregate, StagePublish},
		},
	}
}

// PipelineConfig is the complete parsed configuration
type PipelineConfig struct {
	Environment Environment
	Targets     []BuildTarget
	Instances   []PipelineInstance
}

// Instance looks up an instance by name
func (c *PipelineConfig) Instance(name string) (PipelineInstance, bool) {
	for _, inst := range c.Instances {
		if inst.Name == name {
			return inst, true
		}
	}
	return PipelineInstance{}, false
}

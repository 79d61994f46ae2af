// Package yaml parses the distill.yml pipeline configuration.
package yaml

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ochairo/distill/internal/domain/entities"
)

// Configuration defaults applied when keys are omitted
const (
	DefaultWorkDir        = ".distill"
	DefaultStore          = "file://dist"
	DefaultPolicyPath     = "deny.toml"
	DefaultChannel        = "stable"
	DefaultInstallerURL   = "https://sh.rustup.rs"
	DefaultPackageInstall = "sudo apt-get install -y --no-install-recommends"
	DefaultTimeoutMinutes = 30
)

// yamlConfig represents the raw YAML structure
type yamlConfig struct {
	Crate                 yamlCrate      `yaml:"crate"`
	Repository            string         `yaml:"repository"`
	Revision              string         `yaml:"revision"`
	WorkDir               string         `yaml:"work_dir"`
	Store                 string         `yaml:"store"`
	Policy                string         `yaml:"policy"`
	ExternalDeny          bool           `yaml:"external_deny"`
	CommandTimeoutMinutes int            `yaml:"command_timeout_minutes"`
	Signing               yamlSigning    `yaml:"signing"`
	Toolchain             yamlToolchain  `yaml:"toolchain"`
	Runtime               *yamlRuntime   `yaml:"runtime"`
	Targets               []yamlTarget   `yaml:"targets"`
	Instances             []yamlInstance `yaml:"instances"`
}

type yamlCrate struct {
	Name    string `yaml:"name"`
	Binary  string `yaml:"binary"`
	Version string `yaml:"version"`
}

type yamlSigning struct {
	Key        string `yaml:"key"`
	Passphrase string `yaml:"passphrase"`
}

type yamlToolchain struct {
	Channel        string   `yaml:"channel"`
	InstallerURL   string   `yaml:"installer_url"`
	Components     []string `yaml:"components"`
	PackageInstall string   `yaml:"package_install"`
}

type yamlRuntime struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	License string `yaml:"license"`
	URL     string `yaml:"url"`
}

type yamlTarget struct {
	Name      string   `yaml:"name"`
	Triple    string   `yaml:"triple"`
	Linkage   string   `yaml:"linkage"`
	Packages  []string `yaml:"packages"`
	Linker    string   `yaml:"linker"`
	Container string   `yaml:"container"`
}

type yamlInstance struct {
	Name    string   `yaml:"name"`
	Stages  []string `yaml:"stages"`
	Targets []string `yaml:"targets"`
}

// ConfigParser parses YAML pipeline configuration files
type ConfigParser struct{}

// NewConfigParser creates a new YAML parser
func NewConfigParser() *ConfigParser {
	return &ConfigParser{}
}

// ParseFile parses a configuration file. A missing file yields the default
// configuration.
func (p *ConfigParser) ParseFile(filePath string) (*entities.PipelineConfig, error) {
	//nolint:gosec // G304: filePath is the configuration path given on the command line
	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return p.Parse(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", filePath, err)
	}

	return p.Parse(data)
}

// Parse parses YAML bytes into a validated pipeline configuration
func (p *ConfigParser) Parse(data []byte) (*entities.PipelineConfig, error) {
	var raw yamlConfig
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	targets := entities.DeclaredTargets()
	if len(raw.Targets) > 0 {
		targets = convertTargets(raw.Targets)
	}

	instances := entities.DefaultInstances(targets)
	if len(raw.Instances) > 0 {
		var err error
		if instances, err = convertInstances(raw.Instances, targets); err != nil {
			return nil, err
		}
	}

	cfg := &entities.PipelineConfig{
		Environment: convertEnvironment(raw),
		Targets:     targets,
		Instances:   instances,
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func convertEnvironment(raw yamlConfig) entities.Environment {
	timeout := raw.CommandTimeoutMinutes
	if timeout <= 0 {
		timeout = DefaultTimeoutMinutes
	}

	runtime := entities.DefaultRuntimeAddendum()
	if raw.Runtime != nil {
		runtime = entities.RuntimeAddendum{
			Name:    raw.Runtime.Name,
			Version: raw.Runtime.Version,
			License: raw.Runtime.License,
			URL:     raw.Runtime.URL,
		}
	}

	return entities.Environment{
		Crate: entities.CrateInfo{
			Name:    raw.Crate.Name,
			Binary:  orDefault(raw.Crate.Binary, raw.Crate.Name),
			Version: raw.Crate.Version,
		},
		Repository:     raw.Repository,
		Revision:       raw.Revision,
		WorkDir:        orDefault(raw.WorkDir, DefaultWorkDir),
		Toolchain:      convertToolchain(raw.Toolchain),
		PolicyPath:     orDefault(raw.Policy, DefaultPolicyPath),
		Runtime:        runtime,
		ExternalDeny:   raw.ExternalDeny,
		CommandTimeout: time.Duration(timeout) * time.Minute,
		Store:          orDefault(raw.Store, DefaultStore),
		SigningKeyPath: raw.Signing.Key,
		SigningPass:    raw.Signing.Passphrase,
	}
}

func convertToolchain(yt yamlToolchain) entities.ToolchainConfig {
	components := yt.Components
	if components == nil {
		components = []string{"rustfmt"}
	}
	return entities.ToolchainConfig{
		Channel:        orDefault(yt.Channel, DefaultChannel),
		InstallerURL:   orDefault(yt.InstallerURL, DefaultInstallerURL),
		Components:     components,
		PackageInstall: orDefault(yt.PackageInstall, DefaultPackageInstall),
	}
}

func convertTargets(yts []yamlTarget) []entities.BuildTarget {
	targets := make([]entities.BuildTarget, 0, len(yts))
	for _, yt := range yts {
		targets = append(targets, entities.BuildTarget{
			Name:                  yt.Name,
			Triple:                yt.Triple,
			Linkage:               entities.Linkage(orDefault(yt.Linkage, string(entities.LinkageDynamic))),
			ToolchainRequirements: yt.Packages,
			Linker:                yt.Linker,
			Container:             yt.Container,
		})
	}
	return targets
}

func convertInstances(yis []yamlInstance, targets []entities.BuildTarget) ([]entities.PipelineInstance, error) {
	instances := make([]entities.PipelineInstance, 0, len(yis))
	for _, yi := range yis {
		inst := entities.PipelineInstance{Name: yi.Name}
		for _, s := range yi.Stages {
			inst.Stages = append(inst.Stages, entities.StageName(s))
		}
		for _, name := range yi.Targets {
			t, ok := entities.FindTarget(targets, name)
			if !ok {
				return nil, fmt.Errorf("instance %s: unknown target %q", yi.Name, name)
			}
			inst.Targets = append(inst.Targets, t)
		}
		instances = append(instances, inst)
	}
	return instances, nil
}

// validate checks the instances. The crate may be left empty here and is
// filled from Cargo.toml by the caller.
func validate(cfg *entities.PipelineConfig) error {
	seen := make(map[string]bool)
	for _, inst := range cfg.Instances {
		if seen[inst.Name] {
			return fmt.Errorf("duplicate instance %s", inst.Name)
		}
		seen[inst.Name] = true
		if err := inst.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/pflag"

	adapters "github.com/ochairo/distill/internal/domain-adapters/gateways"
	orchestrators "github.com/ochairo/distill/internal/domain-orchestrators"
	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
	"github.com/ochairo/distill/internal/domain/services"
	"github.com/ochairo/distill/internal/external-adapters/git"
	"github.com/ochairo/distill/internal/external-adapters/gpg"
	"github.com/ochairo/distill/internal/external-adapters/logging"
	"github.com/ochairo/distill/internal/external-adapters/store"
	"github.com/ochairo/distill/internal/external-adapters/toml"
	"github.com/ochairo/distill/internal/external-adapters/yaml"
)

// Environment variables that override the configuration file
const (
	envStore          = "DISTILL_STORE"
	envSigningKey     = "DISTILL_SIGNING_KEY"
	envSigningPass    = "DISTILL_SIGNING_PASSPHRASE"
	envGitHubToken    = "GITHUB_TOKEN"
	envGitHubAPIURL   = "GITHUB_API_URL"
	defaultConfigPath = "distill.yml"
)

// commonFlags are shared by every command that reads the configuration
type commonFlags struct {
	config   string
	store    string
	revision string
	logLevel string
	logJSON  bool
}

func (c *commonFlags) register(fs *pflag.FlagSet) {
	fs.StringVarP(&c.config, "config", "c", defaultConfigPath, "Pipeline configuration file")
	fs.StringVar(&c.store, "store", "", "Artifact store location (overrides config and "+envStore+")")
	fs.StringVar(&c.revision, "revision", "", "Source revision to release (default: repository HEAD)")
	fs.StringVar(&c.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	fs.BoolVar(&c.logJSON, "log-json", false, "Emit logs as JSON")
}

func newLogger(c *commonFlags) (*logging.SlogLogger, error) {
	level, err := logging.ParseLevel(c.logLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(os.Stderr, level, c.logJSON), nil
}

// loadConfig parses the configuration and completes the environment: the
// crate from Cargo.toml, the license policy from deny.toml, absolute paths
// and environment overrides.
func loadConfig(c *commonFlags) (*entities.PipelineConfig, error) {
	cfg, err := yaml.NewConfigParser().ParseFile(c.config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	env := &cfg.Environment
	base := filepath.Dir(c.config)

	if env.Repository == "" {
		if env.Repository, err = filepath.Abs(base); err != nil {
			return nil, fmt.Errorf("failed to resolve repository path: %w", err)
		}
	}
	if c.revision != "" {
		env.Revision = c.revision
	}

	if env.Crate.Name == "" {
		crate, err := toml.LoadCrate(filepath.Join(base, "Cargo.toml"))
		if err != nil {
			return nil, fmt.Errorf("crate not configured: %w", err)
		}
		if env.Crate.Version == "" {
			env.Crate.Version = crate.Version
		}
		if env.Crate.Binary == "" {
			env.Crate.Binary = crate.Binary
		}
		env.Crate.Name = crate.Name
	}

	if env.PolicyPath, err = absFrom(base, env.PolicyPath); err != nil {
		return nil, err
	}
	if env.Policy, err = toml.LoadPolicy(env.PolicyPath); err != nil {
		return nil, err
	}
	if env.WorkDir, err = absFrom(base, env.WorkDir); err != nil {
		return nil, err
	}

	if v := os.Getenv(envStore); v != "" {
		env.Store = v
	}
	if c.store != "" {
		env.Store = c.store
	}
	if v := os.Getenv(envSigningKey); v != "" {
		env.SigningKeyPath = v
	}
	if v := os.Getenv(envSigningPass); v != "" {
		env.SigningPass = v
	}
	return cfg, nil
}

func absFrom(base, path string) (string, error) {
	if filepath.IsAbs(path) {
		return path, nil
	}
	abs, err := filepath.Abs(filepath.Join(base, path))
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", path, err)
	}
	return abs, nil
}

// resolveRevision pins the configured revision to a commit hash
func resolveRevision(ctx context.Context, source gateways.SourceGateway, env *entities.Environment) error {
	hash, err := source.Resolve(ctx, env.Repository, env.Revision)
	if err != nil {
		return fmt.Errorf("failed to resolve revision: %w", err)
	}
	env.Revision = hash
	return nil
}

// openStore opens the configured artifact store. The returned function
// releases backend clients.
func openStore(ctx context.Context, env entities.Environment, logger interfaces.Logger) (gateways.ArtifactStore, func(), error) {
	st, err := store.Open(ctx, env.Store, store.Options{
		GitHubToken:   os.Getenv(envGitHubToken),
		GitHubAPIURL:  os.Getenv(envGitHubAPIURL),
		ShortRevision: env.ShortRevision(),
		Revision:      env.Revision,
		Logger:        logger,
		NewGitHubGateway: func(token, apiURL string, logger interfaces.Logger) gateways.GitHubGateway {
			return adapters.NewHTTPGitHubGateway(token, apiURL, logger)
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open store %s: %w", env.Store, err)
	}
	closeFn := func() {}
	if c, ok := st.(io.Closer); ok {
		closeFn = func() {
			if err := c.Close(); err != nil {
				logger.Warn("failed to close store", interfaces.F("error", err))
			}
		}
	}
	return st, closeFn, nil
}

// newSigner loads the signing key. No key configured yields a nil Signer.
func newSigner(env entities.Environment) (gateways.Signer, error) {
	if env.SigningKeyPath == "" {
		return nil, nil
	}
	signer, err := gpg.NewSigner(env.SigningKeyPath, []byte(env.SigningPass))
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	return signer, nil
}

// toolchainEnv is the environment every toolchain command of an instance
// runs with, and the directory its installed tools land in
func toolchainEnv(env entities.Environment, instance string) (map[string]string, string) {
	cargoHome, rustupHome := env.ToolchainHomes(instance)
	return map[string]string{
		"CARGO_HOME":  cargoHome,
		"RUSTUP_HOME": rustupHome,
	}, filepath.Join(cargoHome, "bin")
}

// newPipelines builds one pipeline per instance, each with its own
// toolchain homes
func newPipelines(cfg *entities.PipelineConfig, source gateways.SourceGateway, st gateways.ArtifactStore, signer gateways.Signer, logger interfaces.Logger) orchestrators.PipelineSet {
	set := make(orchestrators.PipelineSet, len(cfg.Instances))
	for _, inst := range cfg.Instances {
		set[inst.Name] = newPipeline(cfg.Environment, inst.Name, source, st, signer, logger)
	}
	return set
}

// newPipeline wires every stage of one instance to its production adapters
func newPipeline(env entities.Environment, instance string, source gateways.SourceGateway, st gateways.ArtifactStore, signer gateways.Signer, logger interfaces.Logger) *orchestrators.PipelineOrchestrator {
	toolEnv, binDir := toolchainEnv(env, instance)
	runner := adapters.NewScriptExecutor(env.CommandTimeout, logger, binDir)
	downloader := adapters.NewDownloader()

	cargo := adapters.NewCargoGateway(runner, env.CommandTimeout, toolEnv)
	toolchain := adapters.NewRustupGateway(runner, downloader, logger, env.CommandTimeout, toolEnv)
	containers := adapters.NewDockerGateway(runner, os.Getenv("DISTILL_CONTAINER_CLI"), env.CommandTimeout)
	policy := services.NewPolicyService()

	return orchestrators.NewPipelineOrchestrator(source, logger,
		orchestrators.NewProvisionStage(toolchain, containers, logger),
		orchestrators.NewQualityStage(cargo),
		orchestrators.NewAuditStage(cargo, policy, adapters.NewOSVGateway(""), logger),
		orchestrators.NewAggregateStage(cargo, downloader, services.NewManifestService(policy)),
		orchestrators.NewBuildStage(cargo, containers, adapters.NewBinaryAnalyzerGateway(), logger),
		orchestrators.NewPublishStage(st, services.NewSecurityArtifactsService(), signer, logger),
	)
}

// session is everything a pipeline command needs once configuration,
// revision and store are settled
type session struct {
	cfg      *entities.PipelineConfig
	logger   *logging.SlogLogger
	pipeline orchestrators.PipelineSet
	source   *git.Checkout
	close    func()
}

// openStoreSession loads the configuration, pins the revision and opens
// the store
func openStoreSession(ctx context.Context, c *commonFlags) (*entities.PipelineConfig, *logging.SlogLogger, gateways.ArtifactStore, func(), error) {
	logger, err := newLogger(c)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	if err := resolveRevision(ctx, git.NewCheckout(), &cfg.Environment); err != nil {
		return nil, nil, nil, nil, err
	}
	st, closeStore, err := openStore(ctx, cfg.Environment, logger)
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return cfg, logger, st, closeStore, nil
}

func openSession(ctx context.Context, c *commonFlags) (*session, error) {
	cfg, logger, st, closeStore, err := openStoreSession(ctx, c)
	if err != nil {
		return nil, err
	}
	signer, err := newSigner(cfg.Environment)
	if err != nil {
		closeStore()
		return nil, err
	}
	source := git.NewCheckout()
	return &session{
		cfg:      cfg,
		logger:   logger,
		pipeline: newPipelines(cfg, source, st, signer, logger),
		source:   source,
		close:    closeStore,
	}, nil
}

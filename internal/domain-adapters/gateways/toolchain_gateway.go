package gateways

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// FileDownloader fetches a URL into a local file
type FileDownloader interface {
	DownloadFile(ctx context.Context, url, outputPath string) error
}

// rustupGateway provisions the rust toolchain on the host with rustup
type rustupGateway struct {
	runner     gateways.CommandRunner
	downloader FileDownloader
	logger     interfaces.Logger
	timeout    time.Duration
	env        map[string]string
	tempDir    string
}

// NewRustupGateway creates a toolchain gateway. env is passed to every
// command, typically CARGO_HOME and RUSTUP_HOME.
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewRustupGateway(runner gateways.CommandRunner, downloader FileDownloader, logger interfaces.Logger, timeout time.Duration, env map[string]string) *rustupGateway {
	return &rustupGateway{
		runner:     runner,
		downloader: downloader,
		logger:     logger,
		timeout:    timeout,
		env:        env,
		tempDir:    os.TempDir(),
	}
}

func (g *rustupGateway) spec(description, name string, args ...string) gateways.CommandSpec {
	return gateways.CommandSpec{
		Name:        name,
		Args:        args,
		Env:         g.env,
		Timeout:     g.timeout,
		Description: description,
	}
}

// responds reports whether a tool answers its --version flag
func (g *rustupGateway) responds(ctx context.Context, name string, args ...string) bool {
	args = append(args, "--version")
	_, err := g.runner.Run(ctx, g.spec(name+" --version", name, args...))
	return err == nil
}

// EnsureToolchain installs rustup with the configured channel when cargo is
// missing, then adds the configured components.
func (g *rustupGateway) EnsureToolchain(ctx context.Context, cfg entities.ToolchainConfig) (*gateways.CommandOutput, error) {
	channel := cfg.Channel
	if channel == "" {
		channel = "stable"
	}

	if g.responds(ctx, "cargo") {
		g.logger.Debug("Toolchain already installed", interfaces.F("channel", channel))
	} else {
		if cfg.InstallerURL == "" {
			return nil, fmt.Errorf("cargo not found and no installer configured")
		}
		g.logger.Info("Installing toolchain", interfaces.F("channel", channel), interfaces.F("installer", cfg.InstallerURL))

		script := filepath.Join(g.tempDir, fmt.Sprintf("rustup-init-%d.sh", time.Now().UnixNano()))
		if err := g.downloader.DownloadFile(ctx, cfg.InstallerURL, script); err != nil {
			return nil, fmt.Errorf("failed to download toolchain installer: %w", err)
		}
		//nolint:errcheck // Best effort cleanup
		defer os.Remove(script)

		out, err := g.runner.Run(ctx, g.spec("rustup-init", "sh", script, "-y", "--profile", "minimal", "--default-toolchain", channel))
		if err != nil {
			return out, fmt.Errorf("toolchain installer failed: %w", err)
		}
	}

	if len(cfg.Components) == 0 {
		return &gateways.CommandOutput{}, nil
	}
	args := append([]string{"component", "add", "--toolchain", channel}, cfg.Components...)
	out, err := g.runner.Run(ctx, g.spec("rustup component add", "rustup", args...))
	if err != nil {
		return out, fmt.Errorf("failed to add components %s: %w", strings.Join(cfg.Components, ","), err)
	}
	return out, nil
}

// AddTarget installs the standard library for a target triple
func (g *rustupGateway) AddTarget(ctx context.Context, triple string) (*gateways.CommandOutput, error) {
	out, err := g.runner.Run(ctx, g.spec("rustup target add", "rustup", "target", "add", triple))
	if err != nil {
		return out, fmt.Errorf("failed to add target %s: %w", triple, err)
	}
	return out, nil
}

// InstallSystemPackages runs the configured package manager prefix with the
// requested packages, e.g. "sudo apt-get install -y".
func (g *rustupGateway) InstallSystemPackages(ctx context.Context, installPrefix string, packages []string) (*gateways.CommandOutput, error) {
	if len(packages) == 0 {
		return &gateways.CommandOutput{}, nil
	}
	if installPrefix == "" {
		return nil, fmt.Errorf("no package install command configured for %s", strings.Join(packages, ", "))
	}

	script := installPrefix + " " + strings.Join(packages, " ")
	out, err := g.runner.RunShell(ctx, script, g.spec("install system packages", "sh"))
	if err != nil {
		return out, fmt.Errorf("failed to install %s: %w", strings.Join(packages, ", "), err)
	}
	return out, nil
}

// InstallCargoTool installs a cargo subcommand crate such as cargo-deny
// unless `cargo <sub> --version` already succeeds.
func (g *rustupGateway) InstallCargoTool(ctx context.Context, tool string) (*gateways.CommandOutput, error) {
	sub := strings.TrimPrefix(tool, "cargo-")
	if g.responds(ctx, "cargo", sub) {
		g.logger.Debug("Cargo tool already installed", interfaces.F("tool", tool))
		return &gateways.CommandOutput{}, nil
	}

	g.logger.Info("Installing cargo tool", interfaces.F("tool", tool))
	out, err := g.runner.Run(ctx, g.spec("cargo install "+tool, "cargo", "install", "--locked", tool))
	if err != nil {
		return out, fmt.Errorf("failed to install %s: %w", tool, err)
	}
	return out, nil
}

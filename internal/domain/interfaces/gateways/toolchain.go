package gateways

import (
	"context"

	"github.com/ochairo/distill/internal/domain/entities"
)

// ToolchainGateway installs and activates the compiler toolchain on the host
type ToolchainGateway interface {
	// EnsureToolchain installs the toolchain and components when missing
	EnsureToolchain(ctx context.Context, cfg entities.ToolchainConfig) (*CommandOutput, error)

	// AddTarget activates the standard library for a target triple
	AddTarget(ctx context.Context, triple string) (*CommandOutput, error)

	// InstallSystemPackages installs cross linkers and other host packages
	InstallSystemPackages(ctx context.Context, installPrefix string, packages []string) (*CommandOutput, error)

	// InstallCargoTool installs an auxiliary cargo subcommand when missing
	InstallCargoTool(ctx context.Context, tool string) (*CommandOutput, error)
}

// ContainerRunSpec describes a disposable container invocation
type ContainerRunSpec struct {
	Image   string
	Command []string
	Mounts  map[string]string // host path -> container path
	Workdir string
	Env     map[string]string
}

// ContainerGateway runs commands inside disposable containers
type ContainerGateway interface {
	PullImage(ctx context.Context, image string) (*CommandOutput, error)
	Run(ctx context.Context, spec ContainerRunSpec) (*CommandOutput, error)
}

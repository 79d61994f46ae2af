package orchestrators

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// Auxiliary cargo subcommands installed on demand
const (
	ToolBundleLicenses = "cargo-bundle-licenses"
	ToolDeny           = "cargo-deny"
)

// ProvisionStage installs the toolchain, target standard libraries, cross
// linkers and cargo tools the instance needs. Container targets are
// provisioned by pulling and probing their image instead.
type ProvisionStage struct {
	toolchain  gateways.ToolchainGateway
	containers gateways.ContainerGateway
	logger     interfaces.Logger
}

// NewProvisionStage creates the provisioning stage
func NewProvisionStage(toolchain gateways.ToolchainGateway, containers gateways.ContainerGateway, logger interfaces.Logger) *ProvisionStage {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &ProvisionStage{toolchain: toolchain, containers: containers, logger: logger}
}

// Name implements Stage
func (s *ProvisionStage) Name() entities.StageName {
	return entities.StageProvision
}

func provisioningError(step string, out *gateways.CommandOutput, err error) error {
	return entities.NewStageError(entities.ErrProvisioning, entities.StageProvision,
		commandDiagnostics(out, err), fmt.Errorf("%s: %w", step, err))
}

// Execute implements Stage
func (s *ProvisionStage) Execute(ctx context.Context, state *RunState) (string, error) {
	env, inst := state.Env, state.Instance

	if out, err := s.toolchain.EnsureToolchain(ctx, env.Toolchain); err != nil {
		return "", provisioningError("toolchain "+env.Toolchain.Channel, out, err)
	}

	var packages, images []string
	hostTargets := 0
	if inst.Enabled(entities.StageBuild) {
		for _, t := range inst.Targets {
			if t.Containerized() {
				if !slices.Contains(images, t.Container) {
					images = append(images, t.Container)
				}
				continue
			}
			hostTargets++
			if out, err := s.toolchain.AddTarget(ctx, t.Triple); err != nil {
				return "", provisioningError("target "+t.Triple, out, err)
			}
			for _, p := range t.ToolchainRequirements {
				if !slices.Contains(packages, p) {
					packages = append(packages, p)
				}
			}
		}
	}

	if len(packages) > 0 {
		slices.Sort(packages)
		if out, err := s.toolchain.InstallSystemPackages(ctx, env.Toolchain.PackageInstall, packages); err != nil {
			return "", provisioningError("system packages "+strings.Join(packages, " "), out, err)
		}
	}

	var tools []string
	if inst.Enabled(entities.StageAggregate) {
		tools = append(tools, ToolBundleLicenses)
	}
	if inst.Enabled(entities.StageAudit) && env.ExternalDeny {
		tools = append(tools, ToolDeny)
	}
	for _, tool := range tools {
		if out, err := s.toolchain.InstallCargoTool(ctx, tool); err != nil {
			return "", provisioningError(tool, out, err)
		}
	}

	for _, image := range images {
		if err := s.provisionContainer(ctx, image, inst.Targets); err != nil {
			return "", err
		}
	}

	s.logger.Debug("provisioned",
		interfaces.F("instance", inst.Name),
		interfaces.F("packages", packages),
		interfaces.F("tools", tools),
		interfaces.F("images", images))
	return fmt.Sprintf("toolchain %s, %d host targets, %d packages, %d tools, %d images",
		env.Toolchain.Channel, hostTargets, len(packages), len(tools), len(images)), nil
}

// provisionContainer pulls image and checks that it carries the standard
// library of every target built in it.
func (s *ProvisionStage) provisionContainer(ctx context.Context, image string, targets []entities.BuildTarget) error {
	if s.containers == nil {
		return entities.NewStageError(entities.ErrProvisioning, entities.StageProvision,
			"no container runtime configured", fmt.Errorf("image %s: no container runtime", image))
	}
	if out, err := s.containers.PullImage(ctx, image); err != nil {
		return provisioningError("image "+image, out, err)
	}

	out, err := s.containers.Run(ctx, gateways.ContainerRunSpec{
		Image:   image,
		Command: []string{"rustup", "target", "list", "--installed"},
	})
	if err != nil {
		return provisioningError("inspect "+image, out, err)
	}
	installed := strings.Fields(out.Stdout)
	for _, t := range targets {
		if t.Container != image {
			continue
		}
		if !slices.Contains(installed, t.Triple) {
			return entities.NewStageError(entities.ErrProvisioning, entities.StageProvision,
				fmt.Sprintf("installed targets: %s", strings.Join(installed, ", ")),
				fmt.Errorf("image %s does not provide target %s", image, t.Triple))
		}
	}
	return nil
}

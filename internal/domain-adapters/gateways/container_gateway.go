package gateways

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// dockerGateway runs disposable containers with the docker CLI
type dockerGateway struct {
	runner  gateways.CommandRunner
	binary  string
	timeout time.Duration
}

// NewDockerGateway creates a container gateway. binary defaults to docker
// and may name a compatible CLI such as podman.
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewDockerGateway(runner gateways.CommandRunner, binary string, timeout time.Duration) *dockerGateway {
	if binary == "" {
		binary = "docker"
	}
	return &dockerGateway{runner: runner, binary: binary, timeout: timeout}
}

// PullImage fetches an image
func (g *dockerGateway) PullImage(ctx context.Context, image string) (*gateways.CommandOutput, error) {
	out, err := g.runner.Run(ctx, gateways.CommandSpec{
		Name:        g.binary,
		Args:        []string{"pull", image},
		Timeout:     g.timeout,
		Description: "pull " + image,
	})
	if err != nil {
		return out, fmt.Errorf("failed to pull %s: %w", image, err)
	}
	return out, nil
}

// Run executes a command in a container removed on exit
func (g *dockerGateway) Run(ctx context.Context, spec gateways.ContainerRunSpec) (*gateways.CommandOutput, error) {
	if spec.Image == "" {
		return nil, fmt.Errorf("container image is required")
	}
	return g.runner.Run(ctx, gateways.CommandSpec{
		Name:        g.binary,
		Args:        DockerRunArgs(spec),
		Timeout:     g.timeout,
		Description: "run " + spec.Image,
	})
}

// DockerRunArgs renders the arguments of `docker run` for spec. Mounts and
// environment are emitted in sorted order.
func DockerRunArgs(spec gateways.ContainerRunSpec) []string {
	args := []string{"run", "--rm"}

	hosts := make([]string, 0, len(spec.Mounts))
	for host := range spec.Mounts {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	for _, host := range hosts {
		args = append(args, "-v", host+":"+spec.Mounts[host])
	}

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+spec.Env[k])
	}

	if spec.Workdir != "" {
		args = append(args, "-w", spec.Workdir)
	}
	args = append(args, spec.Image)
	return append(args, spec.Command...)
}

package gateways

import (
	"context"
	"strings"
	"time"
)

// CommandSpec describes one external command invocation
type CommandSpec struct {
	Name        string   // executable
	Args        []string // arguments
	Dir         string
	Env         map[string]string
	Timeout     time.Duration
	Description string
}

// CommandOutput is the captured result of an external command
type CommandOutput struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Combined returns stdout followed by stderr, trimmed
func (o *CommandOutput) Combined() string {
	if o == nil {
		return ""
	}
	parts := make([]string, 0, 2)
	if s := strings.TrimSpace(o.Stdout); s != "" {
		parts = append(parts, s)
	}
	if s := strings.TrimSpace(o.Stderr); s != "" {
		parts = append(parts, s)
	}
	return strings.Join(parts, "\n")
}

// CommandRunner runs external commands. A non-zero exit is reported through
// CommandOutput.ExitCode and a non-nil error.
type CommandRunner interface {
	Run(ctx context.Context, spec CommandSpec) (*CommandOutput, error)
	RunShell(ctx context.Context, script string, spec CommandSpec) (*CommandOutput, error)
}

package gateways

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// recordingRunner records every command and answers from canned outputs
// keyed by "name arg0 arg1 ...". Unknown commands succeed with no output.
type recordingRunner struct {
	mu      sync.Mutex
	calls   []gateways.CommandSpec
	scripts []string
	outputs map[string]*gateways.CommandOutput
	fail    map[string]bool
}

func newRecordingRunner() *recordingRunner {
	return &recordingRunner{
		outputs: make(map[string]*gateways.CommandOutput),
		fail:    make(map[string]bool),
	}
}

func commandLine(spec gateways.CommandSpec) string {
	return strings.TrimSpace(spec.Name + " " + strings.Join(spec.Args, " "))
}

func (r *recordingRunner) Run(_ context.Context, spec gateways.CommandSpec) (*gateways.CommandOutput, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, spec)

	line := commandLine(spec)
	out, ok := r.outputs[line]
	if !ok {
		out = &gateways.CommandOutput{}
	}
	if r.fail[line] {
		out.ExitCode = 1
		return out, fmt.Errorf("%s failed (exit 1)", line)
	}
	return out, nil
}

func (r *recordingRunner) RunShell(ctx context.Context, script string, spec gateways.CommandSpec) (*gateways.CommandOutput, error) {
	r.mu.Lock()
	r.scripts = append(r.scripts, script)
	r.mu.Unlock()
	spec.Name = "sh"
	spec.Args = []string{"-c", script}
	return r.Run(ctx, spec)
}

func (r *recordingRunner) lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.calls))
	for _, c := range r.calls {
		out = append(out, commandLine(c))
	}
	return out
}

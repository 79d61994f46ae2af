// Package gateways implements the adapters behind the domain gateway
// interfaces: external commands, the compiler toolchain, containers, binary
// inspection and remote services.
package gateways

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/ochairo/distill/internal/domain/interfaces"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// ScriptExecutor runs external commands and shell scripts
type ScriptExecutor struct {
	defaultTimeout time.Duration
	path           string
	logger         interfaces.Logger
}

// NewScriptExecutor creates a new script executor. Directories in extraPath
// are prepended to PATH for every command.
func NewScriptExecutor(defaultTimeout time.Duration, logger interfaces.Logger, extraPath ...string) *ScriptExecutor {
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Minute
	}
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	path := os.Getenv("PATH")
	for i := len(extraPath) - 1; i >= 0; i-- {
		if extraPath[i] != "" {
			path = extraPath[i] + string(os.PathListSeparator) + path
		}
	}
	return &ScriptExecutor{
		defaultTimeout: defaultTimeout,
		path:           path,
		logger:         logger,
	}
}

// Run executes spec.Name with spec.Args
func (se *ScriptExecutor) Run(ctx context.Context, spec gateways.CommandSpec) (*gateways.CommandOutput, error) {
	return se.execute(ctx, spec.Name, spec.Args, spec)
}

// RunShell executes script with sh -c
func (se *ScriptExecutor) RunShell(ctx context.Context, script string, spec gateways.CommandSpec) (*gateways.CommandOutput, error) {
	return se.execute(ctx, "sh", []string{"-c", script}, spec)
}

func (se *ScriptExecutor) execute(ctx context.Context, name string, args []string, spec gateways.CommandSpec) (*gateways.CommandOutput, error) {
	startTime := time.Now()
	output := &gateways.CommandOutput{}

	timeout := spec.Timeout
	if timeout == 0 {
		timeout = se.defaultTimeout
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	//nolint:gosec // G204: commands are built from pipeline configuration
	cmd := exec.CommandContext(execCtx, se.lookPath(name), args...)
	cmd.Dir = spec.Dir
	cmd.Env = se.environment(spec.Env)

	// Own process group so cancellation reaches cargo's and docker's children
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	description := spec.Description
	if description == "" {
		description = name
	}
	se.logger.Debug("Executing command",
		interfaces.F("description", description),
		interfaces.F("dir", spec.Dir))

	err := cmd.Run()
	output.Duration = time.Since(startTime)
	output.Stdout = stdout.String()
	output.Stderr = stderr.String()

	if err != nil {
		var exitErr *exec.ExitError
		//nolint:gocritic // ifElseChain: checking different error types, not suitable for switch
		if execCtx.Err() == context.DeadlineExceeded {
			output.ExitCode = -1
			return output, fmt.Errorf("%s timed out after %v", description, timeout)
		} else if errors.As(err, &exitErr) {
			output.ExitCode = exitErr.ExitCode()
		} else {
			output.ExitCode = -1
		}
		return output, fmt.Errorf("%s failed (exit %d): %w", description, output.ExitCode, err)
	}

	se.logger.Debug("Command finished",
		interfaces.F("description", description),
		interfaces.F("duration", output.Duration))
	return output, nil
}

// lookPath resolves name against the executor's PATH, which may include
// directories the parent process does not search.
func (se *ScriptExecutor) lookPath(name string) string {
	if strings.ContainsRune(name, filepath.Separator) {
		return name
	}
	for _, dir := range filepath.SplitList(se.path) {
		candidate := filepath.Join(dir, name)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return candidate
		}
	}
	return name
}

func (se *ScriptExecutor) environment(extra map[string]string) []string {
	env := os.Environ()
	env = append(env, "PATH="+se.path)

	keys := make([]string, 0, len(extra))
	for key := range extra {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		env = append(env, fmt.Sprintf("%s=%s", key, extra[key]))
	}
	return env
}

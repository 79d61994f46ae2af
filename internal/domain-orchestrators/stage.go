// Package orchestrators runs the release pipeline instances and their stages.
package orchestrators

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

// RunState is the mutable state of one instance run. Stages read the
// immutable Environment and hand their outputs to later stages here.
type RunState struct {
	Env       entities.Environment
	Instance  entities.PipelineInstance
	Run       *entities.PipelineRun
	SourceDir string

	Dependencies []entities.DependencyRecord
	Artifacts    []entities.Artifact
}

// OutputDir is the private directory the instance writes artifacts to
func (s *RunState) OutputDir() string {
	return s.Env.OutputDir(s.Instance.Name)
}

// Stage is one step of a pipeline instance. Execute returns a short summary
// on success and a *entities.StageError on failure.
type Stage interface {
	Name() entities.StageName
	Execute(ctx context.Context, state *RunState) (string, error)
}

// StaticVerifier checks that a binary has an empty dynamic-link table
type StaticVerifier interface {
	VerifyStatic(path string) (*entities.LinkageReport, error)
}

// commandDiagnostics prefers stderr, then the combined output, then err
func commandDiagnostics(out *gateways.CommandOutput, err error) string {
	if out != nil {
		if out.Stderr != "" {
			return out.Stderr
		}
		if combined := out.Combined(); combined != "" {
			return combined
		}
	}
	if err != nil {
		return err.Error()
	}
	return ""
}

// copyFile copies src to dst with the given mode
func copyFile(src, dst string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	//nolint:gosec // G304: src is a build output inside the checkout
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	//nolint:errcheck // Defer close
	defer in.Close()

	//nolint:gosec // G304: dst is inside the instance output directory
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		//nolint:errcheck // Best effort close on failed copy
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}

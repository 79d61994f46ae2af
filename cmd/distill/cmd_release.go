package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	orchestrators "github.com/ochairo/distill/internal/domain-orchestrators"
	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces"
)

func runRelease(ctx context.Context, args []string) int {
	fs := pflag.NewFlagSet("release", pflag.ContinueOnError)
	var (
		common     commonFlags
		jsonOutput string
	)
	common.register(fs)
	fs.StringVar(&jsonOutput, "json-output", "", "Write the run report as JSON to this file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: distill release [options]

Run every configured pipeline instance concurrently against one pinned
revision. Each instance checks out its own copy of the source and publishes
its artifacts only if every stage passes.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Exit Codes:
  0  Every instance succeeded
  1  At least one instance failed
  2  Usage or configuration error

Examples:
  distill release
  distill release --revision v0.3.1 --store gs://releases/piconfig2uboot
  distill release --json-output report.json
`)
	}

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 2
	}

	s, err := openSession(ctx, &common)
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	defer s.close()

	release := orchestrators.NewReleaseOrchestrator(s.source, s.pipeline, s.logger)
	return executeRuns(s, jsonOutput, func(env entities.Environment) ([]*entities.PipelineRun, error) {
		return release.Release(ctx, env, s.cfg.Instances)
	})
}

// executeRuns runs the pipelines, reports them and maps the outcome to an
// exit code
func executeRuns(s *session, jsonOutput string, run func(entities.Environment) ([]*entities.PipelineRun, error)) int {
	env := s.cfg.Environment
	fmt.Printf("🔍 Releasing %s %s at %s\n", env.Crate.Name, env.Crate.Version, env.Revision)
	fmt.Printf("   Store: %s\n", env.Store)

	started := time.Now()
	runs, err := run(env)
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	report := newRunReport(env, runs, time.Since(started))
	printSummary(os.Stdout, report)
	if jsonOutput != "" {
		if err := writeJSONReport(jsonOutput, report); err != nil {
			s.logger.Error("report not written", interfaces.F("error", err))
			return 1
		}
	}

	if failed := orchestrators.Failed(runs); len(failed) > 0 {
		for _, r := range failed {
			s.logger.Error("instance failed",
				interfaces.F("instance", r.Instance),
				interfaces.F("error", r.Err))
		}
		return 1
	}
	return 0
}

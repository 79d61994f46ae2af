package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/ochairo/distill/internal/domain/entities"
)

func runInstance(ctx context.Context, args []string) int {
	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	var (
		common     commonFlags
		jsonOutput string
	)
	common.register(fs)
	fs.StringVar(&jsonOutput, "json-output", "", "Write the run report as JSON to this file")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: distill run <instance> [options]

Run a single pipeline instance. Use "distill targets" to list instances.

Arguments:
  instance   Instance name, e.g. static-arm (required)

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  distill run license-only
  distill run static-arm --revision main --log-level debug
`)
	}

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintf(os.Stderr, "Error: exactly one instance name is required\n\n")
		fs.Usage()
		return 2
	}

	s, err := openSession(ctx, &common)
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	defer s.close()

	inst, ok := findInstance(s.cfg.Instances, fs.Arg(0))
	if !ok {
		fmt.Fprintf(os.Stderr, "Error: unknown instance %q (have: %s)\n", fs.Arg(0), instanceNames(s.cfg.Instances))
		return 2
	}

	return executeRuns(s, jsonOutput, func(env entities.Environment) ([]*entities.PipelineRun, error) {
		return []*entities.PipelineRun{s.pipeline.Run(ctx, env, inst)}, nil
	})
}

func findInstance(instances []entities.PipelineInstance, name string) (entities.PipelineInstance, bool) {
	for _, inst := range instances {
		if inst.Name == name {
			return inst, true
		}
	}
	return entities.PipelineInstance{}, false
}

func instanceNames(instances []entities.PipelineInstance) string {
	names := make([]string, 0, len(instances))
	for _, inst := range instances {
		names = append(names, inst.Name)
	}
	return strings.Join(names, ", ")
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/pflag"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/external-adapters/yaml"
)

type targetView struct {
	Name      string   `json:"name"`
	Triple    string   `json:"triple"`
	Linkage   string   `json:"linkage"`
	Container string   `json:"container,omitempty"`
	Packages  []string `json:"packages,omitempty"`
}

type instanceView struct {
	Name    string   `json:"name"`
	Stages  []string `json:"stages"`
	Targets []string `json:"targets"`
}

func runTargets(_ context.Context, args []string) int {
	fs := pflag.NewFlagSet("targets", pflag.ContinueOnError)
	var (
		config  string
		jsonOut bool
	)
	fs.StringVarP(&config, "config", "c", defaultConfigPath, "Pipeline configuration file")
	fs.BoolVar(&jsonOut, "json", false, "Output as JSON")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: distill targets [options]

List the declared build targets and the pipeline instances that build them.

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 2
	}

	cfg, err := yaml.NewConfigParser().ParseFile(config)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	targets := make([]targetView, 0, len(cfg.Targets))
	for _, t := range cfg.Targets {
		targets = append(targets, targetView{
			Name:      t.Name,
			Triple:    t.Triple,
			Linkage:   string(t.Linkage),
			Container: t.Container,
			Packages:  t.ToolchainRequirements,
		})
	}
	instances := make([]instanceView, 0, len(cfg.Instances))
	for _, inst := range cfg.Instances {
		view := instanceView{Name: inst.Name, Stages: []string{string(entities.StageCheckout)}, Targets: []string{}}
		for _, s := range entities.StageOrder {
			if inst.Enabled(s) {
				view.Stages = append(view.Stages, string(s))
			}
		}
		for _, t := range inst.Targets {
			view.Targets = append(view.Targets, t.Name)
		}
		instances = append(instances, view)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(map[string]any{"targets": targets, "instances": instances}); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TARGET\tTRIPLE\tLINKAGE\tBUILDER")
	for _, t := range targets {
		builder := "host"
		if t.Container != "" {
			builder = t.Container
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name, t.Triple, t.Linkage, builder)
	}
	//nolint:errcheck // Flushing stdout
	w.Flush()

	fmt.Println()
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE\tSTAGES\tTARGETS")
	for _, inst := range instances {
		fmt.Fprintf(w, "%s\t%s\t%s\n", inst.Name, strings.Join(inst.Stages, ","), orDash(strings.Join(inst.Targets, ",")))
	}
	//nolint:errcheck // Flushing stdout
	w.Flush()
	return 0
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

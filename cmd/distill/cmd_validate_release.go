package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/ochairo/distill/internal/domain/services"
)

func runValidateRelease(ctx context.Context, args []string) int {
	fs := pflag.NewFlagSet("validate-release", pflag.ContinueOnError)
	var (
		common commonFlags
		quiet  bool
	)
	common.register(fs)
	fs.BoolVarP(&quiet, "quiet", "q", false, "Only output errors (exit code indicates success/failure)")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: distill validate-release [options]

Validate that every artifact the configured instances produce for a revision
is present in the store, each with its checksum.

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Exit Codes:
  0  All expected artifacts present (ready for release)
  1  Validation failed (missing, unexpected or unchecksummed artifacts)
  2  Usage error or system error

Examples:
  distill validate-release --revision v0.3.1
  distill validate-release --store github://ochairo/piconfig2uboot --quiet
`)
	}

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 2
	}

	cfg, _, st, closeStore, err := openStoreSession(ctx, &common)
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	defer closeStore()

	env := cfg.Environment
	if !quiet {
		fmt.Printf("🔍 Validating release for %s at %s\n", env.Crate.Name, env.ShortRevision())
	}

	names, err := st.List(ctx, "")
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: failed to list store: %v\n", err)
		return 2
	}

	validation := services.NewReleaseService().ValidateRelease(env, cfg.Instances, names)
	if !validation.IsReady() {
		if !quiet {
			fmt.Printf("%s %s\n", color.RedString("❌ FAILED:"), validation.ErrorMessage())
		}
		return 1
	}

	if !quiet {
		fmt.Printf("%s %d artifacts published\n", color.GreenString("✅ READY:"), validation.AvailableCount)
		for _, name := range validation.AvailableArtifacts {
			fmt.Printf("   → %s\n", name)
		}
	}
	return 0
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	adapters "github.com/ochairo/distill/internal/domain-adapters/gateways"
	"github.com/ochairo/distill/internal/domain/services"
)

func runVerifyStatic(ctx context.Context, args []string) int {
	fs := pflag.NewFlagSet("verify-static", pflag.ContinueOnError)
	var (
		keyPath     string
		inspectOnly bool
	)
	fs.StringVar(&keyPath, "key", "", "Public key file or URL to verify the detached .asc signature with")
	fs.BoolVar(&inspectOnly, "inspect-only", false, "Report linkage without requiring a static binary")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: distill verify-static <binary>... [options]

Check that release binaries have an empty dynamic-link table. A .sha256
sidecar next to a binary is verified as well, and with --key so is its
.asc signature.

Arguments:
  binary   Path to an ELF binary (one or more)

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Exit Codes:
  0  Every binary is static and every present sidecar verifies
  1  At least one check failed
  2  Usage error
`)
	}

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintf(os.Stderr, "Error: at least one binary is required\n\n")
		fs.Usage()
		return 2
	}

	analyzer := adapters.NewBinaryAnalyzerGateway()
	checksums := adapters.NewChecksumVerifier()
	var sigVerifier interface {
		VerifyGPGSignatureFromFile(filePath, sigPath string) error
	}
	if keyPath != "" {
		v, err := adapters.NewGPGVerifierFromLocation(ctx, keyPath)
		if err != nil {
			color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
			return 2
		}
		sigVerifier = v
	}

	code := 0
	for _, path := range fs.Args() {
		fmt.Printf("🔍 %s\n", path)
		var failures []error

		report, err := analyzer.InspectLinkage(path)
		if err != nil {
			failures = append(failures, err)
		} else {
			fmt.Printf("   Machine: %s\n", report.Machine)
			if report.Interpreter != "" {
				fmt.Printf("   Interpreter: %s\n", report.Interpreter)
			}
			if len(report.NeededLibs) > 0 {
				fmt.Printf("   Needed: %s\n", strings.Join(report.NeededLibs, ", "))
			}
			if !inspectOnly {
				if _, err := analyzer.VerifyStatic(path); err != nil {
					failures = append(failures, err)
				}
			}
		}

		//nolint:gosec // G304: sidecar of a user-provided binary
		content, err := os.ReadFile(path + services.ChecksumSuffix)
		if err == nil {
			digest, err := checksums.ParseChecksumFile(string(content), filepath.Base(path))
			if err == nil {
				err = checksums.VerifyChecksum(ctx, path, digest)
			}
			if err != nil {
				failures = append(failures, fmt.Errorf("checksum: %w", err))
			} else {
				fmt.Printf("   SHA256: %s\n", digest)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			failures = append(failures, err)
		}

		if sigVerifier != nil {
			if err := sigVerifier.VerifyGPGSignatureFromFile(path, path+services.SignatureSuffix); err != nil {
				failures = append(failures, err)
			} else {
				fmt.Println("   Signature: valid")
			}
		}

		if len(failures) > 0 {
			code = 1
			for _, f := range failures {
				fmt.Printf("   %s %v\n", color.RedString("❌"), f)
			}
			continue
		}
		fmt.Printf("   %s\n", color.GreenString("✅ verified"))
	}
	return code
}

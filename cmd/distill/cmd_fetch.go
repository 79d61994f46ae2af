package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	adapters "github.com/ochairo/distill/internal/domain-adapters/gateways"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
	"github.com/ochairo/distill/internal/domain/services"
)

func runFetch(ctx context.Context, args []string) int {
	fs := pflag.NewFlagSet("fetch", pflag.ContinueOnError)
	var (
		common    commonFlags
		outputDir string
		verify    bool
	)
	common.register(fs)
	fs.StringVarP(&outputDir, "output-dir", "o", ".", "Directory to write artifacts to")
	fs.BoolVar(&verify, "verify", true, "Check each artifact against its published .sha256")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: distill fetch <name>... [options]

Download published artifacts of a revision from the store.

Arguments:
  name   Published artifact name (one or more)

Options:
`)
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, `
Examples:
  distill fetch THIRD_PARTY_LICENSES-1a2b3c4.md --revision 1a2b3c4
  distill fetch piconfig2uboot-1a2b3c4-arm-unknown-linux-musleabihf-static -o dist
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
		fmt.Fprintf(os.Stderr, "Error: at least one artifact name is required\n\n")
		fs.Usage()
		return 2
	}

	_, _, st, closeStore, err := openStoreSession(ctx, &common)
	if err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}
	defer closeStore()

	if err := os.MkdirAll(outputDir, 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 2
	}

	code := 0
	for _, name := range fs.Args() {
		path := filepath.Join(outputDir, filepath.Base(name))
		if err := fetchArtifact(ctx, st, name, path, verify); err != nil {
			fmt.Printf("❌ %s: %v\n", name, err)
			code = 1
			continue
		}
		fmt.Printf("✅ %s → %s\n", name, path)
	}
	return code
}

func fetchArtifact(ctx context.Context, st gateways.ArtifactStore, name, path string, verify bool) error {
	if err := download(ctx, st, name, path); err != nil {
		return err
	}
	if !verify || services.IsSidecar(name) {
		return nil
	}

	rc, err := st.Get(ctx, name+services.ChecksumSuffix)
	if err != nil {
		return fmt.Errorf("failed to fetch checksum: %w", err)
	}
	//nolint:errcheck // Defer close
	defer rc.Close()
	content, err := io.ReadAll(io.LimitReader(rc, 4096))
	if err != nil {
		return fmt.Errorf("failed to read checksum: %w", err)
	}

	verifier := adapters.NewChecksumVerifier()
	digest, err := verifier.ParseChecksumFile(string(content), name)
	if err != nil {
		return err
	}
	return verifier.VerifyChecksum(ctx, path, digest)
}

func download(ctx context.Context, st gateways.ArtifactStore, name, path string) error {
	rc, err := st.Get(ctx, name)
	if err != nil {
		return err
	}
	//nolint:errcheck // Defer close
	defer rc.Close()

	//nolint:gosec // G304: path is under the requested output directory
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(f, rc); err != nil {
		//nolint:errcheck // Already failing
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

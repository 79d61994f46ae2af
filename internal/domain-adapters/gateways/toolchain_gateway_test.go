package gateways

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

type fakeDownloader struct {
	urls []string
	err  error
}

func (f *fakeDownloader) DownloadFile(_ context.Context, url, outputPath string) error {
	f.urls = append(f.urls, url)
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(outputPath, []byte("#!/bin/sh\n"), 0600)
}

func newTestRustup(runner *recordingRunner, dl *fakeDownloader, t *testing.T) *rustupGateway {
	g := NewRustupGateway(runner, dl, &interfaces.NoOpLogger{}, 0, map[string]string{"CARGO_HOME": "/cargo"})
	g.tempDir = t.TempDir()
	return g
}

func TestRustupGateway_EnsureToolchainPresent(t *testing.T) {
	runner := newRecordingRunner()
	dl := &fakeDownloader{}
	g := newTestRustup(runner, dl, t)

	cfg := entities.ToolchainConfig{Channel: "1.79.0", InstallerURL: "https://sh.rustup.rs", Components: []string{"rustfmt"}}
	if _, err := g.EnsureToolchain(context.Background(), cfg); err != nil {
		t.Fatalf("EnsureToolchain() error = %v", err)
	}

	want := []string{
		"cargo --version",
		"rustup component add --toolchain 1.79.0 rustfmt",
	}
	if diff := cmp.Diff(want, runner.lines()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
	if len(dl.urls) != 0 {
		t.Errorf("installer downloaded although cargo is present: %v", dl.urls)
	}
}

func TestRustupGateway_EnsureToolchainInstalls(t *testing.T) {
	runner := newRecordingRunner()
	runner.fail["cargo --version"] = true
	dl := &fakeDownloader{}
	g := newTestRustup(runner, dl, t)

	cfg := entities.ToolchainConfig{InstallerURL: "https://sh.rustup.rs"}
	if _, err := g.EnsureToolchain(context.Background(), cfg); err != nil {
		t.Fatalf("EnsureToolchain() error = %v", err)
	}

	if len(dl.urls) != 1 || dl.urls[0] != cfg.InstallerURL {
		t.Errorf("downloads = %v", dl.urls)
	}
	lines := runner.lines()
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "sh ") || !strings.HasSuffix(lines[1], "-y --profile minimal --default-toolchain stable") {
		t.Errorf("commands = %v", lines)
	}
}

func TestRustupGateway_EnsureToolchainInstallerFails(t *testing.T) {
	runner := newRecordingRunner()
	runner.fail["cargo --version"] = true

	g := newTestRustup(runner, &fakeDownloader{err: errors.New("HTTP 503")}, t)
	_, err := g.EnsureToolchain(context.Background(), entities.ToolchainConfig{InstallerURL: "https://sh.rustup.rs"})
	if err == nil || !strings.Contains(err.Error(), "HTTP 503") {
		t.Errorf("EnsureToolchain() error = %v", err)
	}

	g = newTestRustup(runner, &fakeDownloader{}, t)
	if _, err := g.EnsureToolchain(context.Background(), entities.ToolchainConfig{}); err == nil {
		t.Error("EnsureToolchain() expected error without installer")
	}
}

func TestRustupGateway_InstallCargoTool(t *testing.T) {
	runner := newRecordingRunner()
	runner.fail["cargo deny --version"] = true
	g := newTestRustup(runner, &fakeDownloader{}, t)

	for _, tool := range []string{"cargo-bundle-licenses", "cargo-deny"} {
		if _, err := g.InstallCargoTool(context.Background(), tool); err != nil {
			t.Fatalf("InstallCargoTool(%s) error = %v", tool, err)
		}
	}

	want := []string{
		"cargo bundle-licenses --version",
		"cargo deny --version",
		"cargo install --locked cargo-deny",
	}
	if diff := cmp.Diff(want, runner.lines()); diff != "" {
		t.Errorf("commands mismatch (-want +got):\n%s", diff)
	}
}

func TestRustupGateway_InstallSystemPackages(t *testing.T) {
	runner := newRecordingRunner()
	g := newTestRustup(runner, &fakeDownloader{}, t)
	ctx := context.Background()

	if _, err := g.InstallSystemPackages(ctx, "apt-get install -y", nil); err != nil {
		t.Fatalf("InstallSystemPackages(nil) error = %v", err)
	}
	if len(runner.calls) != 0 {
		t.Errorf("no packages should run nothing, ran %v", runner.lines())
	}

	if _, err := g.InstallSystemPackages(ctx, "apt-get install -y", []string{"gcc-arm-linux-gnueabihf"}); err != nil {
		t.Fatalf("InstallSystemPackages() error = %v", err)
	}
	if len(runner.scripts) != 1 || runner.scripts[0] != "apt-get install -y gcc-arm-linux-gnueabihf" {
		t.Errorf("scripts = %v", runner.scripts)
	}

	if _, err := g.InstallSystemPackages(ctx, "", []string{"gcc"}); err == nil {
		t.Error("InstallSystemPackages() expected error without install prefix")
	}
}

func TestRustupGateway_AddTargetFailure(t *testing.T) {
	runner := newRecordingRunner()
	runner.fail["rustup target add bogus-triple"] = true
	runner.outputs["rustup target add bogus-triple"] = &gateways.CommandOutput{Stderr: "error: toolchain does not support target"}

	g := newTestRustup(runner, &fakeDownloader{}, t)
	out, err := g.AddTarget(context.Background(), "bogus-triple")
	if err == nil {
		t.Fatal("AddTarget() expected error")
	}
	if !strings.Contains(out.Combined(), "does not support target") {
		t.Errorf("AddTarget() output = %q, want installer stderr", out.Combined())
	}
}

package orchestrators

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ochairo/distill/internal/domain/entities"
	"github.com/ochairo/distill/internal/domain/interfaces/gateways"
)

const testRevision = "1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b"

// mockSource creates an empty checkout directory
type mockSource struct {
	mu         sync.Mutex
	checkouts  []string
	err        error
	resolveErr error
}

func (m *mockSource) Checkout(_ context.Context, _, revision, dir string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", err
	}
	m.mu.Lock()
	m.checkouts = append(m.checkouts, dir)
	m.mu.Unlock()
	if revision == "" {
		revision = testRevision
	}
	return revision, nil
}

func (m *mockSource) Resolve(_ context.Context, _, revision string) (string, error) {
	if m.resolveErr != nil {
		return "", m.resolveErr
	}
	if revision == "" {
		return testRevision, nil
	}
	return revision, nil
}

// writeBinary creates a fake release binary in a checkout
func writeBinary(dir, triple, binary string) error {
	path := filepath.Join(dir, "target", triple, "release", binary)
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("binary for "+triple), 0600)
}

type mockCargo struct {
	binary string

	fmtErr    error
	testErr   error
	deps      []entities.DependencyRecord
	depsErr   error
	bundled   []entities.BundledPackage
	bundleErr error
	denyErr   error
	failBuild map[string]bool

	mu     sync.Mutex
	calls  []string
	builds []string
}

func (m *mockCargo) record(call string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

func (m *mockCargo) called(call string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.calls {
		if c == call {
			return true
		}
	}
	return false
}

func output(err error, stdout, stderr string) (*gateways.CommandOutput, error) {
	out := &gateways.CommandOutput{Stdout: stdout, Stderr: stderr}
	if err != nil {
		out.ExitCode = 1
	}
	return out, err
}

func (m *mockCargo) CheckFormat(_ context.Context, _ string) (*gateways.CommandOutput, error) {
	m.record("fmt")
	if m.fmtErr != nil {
		return output(m.fmtErr, "Diff in src/main.rs at line 3", "")
	}
	return output(nil, "", "")
}

func (m *mockCargo) Test(_ context.Context, _ string) (*gateways.CommandOutput, error) {
	m.record("test")
	if m.testErr != nil {
		return output(m.testErr, "test parse_config ... FAILED", "")
	}
	return output(nil, "test result: ok", "")
}

func (m *mockCargo) Dependencies(_ context.Context, _ string) ([]entities.DependencyRecord, error) {
	m.record("metadata")
	return m.deps, m.depsErr
}

func (m *mockCargo) BundleLicenses(_ context.Context, _ string) ([]entities.BundledPackage, error) {
	m.record("bundle-licenses")
	return m.bundled, m.bundleErr
}

func (m *mockCargo) Deny(_ context.Context, _, _ string) (*gateways.CommandOutput, error) {
	m.record("deny")
	if m.denyErr != nil {
		return output(m.denyErr, "", "error[rejected]: failed to satisfy license requirements")
	}
	return output(nil, "", "")
}

func (m *mockCargo) BuildCommand(target entities.BuildTarget) []string {
	return []string{"cargo", "build", "--release", "--target", target.Triple}
}

func (m *mockCargo) Build(_ context.Context, dir string, target entities.BuildTarget) (*gateways.CommandOutput, error) {
	m.record("build " + target.Triple)
	m.mu.Lock()
	m.builds = append(m.builds, target.Name)
	m.mu.Unlock()
	if m.failBuild[target.Triple] {
		return output(errors.New("exit status 101"), "", "error: linker `cc` not found")
	}
	return output(writeBinary(dir, target.Triple, m.binary), "", "Finished release")
}

func (m *mockCargo) buildCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.builds)
}

type mockToolchain struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]bool
}

func (m *mockToolchain) call(name string) (*gateways.CommandOutput, error) {
	m.mu.Lock()
	m.calls = append(m.calls, name)
	fail := m.fail[name]
	m.mu.Unlock()
	if fail {
		return output(errors.New("exit status 1"), "", name+": installer failed")
	}
	return output(nil, "", "")
}

func (m *mockToolchain) EnsureToolchain(_ context.Context, cfg entities.ToolchainConfig) (*gateways.CommandOutput, error) {
	return m.call("toolchain " + cfg.Channel)
}

func (m *mockToolchain) AddTarget(_ context.Context, triple string) (*gateways.CommandOutput, error) {
	return m.call("target " + triple)
}

func (m *mockToolchain) InstallSystemPackages(_ context.Context, _ string, packages []string) (*gateways.CommandOutput, error) {
	return m.call("packages " + strings.Join(packages, " "))
}

func (m *mockToolchain) InstallCargoTool(_ context.Context, tool string) (*gateways.CommandOutput, error) {
	return m.call("tool " + tool)
}

// mockContainers answers the target check and builds by writing the binary
// into the mounted checkout
type mockContainers struct {
	binary    string
	installed string
	pullErr   error
	failBuild bool

	mu    sync.Mutex
	pulls []string
	runs  []gateways.ContainerRunSpec
}

func (m *mockContainers) PullImage(_ context.Context, image string) (*gateways.CommandOutput, error) {
	m.mu.Lock()
	m.pulls = append(m.pulls, image)
	m.mu.Unlock()
	if m.pullErr != nil {
		return output(m.pullErr, "", "manifest unknown")
	}
	return output(nil, "", "")
}

func (m *mockContainers) Run(_ context.Context, spec gateways.ContainerRunSpec) (*gateways.CommandOutput, error) {
	m.mu.Lock()
	m.runs = append(m.runs, spec)
	m.mu.Unlock()

	if spec.Command[0] == "rustup" {
		return output(nil, m.installed, "")
	}
	if m.failBuild {
		return output(errors.New("exit status 101"), "", "error: could not compile")
	}
	for host := range spec.Mounts {
		triple := spec.Command[len(spec.Command)-1]
		return output(writeBinary(host, triple, m.binary), "", "")
	}
	return output(errors.New("no mount"), "", "")
}

type mockVerifier struct {
	err error
}

func (m *mockVerifier) VerifyStatic(path string) (*entities.LinkageReport, error) {
	if m.err != nil {
		return &entities.LinkageReport{Path: path, NeededLibs: []string{"libc.so.6"}}, m.err
	}
	return &entities.LinkageReport{Path: path}, nil
}

type mockFetcher struct {
	text string
	err  error
}

func (m *mockFetcher) FetchText(_ context.Context, _ string) (string, error) {
	return m.text, m.err
}

type mockAdvisories struct {
	advisories map[string][]entities.Advisory
	err        error
	queried    int
}

func (m *mockAdvisories) QueryAdvisories(_ context.Context, dep entities.DependencyRecord) ([]entities.Advisory, error) {
	m.queried++
	if m.err != nil {
		return nil, m.err
	}
	return m.advisories[dep.Key()], nil
}

// memoryStore keeps uploads in memory
type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: map[string][]byte{}}
}

func (m *memoryStore) Put(_ context.Context, name string, content io.Reader) error {
	if name == m.failOn {
		return errors.New("503 Service Unavailable")
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = data
	return nil
}

func (m *memoryStore) Get(_ context.Context, name string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, gateways.ErrArtifactNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for name := range m.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *memoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, name)
	return nil
}

func (m *memoryStore) names() []string {
	names, _ := m.List(context.Background(), "")
	return names
}

type mockSigner struct{}

func (mockSigner) SignDetached(message io.Reader) ([]byte, error) {
	data, err := io.ReadAll(message)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("-----BEGIN PGP SIGNATURE-----\n%d\n-----END PGP SIGNATURE-----\n", len(data))), nil
}

// testEnvironment returns an environment rooted in a temporary work dir
func testEnvironment(t *testing.T) entities.Environment {
	t.Helper()
	return entities.Environment{
		Crate:          entities.CrateInfo{Name: "piconfig2uboot", Binary: "piconfig2uboot", Version: "0.3.1"},
		Repository:     "https://github.com/ochairo/piconfig2uboot",
		Revision:       testRevision,
		WorkDir:        t.TempDir(),
		Toolchain:      entities.ToolchainConfig{Channel: "stable", PackageInstall: "apt-get install -y"},
		Policy:         entities.DefaultLicensePolicy(),
		PolicyPath:     "deny.toml",
		Runtime:        entities.DefaultRuntimeAddendum(),
		CommandTimeout: time.Minute,
	}
}

const cratesIO = "registry+https://github.com/rust-lang/crates.io-index"

func testDependencies() []entities.DependencyRecord {
	return []entities.DependencyRecord{
		{Name: "clap", Version: "4.5.4", License: "MIT OR Apache-2.0", Source: entities.SourcePackageManager, Registry: cratesIO},
		{Name: "strsim", Version: "0.11.1", License: "MIT", Source: entities.SourcePackageManager, Registry: cratesIO},
	}
}

func testBundle() []entities.BundledPackage {
	return []entities.BundledPackage{
		{Name: "clap", Version: "4.5.4", License: "MIT OR Apache-2.0", Licenses: []entities.LicenseText{
			{ID: "Apache-2.0", Text: "Apache License 2.0"},
			{ID: "MIT", Text: "MIT License (clap)"},
		}},
		{Name: "strsim", Version: "0.11.1", License: "MIT", Licenses: []entities.LicenseText{
			{ID: "MIT", Text: "MIT License (strsim)"},
		}},
	}
}

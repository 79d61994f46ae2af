package entities

import "fmt"

// DependencySource says where a dependency record came from
type DependencySource string

// Dependency sources
const (
	SourcePackageManager DependencySource = "package_manager"
	SourceSystemRuntime  DependencySource = "system_runtime"
)

// DependencyRecord is one resolved dependency of the build. Records are
// collected fresh on every run.
type DependencyRecord struct {
	Name       string
	Version    string
	License    string // declared SPDX expression, e.g. "MIT OR Apache-2.0"
	Source     DependencySource
	Registry   string // cargo source id, empty for path dependencies
	Repository string
}

// Key identifies a record by name and version
func (d DependencyRecord) Key() string {
	return fmt.Sprintf("%s@%s", d.Name, d.Version)
}

// LicenseText is one license offered by a package, with its full text
type LicenseText struct {
	ID   string
	Text string
}

// BundledPackage is a package with the license texts collected for it by
// the license bundler.
type BundledPackage struct {
	Name     string
	Version  string
	License  string
	Licenses []LicenseText
}

// Key identifies a bundled package by name and version
func (p BundledPackage) Key() string {
	return fmt.Sprintf("%s@%s", p.Name, p.Version)
}

// RuntimeAddendum describes the C runtime library that the package manager
// never sees. Its license text is fetched from URL on every run.
type RuntimeAddendum struct {
	Name    string
	Version string
	License string
	URL     string
}

// Record returns the synthetic dependency record for the runtime
func (a RuntimeAddendum) Record() DependencyRecord {
	return DependencyRecord{
		Name:    a.Name,
		Version: a.Version,
		License: a.License,
		Source:  SourceSystemRuntime,
	}
}

// DefaultRuntimeAddendum is musl libc, linked into the static target
func DefaultRuntimeAddendum() RuntimeAddendum {
	return RuntimeAddendum{
		Name:    "musl",
		Version: "1.2.5",
		License: "MIT",
		URL:     "https://git.musl-libc.org/cgit/musl/plain/COPYRIGHT",
	}
}

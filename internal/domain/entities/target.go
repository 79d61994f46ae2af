package entities

import (
	"fmt"
	"strings"
)

// Linkage describes how the C runtime is linked into a binary
type Linkage string

// Supported runtime linkages
const (
	LinkageDynamic Linkage = "dynamic"
	LinkageStatic  Linkage = "static"
)

// BuildTarget is a static declaration of one (triple, linkage) pair to build.
// Targets are enumerated at configuration time and never mutated.
type BuildTarget struct {
	Name                  string   // e.g. "arm-v7-dynamic"
	Triple                string   // e.g. "armv7-unknown-linux-gnueabihf"
	Linkage               Linkage  // dynamic or static
	ToolchainRequirements []string // system packages needed on the build host
	Linker                string   // optional cross linker, exported as CARGO_TARGET_<TRIPLE>_LINKER
	Container             string   // container image; empty means the host builds it
}

// Containerized reports whether the target builds inside a disposable container
func (t BuildTarget) Containerized() bool {
	return t.Container != ""
}

// Static reports whether the target produces a fully static binary
func (t BuildTarget) Static() bool {
	return t.Linkage == LinkageStatic
}

// Validate checks that the target declaration is usable
func (t BuildTarget) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("target must have a name")
	}
	if strings.Count(t.Triple, "-") < 2 {
		return fmt.Errorf("target %s: invalid triple %q", t.Name, t.Triple)
	}
	switch t.Linkage {
	case LinkageDynamic, LinkageStatic:
	default:
		return fmt.Errorf("target %s: unknown linkage %q", t.Name, t.Linkage)
	}
	return nil
}

// LinkerEnvKey returns the cargo environment variable that selects the linker
// for this target, e.g. CARGO_TARGET_ARMV7_UNKNOWN_LINUX_GNUEABIHF_LINKER.
func (t BuildTarget) LinkerEnvKey() string {
	key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(t.Triple))
	return "CARGO_TARGET_" + key + "_LINKER"
}

// StaticRustFlags links the C runtime statically
const StaticRustFlags = "-C target-feature=+crt-static"

// BuildEnv returns the environment a release build of the target needs
func (t BuildTarget) BuildEnv() map[string]string {
	env := make(map[string]string)
	if t.Linker != "" {
		env[t.LinkerEnvKey()] = t.Linker
	}
	if t.Static() {
		env["RUSTFLAGS"] = StaticRustFlags
	}
	return env
}

// DeclaredTargets returns the fixed set of release targets
func DeclaredTargets() []BuildTarget {
	return []BuildTarget{
		{
			Name:    "native-x86_64-dynamic",
			Triple:  "x86_64-unknown-linux-gnu",
			Linkage: LinkageDynamic,
		},
		{
			Name:                  "arm-v7-dynamic",
			Triple:                "armv7-unknown-linux-gnueabihf",
			Linkage:               LinkageDynamic,
			ToolchainRequirements: []string{"gcc-arm-linux-gnueabihf"},
			Linker:                "arm-linux-gnueabihf-gcc",
		},
		{
			Name:      "arm-v6-static-musl",
			Triple:    "arm-unknown-linux-musleabihf",
			Linkage:   LinkageStatic,
			Container: "messense/rust-musl-cross:arm-musleabihf",
		},
	}
}

// FindTarget looks up a target by name
func FindTarget(targets []BuildTarget, name string) (BuildTarget, bool) {
	for _, t := range targets {
		if t.Name == name {
			return t, true
		}
	}
	return BuildTarget{}, false
}

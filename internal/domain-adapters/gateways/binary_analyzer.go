package gateways

import (
	"debug/elf"
	"fmt"
	"strings"

	"github.com/ochairo/distill/internal/domain/entities"
)

// binaryAnalyzerGateway reads ELF linkage information using debug/elf, so no
// host tools such as readelf or ldd are required.
type binaryAnalyzerGateway struct{}

// NewBinaryAnalyzerGateway creates a new binary analyzer gateway
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewBinaryAnalyzerGateway() *binaryAnalyzerGateway {
	return &binaryAnalyzerGateway{}
}

// InspectLinkage reports the program interpreter and the shared libraries a
// binary requests at load time.
func (g *binaryAnalyzerGateway) InspectLinkage(binaryPath string) (*entities.LinkageReport, error) {
	f, err := elf.Open(binaryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open ELF file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	report := &entities.LinkageReport{
		Path:    binaryPath,
		Machine: f.Machine.String(),
		PIE:     f.Type == elf.ET_DYN,
	}

	for _, prog := range f.Progs {
		switch prog.Type {
		case elf.PT_INTERP:
			data := make([]byte, prog.Filesz)
			if _, err := prog.ReadAt(data, 0); err != nil {
				return nil, fmt.Errorf("failed to read interpreter: %w", err)
			}
			report.Interpreter = strings.TrimRight(string(data), "\x00")
		case elf.PT_DYNAMIC:
			report.HasDynamic = true
		}
	}

	// Static-pie binaries carry a dynamic section without DT_NEEDED entries
	if report.HasDynamic {
		libs, err := f.ImportedLibraries()
		if err != nil {
			return nil, fmt.Errorf("failed to read dynamic section: %w", err)
		}
		report.NeededLibs = libs
	}

	return report, nil
}

// VerifyStatic fails when the binary needs an interpreter or shared libraries
func (g *binaryAnalyzerGateway) VerifyStatic(binaryPath string) (*entities.LinkageReport, error) {
	report, err := g.InspectLinkage(binaryPath)
	if err != nil {
		return nil, err
	}
	if !report.FullyStatic() {
		var reasons []string
		if report.Interpreter != "" {
			reasons = append(reasons, "interpreter "+report.Interpreter)
		}
		if len(report.NeededLibs) > 0 {
			reasons = append(reasons, "needs "+strings.Join(report.NeededLibs, ", "))
		}
		return report, fmt.Errorf("%s is not fully static: %s", binaryPath, strings.Join(reasons, "; "))
	}
	return report, nil
}

package gateways

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// writeELF writes a minimal ELF64 executable with a PT_LOAD segment and, when
// interp is set, a PT_INTERP segment.
func writeELF(t *testing.T, interp string) string {
	t.Helper()

	const headerSize, progSize = 64, 56
	progs := []elf.Prog64{{Type: uint32(elf.PT_LOAD), Flags: uint32(elf.PF_R | elf.PF_X), Align: 0x1000}}
	if interp != "" {
		progs = append(progs, elf.Prog64{Type: uint32(elf.PT_INTERP), Flags: uint32(elf.PF_R), Align: 1})
	}
	dataOff := uint64(headerSize + progSize*len(progs))
	interpData := append([]byte(interp), 0)
	if interp != "" {
		progs[1].Off = dataOff
		progs[1].Filesz = uint64(len(interpData))
		progs[1].Memsz = uint64(len(interpData))
	}

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	header := elf.Header64{
		Ident:     ident,
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(elf.EM_X86_64),
		Version:   uint32(elf.EV_CURRENT),
		Phoff:     headerSize,
		Ehsize:    headerSize,
		Phentsize: progSize,
		Phnum:     uint16(len(progs)),
		Shentsize: 64,
	}

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, header); err != nil {
		t.Fatal(err)
	}
	for _, p := range progs {
		if err := binary.Write(&buf, binary.LittleEndian, p); err != nil {
			t.Fatal(err)
		}
	}
	if interp != "" {
		buf.Write(interpData)
	}

	path := filepath.Join(t.TempDir(), "binary")
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBinaryAnalyzer_StaticBinary(t *testing.T) {
	analyzer := NewBinaryAnalyzerGateway()
	path := writeELF(t, "")

	report, err := analyzer.VerifyStatic(path)
	if err != nil {
		t.Fatalf("VerifyStatic() error = %v", err)
	}
	if !report.FullyStatic() {
		t.Errorf("FullyStatic() = false, report %+v", report)
	}
	if report.Machine != elf.EM_X86_64.String() {
		t.Errorf("Machine = %s, want %s", report.Machine, elf.EM_X86_64)
	}
	if report.PIE {
		t.Error("PIE = true for ET_EXEC")
	}
}

func TestBinaryAnalyzer_DynamicBinary(t *testing.T) {
	analyzer := NewBinaryAnalyzerGateway()
	path := writeELF(t, "/lib/ld-linux-armhf.so.3")

	report, err := analyzer.InspectLinkage(path)
	if err != nil {
		t.Fatalf("InspectLinkage() error = %v", err)
	}
	if report.Interpreter != "/lib/ld-linux-armhf.so.3" {
		t.Errorf("Interpreter = %q", report.Interpreter)
	}

	_, err = analyzer.VerifyStatic(path)
	if err == nil {
		t.Fatal("VerifyStatic() expected error for dynamic binary")
	}
	if !strings.Contains(err.Error(), "interpreter /lib/ld-linux-armhf.so.3") {
		t.Errorf("VerifyStatic() error = %v", err)
	}
}

func TestBinaryAnalyzer_NonexistentFile(t *testing.T) {
	analyzer := NewBinaryAnalyzerGateway()

	if _, err := analyzer.InspectLinkage("/nonexistent/binary"); err == nil {
		t.Fatal("Expected error for nonexistent file, got nil")
	}
}

func TestBinaryAnalyzer_InvalidBinaryFile(t *testing.T) {
	analyzer := NewBinaryAnalyzerGateway()
	textFile := filepath.Join(t.TempDir(), "test.txt")
	if err := os.WriteFile(textFile, []byte("not a binary"), 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := analyzer.InspectLinkage(textFile); err == nil {
		t.Fatal("Expected error for invalid binary file, got nil")
	}
}

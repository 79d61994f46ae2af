package entities

// LinkageReport describes the dynamic linking requirements of a binary
type LinkageReport struct {
	Path        string
	Machine     string   // ELF machine, e.g. "EM_ARM"
	Interpreter string   // PT_INTERP contents, empty when absent
	NeededLibs  []string // DT_NEEDED entries
	HasDynamic  bool     // binary carries a PT_DYNAMIC segment
	PIE         bool
}

// FullyStatic reports whether the binary has an empty dynamic-link table
func (r *LinkageReport) FullyStatic() bool {
	return r.Interpreter == "" && len(r.NeededLibs) == 0
}

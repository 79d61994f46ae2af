package entities

// Advisory is a published security advisory affecting a dependency
type Advisory struct {
	ID         string
	Aliases    []string
	Summary    string
	Severity   string // CRITICAL, HIGH, MEDIUM, LOW, UNKNOWN
	Dependency string
	Version    string
}

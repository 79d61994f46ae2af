package toml

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/ochairo/distill/internal/domain/entities"
)

type cargoTOML struct {
	Package struct {
		Name    string `toml:"name"`
		Version any    `toml:"version"`
	} `toml:"package"`
	Bin []struct {
		Name string `toml:"name"`
	} `toml:"bin"`
}

// LoadCrate reads the crate name, binary and version from a Cargo.toml
func LoadCrate(path string) (entities.CrateInfo, error) {
	//nolint:gosec // G304: path is the Cargo.toml of the checkout
	data, err := os.ReadFile(path)
	if err != nil {
		return entities.CrateInfo{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return ParseCrate(data)
}

// ParseCrate decodes Cargo.toml content. The binary is the first [[bin]]
// target, or the package name when none is declared. A version inherited
// from the workspace is left empty.
func ParseCrate(data []byte) (entities.CrateInfo, error) {
	var ct cargoTOML
	if err := toml.Unmarshal(data, &ct); err != nil {
		return entities.CrateInfo{}, fmt.Errorf("failed to parse Cargo.toml: %w", err)
	}
	if ct.Package.Name == "" {
		return entities.CrateInfo{}, fmt.Errorf("no package name in Cargo.toml")
	}

	info := entities.CrateInfo{Name: ct.Package.Name, Binary: ct.Package.Name}
	if v, ok := ct.Package.Version.(string); ok {
		info.Version = v
	}
	if len(ct.Bin) > 0 && ct.Bin[0].Name != "" {
		info.Binary = ct.Bin[0].Name
	}
	return info, nil
}

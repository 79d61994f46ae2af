// Package toml reads the license policy file and the crate manifest.
package toml

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/ochairo/distill/internal/domain/entities"
)

// denyTOML mirrors the subset of the cargo-deny configuration distill
// evaluates itself. Entries that cargo-deny accepts either as a plain string
// or as a table are decoded as any.
type denyTOML struct {
	Licenses struct {
		Allow      []string        `toml:"allow"`
		Deny       []string        `toml:"deny"`
		Exceptions []denyException `toml:"exceptions"`
	} `toml:"licenses"`
	Bans struct {
		MultipleVersions string `toml:"multiple-versions"`
		Deny             []any  `toml:"deny"`
		Skip             []any  `toml:"skip"`
	} `toml:"bans"`
	Sources struct {
		UnknownRegistry string   `toml:"unknown-registry"`
		UnknownGit      string   `toml:"unknown-git"`
		AllowRegistry   []string `toml:"allow-registry"`
		AllowGit        []string `toml:"allow-git"`
	} `toml:"sources"`
	Advisories struct {
		Vulnerability string `toml:"vulnerability"`
		Ignore        []any  `toml:"ignore"`
	} `toml:"advisories"`
}

type denyException struct {
	Name  string   `toml:"name"`
	Crate string   `toml:"crate"`
	Allow []string `toml:"allow"`
}

// LoadPolicy reads a deny.toml file. A missing file yields the default policy.
func LoadPolicy(path string) (entities.LicensePolicy, error) {
	//nolint:gosec // G304: path is the configured policy file
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return entities.DefaultLicensePolicy(), nil
	}
	if err != nil {
		return entities.LicensePolicy{}, fmt.Errorf("failed to read policy %s: %w", path, err)
	}
	return ParsePolicy(data)
}

// ParsePolicy decodes deny.toml content. Omitted levels take the values of
// the default policy.
func ParsePolicy(data []byte) (entities.LicensePolicy, error) {
	var raw denyTOML
	if err := toml.Unmarshal(data, &raw); err != nil {
		return entities.LicensePolicy{}, fmt.Errorf("failed to parse policy: %w", err)
	}

	defaults := entities.DefaultLicensePolicy()
	policy := entities.LicensePolicy{
		Allow:           raw.Licenses.Allow,
		Deny:            raw.Licenses.Deny,
		AllowRegistries: raw.Sources.AllowRegistry,
		AllowGit:        raw.Sources.AllowGit,
	}
	if len(policy.Allow) == 0 {
		return entities.LicensePolicy{}, fmt.Errorf("policy allows no licenses")
	}
	if len(policy.AllowRegistries) == 0 {
		policy.AllowRegistries = defaults.AllowRegistries
	}

	var err error
	if policy.MultipleVersions, err = level("bans.multiple-versions", raw.Bans.MultipleVersions, defaults.MultipleVersions); err != nil {
		return entities.LicensePolicy{}, err
	}
	if policy.UnknownRegistry, err = level("sources.unknown-registry", raw.Sources.UnknownRegistry, defaults.UnknownRegistry); err != nil {
		return entities.LicensePolicy{}, err
	}
	if policy.UnknownGit, err = level("sources.unknown-git", raw.Sources.UnknownGit, defaults.UnknownGit); err != nil {
		return entities.LicensePolicy{}, err
	}
	if policy.Vulnerability, err = level("advisories.vulnerability", raw.Advisories.Vulnerability, defaults.Vulnerability); err != nil {
		return entities.LicensePolicy{}, err
	}

	for _, e := range raw.Licenses.Exceptions {
		name := e.Name
		if name == "" {
			name, _ = splitCrateSpec(e.Crate)
		}
		if name == "" {
			return entities.LicensePolicy{}, fmt.Errorf("licenses.exceptions entry without a crate name")
		}
		policy.Exceptions = append(policy.Exceptions, entities.LicenseException{Name: name, Allow: e.Allow})
	}

	for _, entry := range raw.Bans.Deny {
		name, version, err := crateEntry(entry)
		if err != nil {
			return entities.LicensePolicy{}, fmt.Errorf("bans.deny: %w", err)
		}
		policy.Banned = append(policy.Banned, entities.BannedCrate{Name: name, Version: version})
	}
	for _, entry := range raw.Bans.Skip {
		name, _, err := crateEntry(entry)
		if err != nil {
			return entities.LicensePolicy{}, fmt.Errorf("bans.skip: %w", err)
		}
		policy.MultipleVersionsSkip = append(policy.MultipleVersionsSkip, name)
	}
	for _, entry := range raw.Advisories.Ignore {
		id, err := advisoryEntry(entry)
		if err != nil {
			return entities.LicensePolicy{}, fmt.Errorf("advisories.ignore: %w", err)
		}
		policy.IgnoreAdvisories = append(policy.IgnoreAdvisories, id)
	}

	return policy, nil
}

func level(key, value string, fallback entities.PolicyLevel) (entities.PolicyLevel, error) {
	switch entities.PolicyLevel(value) {
	case "":
		return fallback, nil
	case entities.LevelAllow, entities.LevelWarn, entities.LevelDeny:
		return entities.PolicyLevel(value), nil
	}
	return "", fmt.Errorf("%s: invalid level %q", key, value)
}

// crateEntry accepts "name", "name@version", {name, version} or {crate}
func crateEntry(entry any) (name, version string, err error) {
	switch v := entry.(type) {
	case string:
		name, version = splitCrateSpec(v)
	case map[string]any:
		if s, ok := v["crate"].(string); ok {
			name, version = splitCrateSpec(s)
		}
		if s, ok := v["name"].(string); ok {
			name = s
		}
		if s, ok := v["version"].(string); ok {
			version = s
		}
	default:
		return "", "", fmt.Errorf("unsupported entry %v", entry)
	}
	if name == "" {
		return "", "", fmt.Errorf("entry without a crate name")
	}
	return name, version, nil
}

// splitCrateSpec splits "name@version" into its parts
func splitCrateSpec(spec string) (name, version string) {
	name, version, _ = strings.Cut(spec, "@")
	return name, version
}

// advisoryEntry accepts "RUSTSEC-..." or {id = "RUSTSEC-..."}
func advisoryEntry(entry any) (string, error) {
	switch v := entry.(type) {
	case string:
		return v, nil
	case map[string]any:
		if id, ok := v["id"].(string); ok && id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("unsupported entry %v", entry)
}

package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// RolePresets is an optional, deployment-specific override layer on top of
// trackstyle's and gmguidance's built-in role defaults. A deployment that
// wants a house-specific color palette or a fixed GM program per role drops
// a YAML file on disk; nothing changes for deployments that don't. Loaded
// with one yaml.Unmarshal call, no schema validation beyond what yaml.v3
// itself enforces.
type RolePresets struct {
	// ColorOverrides maps a role/instrument-name keyword to a preferred
	// named color. Matched the same case-insensitive substring way
	// trackstyle.ColorForRole matches its built-in roleColorMap, and takes
	// precedence over it.
	ColorOverrides map[string]string `yaml:"color_overrides"`

	// GMProgramOverrides maps a role to a fixed General MIDI program
	// number, taking precedence over gmguidance's name/alias matching.
	GMProgramOverrides map[string]int `yaml:"gm_program_overrides"`
}

// ColorForRole returns the preset color for role, if any override matches.
func (p *RolePresets) ColorForRole(role string) (string, bool) {
	if p == nil {
		return "", false
	}
	lower := strings.ToLower(role)
	for keyword, color := range p.ColorOverrides {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return color, true
		}
	}
	return "", false
}

// GMProgramForRole returns the preset GM program number for role, if any
// override matches.
func (p *RolePresets) GMProgramForRole(role string) (int, bool) {
	if p == nil {
		return 0, false
	}
	lower := strings.ToLower(role)
	for keyword, program := range p.GMProgramOverrides {
		if strings.Contains(lower, strings.ToLower(keyword)) {
			return program, true
		}
	}
	return 0, false
}

// LoadRolePresets reads and parses a YAML role-preset file. A missing file
// is not an error; callers fall back to the built-in defaults.
func LoadRolePresets(path string) (*RolePresets, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: reading role presets %q: %w", path, err)
	}
	var presets RolePresets
	if err := yaml.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("config: parsing role presets %q: %w", path, err)
	}
	return &presets, nil
}

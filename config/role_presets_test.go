package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadRolePresetsMissingFileIsNotAnError(t *testing.T) {
	presets, err := LoadRolePresets(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Nil(t, presets)
}

func TestLoadRolePresetsEmptyPathIsNotAnError(t *testing.T) {
	presets, err := LoadRolePresets("")
	require.NoError(t, err)
	require.Nil(t, presets)
}

func TestLoadRolePresetsParsesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	yamlBody := "color_overrides:\n  drums: \"#FF0000\"\ngm_program_overrides:\n  bass: 33\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	presets, err := LoadRolePresets(path)
	require.NoError(t, err)
	require.NotNil(t, presets)

	color, ok := presets.ColorForRole("Drums")
	require.True(t, ok)
	require.Equal(t, "#FF0000", color)

	program, ok := presets.GMProgramForRole("Bass")
	require.True(t, ok)
	require.Equal(t, 33, program)

	_, ok = presets.ColorForRole("Piano")
	require.False(t, ok)
}

func TestLoadRolePresetsMalformedYAMLIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("color_overrides: [this, is, not, a, map]"), 0o644))

	_, err := LoadRolePresets(path)
	require.Error(t, err)
}

func TestNilRolePresetsIsANoOp(t *testing.T) {
	var presets *RolePresets
	_, ok := presets.ColorForRole("drums")
	require.False(t, ok)
	_, ok = presets.GMProgramForRole("bass")
	require.False(t, ok)
}

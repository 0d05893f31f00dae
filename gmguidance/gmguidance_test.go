package gmguidance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestForRoleMatchesDrumsAsChannel(t *testing.T) {
	_, isDrum, ok := ForRole("Drum Kit")
	require.True(t, ok)
	require.True(t, isDrum)
}

func TestForRoleMatchesMelodicProgram(t *testing.T) {
	program, isDrum, ok := ForRole("Sub Bass")
	require.True(t, ok)
	require.False(t, isDrum)
	require.Equal(t, 38, program.Number)
}

func TestForRolePrefersLongerAlias(t *testing.T) {
	program, _, ok := ForRole("Electric Piano")
	require.True(t, ok)
	require.Equal(t, 4, program.Number)
}

func TestForRoleUnknownReturnsNotOK(t *testing.T) {
	_, _, ok := ForRole("")
	require.False(t, ok)

	_, _, ok = ForRole("zzz not an instrument zzz")
	require.False(t, ok)
}

func TestGuidanceTextForDrumsAndMelodic(t *testing.T) {
	require.Contains(t, GuidanceText("Drums"), "channel 10")
	require.Contains(t, GuidanceText("Trumpet"), "Trumpet")
	require.Equal(t, "", GuidanceText("not an instrument at all"))
}

func TestProgramsTableCoversAllGMNumbers(t *testing.T) {
	require.Len(t, Programs, 128)
	for i, p := range Programs {
		require.Equal(t, i, p.Number)
	}
}

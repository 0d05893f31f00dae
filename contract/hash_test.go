package contract

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func buildSealedComposition(t *testing.T) CompositionContract {
	t.Helper()
	s1 := SectionSpec{SectionID: "0:intro", Name: "intro", Index: 0, StartBeat: 0, DurationBeats: 64, Bars: 16, Character: "building"}
	s2 := SectionSpec{SectionID: "1:verse", Name: "verse", Index: 1, StartBeat: 64, DurationBeats: 64, Bars: 16, Character: "groove"}
	require.NoError(t, s1.Seal())
	require.NoError(t, s2.Seal())
	comp := CompositionContract{CompositionID: "comp-1", Sections: []SectionSpec{s1, s2}, Style: "house", Tempo: 120, Key: "Am"}
	require.NoError(t, comp.Seal())
	return comp
}

func TestSealAndVerify(t *testing.T) {
	comp := buildSealedComposition(t)
	require.NotEmpty(t, comp.ContractHash)
	require.Len(t, comp.ContractHash, 16)
	require.True(t, comp.Verify())
}

func TestSealTwiceFails(t *testing.T) {
	comp := buildSealedComposition(t)
	err := comp.Seal()
	require.ErrorIs(t, err, ErrAlreadySealed)
}

func TestExecutionHashDiffersByTraceID(t *testing.T) {
	comp := buildSealedComposition(t)
	h1 := ExecutionHash(comp.ContractHash, "trace-A")
	h2 := ExecutionHash(comp.ContractHash, "trace-B")
	require.NotEqual(t, h1, h2)

	// Same contract + same trace id is deterministic.
	require.Equal(t, h1, ExecutionHash(comp.ContractHash, "trace-A"))
}

func TestHashListIsOrderIndependent(t *testing.T) {
	children := []string{"aaaa111111111111", "bbbb222222222222", "cccc333333333333"}
	reversed := []string{children[2], children[1], children[0]}

	require.Equal(t, HashList(children), HashList(reversed))
}

func TestAdvisoryFieldsDoNotAffectHash(t *testing.T) {
	section := SectionSpec{SectionID: "0:intro", Name: "intro", Index: 0, StartBeat: 0, DurationBeats: 64, Bars: 16}
	require.NoError(t, section.Seal())

	ic1 := InstrumentContract{InstrumentName: "Drums", Role: "drums", Style: "house", Bars: 16, Tempo: 120, Key: "Am", Sections: []SectionSpec{section}}
	ic2 := ic1
	ic1.AssignedColor = "red"
	ic1.GMGuidance = "use a tight 909 kit"
	ic1.ExistingTrackID = "track-123"

	require.NoError(t, ic1.Seal("parent-hash"))
	require.NoError(t, ic2.Seal("parent-hash"))
	require.Equal(t, ic1.ContractHash, ic2.ContractHash)
}

func TestCompositionHashIsOrderIndependentOverSections(t *testing.T) {
	s1 := SectionSpec{SectionID: "0:intro", Name: "intro", Index: 0, StartBeat: 0, DurationBeats: 64, Bars: 16}
	s2 := SectionSpec{SectionID: "1:verse", Name: "verse", Index: 1, StartBeat: 64, DurationBeats: 64, Bars: 16}
	require.NoError(t, s1.Seal())
	require.NoError(t, s2.Seal())

	c1 := CompositionContract{CompositionID: "c", Sections: []SectionSpec{s1, s2}, Style: "house", Tempo: 120, Key: "Am"}
	c2 := CompositionContract{CompositionID: "c", Sections: []SectionSpec{s2, s1}, Style: "house", Tempo: 120, Key: "Am"}
	require.NoError(t, c1.Seal())
	require.NoError(t, c2.Seal())
	require.Equal(t, c1.ContractHash, c2.ContractHash)
}

func TestCanonicalizationIsIdempotent(t *testing.T) {
	section := SectionSpec{SectionID: "0:intro", Name: "intro", Index: 0, StartBeat: 0, DurationBeats: 64, Bars: 16}
	h1, err := computeHash(section.canonicalDict())
	require.NoError(t, err)

	// Re-canonicalizing the decoded canonical form must give the same hash.
	data, err := canonicalJSON(section.canonicalDict())
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	h2, err := computeHash(decoded)
	require.NoError(t, err)
	require.Equal(t, h1, h2)
}

func TestSealRequiresSectionsSealedFirst(t *testing.T) {
	unsealed := SectionSpec{SectionID: "0:intro", Name: "intro"}
	comp := CompositionContract{CompositionID: "c", Sections: []SectionSpec{unsealed}}
	err := comp.Seal()
	require.ErrorIs(t, err, ErrNotSealed)
}

func TestSectionContractLineage(t *testing.T) {
	section := SectionSpec{SectionID: "0:intro", Name: "intro", Index: 0, StartBeat: 0, DurationBeats: 64, Bars: 16}
	require.NoError(t, section.Seal())

	ic := InstrumentContract{InstrumentName: "Bass", Role: "bass", Style: "house", Bars: 16, Tempo: 120, Key: "Am", Sections: []SectionSpec{section}}
	require.NoError(t, ic.Seal("composition-hash"))

	sc := SectionContract{Section: section, TrackID: "track-1", InstrumentName: "Bass", Role: "bass", Style: "house", Tempo: 120, Key: "Am"}
	require.NoError(t, sc.Seal(ic.ContractHash))
	require.Equal(t, ic.ContractHash, sc.ParentContractHash)
	require.True(t, sc.Verify())
}

package statestore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stori-audio/maestro-agents/config"
	"github.com/stori-audio/maestro-agents/logger"
)

func newTestStore() *StateStore {
	return New(config.Default(), logger.NoOpLogger{})
}

func TestCreateTrackAppendsEvent(t *testing.T) {
	s := newTestStore()
	id, err := s.CreateTrack("Lead Synth", "", nil, nil)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	events := s.GetEventsSince(0)
	require.Len(t, events, 1)
	require.Equal(t, EventTrackCreated, events[0].Type)
	require.Equal(t, id, events[0].EntityID)
}

func TestResolveTrackCaseInsensitivePrefix(t *testing.T) {
	s := newTestStore()
	id, err := s.CreateTrack("Lead Synth", "", nil, nil)
	require.NoError(t, err)

	got, ok := s.ResolveTrack("lead synth", false)
	require.True(t, ok)
	require.Equal(t, id, got)

	got, ok = s.ResolveTrack("lead", false)
	require.True(t, ok)
	require.Equal(t, id, got)

	_, ok = s.ResolveTrack("lead", true)
	require.False(t, ok)
}

func TestCreateRegionOverlapIsIdempotent(t *testing.T) {
	s := newTestStore()
	trackID, err := s.CreateTrack("Bass", "", nil, nil)
	require.NoError(t, err)

	id1, created1, err := s.CreateRegion("verse", trackID, 0, 16, "", nil)
	require.NoError(t, err)
	require.True(t, created1)

	id2, created2, err := s.CreateRegion("verse-again", trackID, 4, 16, "", nil)
	require.NoError(t, err)
	require.False(t, created2)
	require.Equal(t, id1, id2)

	events := s.GetEventsSince(0)
	regionCreatedCount := 0
	for _, e := range events {
		if e.Type == EventRegionCreated {
			regionCreatedCount++
		}
	}
	require.Equal(t, 1, regionCreatedCount)
}

func TestCreateRegionNonOverlappingCreatesNew(t *testing.T) {
	s := newTestStore()
	trackID, err := s.CreateTrack("Bass", "", nil, nil)
	require.NoError(t, err)

	id1, _, err := s.CreateRegion("verse", trackID, 0, 16, "", nil)
	require.NoError(t, err)
	id2, created, err := s.CreateRegion("chorus", trackID, 16, 16, "", nil)
	require.NoError(t, err)
	require.True(t, created)
	require.NotEqual(t, id1, id2)
}

func TestTransactionCommitKeepsEvents(t *testing.T) {
	s := newTestStore()
	tx, err := s.BeginTransaction("add bass region")
	require.NoError(t, err)

	trackID, err := s.CreateTrack("Bass", "", nil, tx)
	require.NoError(t, err)
	_, _, err = s.CreateRegion("verse", trackID, 0, 16, "", tx)
	require.NoError(t, err)

	require.NoError(t, s.Commit(tx))

	_, ok := s.GetTrack(trackID)
	require.True(t, ok)

	events := s.GetEventsSince(0)
	require.True(t, len(events) >= 3) // tx.start, track.created, region.created, tx.commit
}

func TestTransactionRollbackRestoresPriorState(t *testing.T) {
	s := newTestStore()
	preExistingID, err := s.CreateTrack("Drums", "", nil, nil)
	require.NoError(t, err)

	tx, err := s.BeginTransaction("risky edit")
	require.NoError(t, err)

	_, err = s.CreateTrack("Bass", "", nil, tx)
	require.NoError(t, err)

	require.NoError(t, s.Rollback(tx))

	_, ok := s.GetTrack(preExistingID)
	require.True(t, ok, "pre-existing track must survive rollback")

	_, ok = s.ResolveTrack("Bass", true)
	require.False(t, ok, "track created inside rolled-back transaction must not exist")

	// The rollback event itself is still recorded.
	events := s.GetEventsSince(0)
	last := events[len(events)-1]
	require.Equal(t, EventTransactionRollback, last.Type)
}

func TestBeginTransactionRejectsNesting(t *testing.T) {
	s := newTestStore()
	_, err := s.BeginTransaction("outer")
	require.NoError(t, err)

	_, err = s.BeginTransaction("inner")
	require.Error(t, err)
}

func TestAddAndRemoveNotes(t *testing.T) {
	s := newTestStore()
	trackID, err := s.CreateTrack("Pad", "", nil, nil)
	require.NoError(t, err)
	regionID, _, err := s.CreateRegion("intro", trackID, 0, 16, "", nil)
	require.NoError(t, err)

	notes := []Note{
		{Pitch: 60, StartBeat: 0, DurationBeats: 1, Velocity: 90, Channel: 0},
		{Pitch: 64, StartBeat: 1, DurationBeats: 1, Velocity: 90, Channel: 0},
	}
	require.NoError(t, s.AddNotes(regionID, notes, nil))

	reg, ok := s.GetRegion(regionID)
	require.True(t, ok)
	require.Len(t, reg.Notes, 2)

	pitch := 60
	require.NoError(t, s.RemoveNotes(regionID, []NoteCriterion{{Pitch: &pitch}}, nil))

	reg, _ = s.GetRegion(regionID)
	require.Len(t, reg.Notes, 1)
	require.Equal(t, 64, reg.Notes[0].Pitch)
}

func TestAddNotesUnknownRegionFails(t *testing.T) {
	s := newTestStore()
	err := s.AddNotes("does-not-exist", []Note{{Pitch: 60}}, nil)
	require.Error(t, err)
}

func TestGetOrCreateBusIsIdempotentByName(t *testing.T) {
	s := newTestStore()
	id1, err := s.GetOrCreateBus("Reverb Bus", nil)
	require.NoError(t, err)
	id2, err := s.GetOrCreateBus("reverb bus", nil)
	require.NoError(t, err)
	require.Equal(t, id1, id2)
}

func TestSetTempoAndKey(t *testing.T) {
	s := newTestStore()
	require.NoError(t, s.SetTempo(128, nil))
	require.NoError(t, s.SetKey("Fm", nil))
	require.Equal(t, 128, s.Tempo())
	require.Equal(t, "Fm", s.Key())
}

func TestGetEventsSinceOnlyReturnsNewer(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateTrack("Track A", "", nil, nil)
	require.NoError(t, err)
	v1 := s.Version()

	_, err = s.CreateTrack("Track B", "", nil, nil)
	require.NoError(t, err)

	events := s.GetEventsSince(v1)
	require.Len(t, events, 1)
}

func TestSyncFromClientReplacesRegistryWithoutEvents(t *testing.T) {
	s := newTestStore()
	_, err := s.CreateTrack("Old Track", "", nil, nil)
	require.NoError(t, err)
	before := s.Version()

	s.SyncFromClient(ProjectSnapshot{
		Tracks:   []Track{{ID: "t1", Name: "Imported Track"}},
		Metadata: ProjectMetadata{Tempo: 140, Key: "G"},
	})

	require.Equal(t, before, s.Version(), "sync_from_client must not append events")
	_, ok := s.ResolveTrack("Old Track", true)
	require.False(t, ok)
	_, ok = s.ResolveTrack("Imported Track", true)
	require.True(t, ok)
	require.Equal(t, 140, s.Tempo())
}

func TestSummarize(t *testing.T) {
	s := newTestStore()
	trackID, err := s.CreateTrack("Lead", "", nil, nil)
	require.NoError(t, err)
	regionID, _, err := s.CreateRegion("verse", trackID, 0, 16, "", nil)
	require.NoError(t, err)
	require.NoError(t, s.AddNotes(regionID, []Note{{Pitch: 60}, {Pitch: 62}}, nil))

	sum := s.Summarize()
	require.Equal(t, 1, sum.TrackCount)
	require.Equal(t, 1, sum.RegionCount)
	require.Equal(t, 2, sum.NoteCount)
}

package statestore

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stori-audio/maestro-agents/config"
	"github.com/stori-audio/maestro-agents/ferrors"
	"github.com/stori-audio/maestro-agents/logger"
)

// StateStore is the single-writer, per-conversation authoritative project
// state: entity registry, project metadata, event log, snapshot ring and
// at most one active transaction. All mutating methods acquire mu, so
// every write runs against a strictly serialised schedule with exactly one
// writer at a time.
type StateStore struct {
	mu sync.Mutex

	registry *registry
	metadata ProjectMetadata

	events  []StateEvent
	version int

	snapshots    []snapshot
	snapshotCap  int
	activeTx     *Transaction

	log logger.Logger
}

// New creates an empty StateStore with the default project metadata
// (120 BPM, C major, 4/4) and the snapshot ring size from cfg.
func New(cfg *config.Config, log logger.Logger) *StateStore {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.NoOpLogger{}
	}
	return &StateStore{
		registry:    newRegistry(),
		metadata:    ProjectMetadata{Tempo: 120, Key: "C", TimeSigNum: 4, TimeSigDen: 4},
		snapshotCap: cfg.SnapshotRingSize,
		log:         log,
	}
}

// GetStateID returns the store's version as a string.
func (s *StateStore) GetStateID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%d", s.version)
}

// Version returns the current monotonically increasing version.
func (s *StateStore) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// GetEventsSince returns every event appended after the given version
func (s *StateStore) GetEventsSince(version int) []StateEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]StateEvent, 0, len(s.events))
	for _, e := range s.events {
		if e.Version > version {
			out = append(out, e)
		}
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────
// Transactions
// ─────────────────────────────────────────────────────────────────────

// BeginTransaction opens a new transaction scope, first taking a snapshot
// of the current registry+metadata (so rollback has somewhere to restore
// to), then appending a transaction.start event.
func (s *StateStore) BeginTransaction(description string) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeTx.IsActive() {
		return nil, ferrors.Wrap("statestore.BeginTransaction", ferrors.KindState, ferrors.ErrTransactionActive)
	}

	s.takeSnapshotLocked()

	tx := &Transaction{
		ID:          uuid.NewString(),
		Description: description,
		StartedAt:   time.Now().UTC(),
	}
	s.activeTx = tx

	s.appendEventLocked(EventTransactionStart, "", "", map[string]interface{}{"description": description}, tx)
	tx.firstEventVersion = s.version
	tx.hasEvents = true

	s.log.Info("transaction started", "tx_id", tx.ID)
	return tx, nil
}

// Commit makes every mutation recorded under tx permanent: appends a
// transaction.commit event and clears the active transaction.
func (s *StateStore) Commit(tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx == nil || s.activeTx == nil || tx.ID != s.activeTx.ID || !tx.IsActive() {
		return ferrors.Wrap("statestore.Commit", ferrors.KindState, ferrors.ErrTransactionNotOpen)
	}

	count := s.countEventsForTx(tx.ID)
	s.appendEventLocked(EventTransactionCommit, "", "", map[string]interface{}{"event_count": count}, nil)

	tx.committed = true
	s.activeTx = nil
	s.log.Info("transaction committed", "tx_id", tx.ID, "events", count)
	return nil
}

// Rollback restores the registry and metadata to the snapshot taken just
// before tx began, discards tx's events from the log, and appends a
// transaction.rollback event. The store's version counter is never rolled
// back — it only ever increases.
func (s *StateStore) Rollback(tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx == nil || s.activeTx == nil || tx.ID != s.activeTx.ID || !tx.IsActive() {
		return ferrors.Wrap("statestore.Rollback", ferrors.KindState, ferrors.ErrTransactionNotOpen)
	}

	count := s.countEventsForTx(tx.ID)

	// Find the most recent snapshot strictly before this transaction's
	// first event version.
	var restore *snapshot
	for i := len(s.snapshots) - 1; i >= 0; i-- {
		if s.snapshots[i].version < tx.firstEventVersion {
			restore = &s.snapshots[i]
			break
		}
	}
	if restore != nil {
		s.registry.fromDict(restore.registry)
		s.metadata = restore.metadata
	}

	kept := s.events[:0:0]
	for _, e := range s.events {
		if e.TransactionID != tx.ID {
			kept = append(kept, e)
		}
	}
	s.events = kept

	s.appendEventLocked(EventTransactionRollback, "", "", map[string]interface{}{"rolled_back_events": count}, nil)

	tx.rolledBack = true
	s.activeTx = nil
	s.log.Warn("transaction rolled back", "tx_id", tx.ID, "events", count)
	return nil
}

func (s *StateStore) countEventsForTx(txID string) int {
	n := 0
	for _, e := range s.events {
		if e.TransactionID == txID {
			n++
		}
	}
	return n
}

// ─────────────────────────────────────────────────────────────────────
// Entity creation & mutation
// ─────────────────────────────────────────────────────────────────────

// CreateTrack creates a new track, or reuses id if already set by the
// caller.
func (s *StateStore) CreateTrack(name, id string, meta map[string]interface{}, tx *Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id == "" {
		id = uuid.NewString()
	}
	track := &Track{ID: id, Name: name, Metadata: meta, Volume: 1.0}
	s.registry.addTrack(track)

	s.appendEventLocked(EventTrackCreated, EntityTrack, id, map[string]interface{}{"name": name, "metadata": meta}, txOrActive(tx, s.activeTx))
	return id, nil
}

// CreateRegion creates a new region on parentTrackID, unless an existing
// region on that track overlaps [startBeat, startBeat+durationBeats) — in
// which case the existing region's id is returned and no event is
// appended.
func (s *StateStore) CreateRegion(name, parentTrackID string, startBeat, durationBeats float64, id string, tx *Transaction) (regionID string, created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if durationBeats <= 0 {
		return "", false, ferrors.Wrap("statestore.CreateRegion", ferrors.KindValidation, ferrors.ErrValidation)
	}

	if existingID, found := s.registry.findOverlappingRegion(parentTrackID, startBeat, durationBeats); found {
		existing := s.registry.regionsByID[existingID]
		if !regionsExactMatch(existing, startBeat, durationBeats) {
			s.log.Warn("region overlap with non-identical range", "track_id", parentTrackID, "existing_region", existingID)
		}
		return existingID, false, nil
	}

	if id == "" {
		id = uuid.NewString()
	}
	reg := &Region{ID: id, Name: name, ParentTrackID: parentTrackID, StartBeat: startBeat, DurationBeats: durationBeats}
	s.registry.addRegion(reg)

	s.appendEventLocked(EventRegionCreated, EntityRegion, id, map[string]interface{}{
		"name": name, "parent_track_id": parentTrackID, "start_beat": startBeat, "duration_beats": durationBeats,
	}, txOrActive(tx, s.activeTx))

	return id, true, nil
}

// FindOverlappingRegion exposes the registry lookup CreateRegion uses for
// its own overlap check.
func (s *StateStore) FindOverlappingRegion(trackID string, start, duration float64) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.findOverlappingRegion(trackID, start, duration)
}

// GetOrCreateBus returns an existing bus id by case-insensitive name, or
// creates a new one.
func (s *StateStore) GetOrCreateBus(name string, tx *Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeKey(name)
	if ids, ok := s.registry.busesByName[key]; ok && len(ids) > 0 {
		return ids[0], nil
	}

	id := uuid.NewString()
	bus := &Bus{ID: id, Name: name}
	s.registry.addBus(bus)
	s.appendEventLocked(EventBusCreated, EntityBus, id, map[string]interface{}{"name": name}, txOrActive(tx, s.activeTx))
	return id, nil
}

// SetTempo updates the project tempo.
func (s *StateStore) SetTempo(tempo int, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata.Tempo = tempo
	s.appendEventLocked(EventTempoChanged, "", "", map[string]interface{}{"tempo": tempo}, txOrActive(tx, s.activeTx))
	return nil
}

// SetKey updates the project key.
func (s *StateStore) SetKey(key string, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metadata.Key = key
	s.appendEventLocked(EventKeyChanged, "", "", map[string]interface{}{"key": key}, txOrActive(tx, s.activeTx))
	return nil
}

// Tempo and Key return the project's current tempo/key.
func (s *StateStore) Tempo() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata.Tempo
}

func (s *StateStore) Key() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metadata.Key
}

// AddNotes appends notes to regionID. Pitch and
// velocity bounds are the tool executor's responsibility; the store itself only enforces that the region
// exists.
func (s *StateStore) AddNotes(regionID string, notes []Note, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registry.regionsByID[regionID]
	if !ok {
		return ferrors.WrapID("statestore.AddNotes", ferrors.KindUnknownEntity, regionID, ferrors.ErrUnknownRegion)
	}
	reg.Notes = append(reg.Notes, notes...)
	s.appendEventLocked(EventNotesAdded, EntityRegion, regionID, map[string]interface{}{"count": len(notes)}, txOrActive(tx, s.activeTx))
	return nil
}

// RemoveNotes removes notes matching any of criteria.
func (s *StateStore) RemoveNotes(regionID string, criteria []NoteCriterion, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	reg, ok := s.registry.regionsByID[regionID]
	if !ok {
		return ferrors.WrapID("statestore.RemoveNotes", ferrors.KindUnknownEntity, regionID, ferrors.ErrUnknownRegion)
	}

	kept := reg.Notes[:0:0]
	removed := 0
	for _, n := range reg.Notes {
		match := false
		for _, c := range criteria {
			if c.matches(n) {
				match = true
				break
			}
		}
		if match {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	reg.Notes = kept

	s.appendEventLocked(EventNotesRemoved, EntityRegion, regionID, map[string]interface{}{"count": removed}, txOrActive(tx, s.activeTx))
	return nil
}

// AddCC appends controller-change events to regionID.
func (s *StateStore) AddCC(regionID string, events []ControllerEvent, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registry.regionsByID[regionID]
	if !ok {
		return ferrors.WrapID("statestore.AddCC", ferrors.KindUnknownEntity, regionID, ferrors.ErrUnknownRegion)
	}
	reg.CC = append(reg.CC, events...)
	return nil
}

// AddPitchBends appends pitch-bend events to regionID.
func (s *StateStore) AddPitchBends(regionID string, events []PitchBend, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registry.regionsByID[regionID]
	if !ok {
		return ferrors.WrapID("statestore.AddPitchBends", ferrors.KindUnknownEntity, regionID, ferrors.ErrUnknownRegion)
	}
	reg.PitchBends = append(reg.PitchBends, events...)
	return nil
}

// AddAftertouch appends aftertouch events to regionID.
func (s *StateStore) AddAftertouch(regionID string, events []Aftertouch, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	reg, ok := s.registry.regionsByID[regionID]
	if !ok {
		return ferrors.WrapID("statestore.AddAftertouch", ferrors.KindUnknownEntity, regionID, ferrors.ErrUnknownRegion)
	}
	reg.Aftertouch = append(reg.Aftertouch, events...)
	return nil
}

// AddEffect attaches an insert effect to trackID.
func (s *StateStore) AddEffect(trackID, effectType string, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.registry.tracksByID[trackID]; !ok {
		return ferrors.WrapID("statestore.AddEffect", ferrors.KindUnknownEntity, trackID, ferrors.ErrUnknownTrack)
	}
	s.appendEventLocked(EventEffectAdded, EntityTrack, trackID, map[string]interface{}{"type": effectType}, txOrActive(tx, s.activeTx))
	return nil
}

// SetTrackVolume sets a track's linear volume.
func (s *StateStore) SetTrackVolume(trackID string, volume float64, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.registry.tracksByID[trackID]
	if !ok {
		return ferrors.WrapID("statestore.SetTrackVolume", ferrors.KindUnknownEntity, trackID, ferrors.ErrUnknownTrack)
	}
	t.Volume = volume
	s.appendEventLocked(EventTrackUpdated, EntityTrack, trackID, map[string]interface{}{"volume": volume}, txOrActive(tx, s.activeTx))
	return nil
}

// SetTrackPan sets a track's pan, -1 (hard left) to 1 (hard right)
func (s *StateStore) SetTrackPan(trackID string, pan float64, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.registry.tracksByID[trackID]
	if !ok {
		return ferrors.WrapID("statestore.SetTrackPan", ferrors.KindUnknownEntity, trackID, ferrors.ErrUnknownTrack)
	}
	t.Pan = pan
	s.appendEventLocked(EventTrackUpdated, EntityTrack, trackID, map[string]interface{}{"pan": pan}, txOrActive(tx, s.activeTx))
	return nil
}

// MuteTrack sets a track's mute state.
func (s *StateStore) MuteTrack(trackID string, muted bool, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.registry.tracksByID[trackID]
	if !ok {
		return ferrors.WrapID("statestore.MuteTrack", ferrors.KindUnknownEntity, trackID, ferrors.ErrUnknownTrack)
	}
	t.Muted = muted
	s.appendEventLocked(EventTrackUpdated, EntityTrack, trackID, map[string]interface{}{"muted": muted}, txOrActive(tx, s.activeTx))
	return nil
}

// SoloTrack sets a track's solo state.
func (s *StateStore) SoloTrack(trackID string, soloed bool, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.registry.tracksByID[trackID]
	if !ok {
		return ferrors.WrapID("statestore.SoloTrack", ferrors.KindUnknownEntity, trackID, ferrors.ErrUnknownTrack)
	}
	t.Soloed = soloed
	s.appendEventLocked(EventTrackUpdated, EntityTrack, trackID, map[string]interface{}{"soloed": soloed}, txOrActive(tx, s.activeTx))
	return nil
}

// SetTrackColor sets a track's display color.
func (s *StateStore) SetTrackColor(trackID, color string, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.registry.tracksByID[trackID]
	if !ok {
		return ferrors.WrapID("statestore.SetTrackColor", ferrors.KindUnknownEntity, trackID, ferrors.ErrUnknownTrack)
	}
	t.Color = color
	s.appendEventLocked(EventTrackUpdated, EntityTrack, trackID, map[string]interface{}{"color": color}, txOrActive(tx, s.activeTx))
	return nil
}

// SetTrackIcon sets a track's display icon.
func (s *StateStore) SetTrackIcon(trackID, icon string, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.registry.tracksByID[trackID]
	if !ok {
		return ferrors.WrapID("statestore.SetTrackIcon", ferrors.KindUnknownEntity, trackID, ferrors.ErrUnknownTrack)
	}
	t.Icon = icon
	s.appendEventLocked(EventTrackUpdated, EntityTrack, trackID, map[string]interface{}{"icon": icon}, txOrActive(tx, s.activeTx))
	return nil
}

// SetTrackName renames a track and reindexes the registry's name lookup so
// ResolveTrack keeps finding it.
func (s *StateStore) SetTrackName(trackID, name string, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.registry.tracksByID[trackID]
	if !ok {
		return ferrors.WrapID("statestore.SetTrackName", ferrors.KindUnknownEntity, trackID, ferrors.ErrUnknownTrack)
	}
	s.registry.renameTrack(t, name)
	s.appendEventLocked(EventTrackUpdated, EntityTrack, trackID, map[string]interface{}{"name": name}, txOrActive(tx, s.activeTx))
	return nil
}

// AddSend attaches an aux-bus send to trackID.
func (s *StateStore) AddSend(trackID, busID string, level float64, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.registry.tracksByID[trackID]
	if !ok {
		return ferrors.WrapID("statestore.AddSend", ferrors.KindUnknownEntity, trackID, ferrors.ErrUnknownTrack)
	}
	if _, ok := s.registry.busesByID[busID]; !ok {
		return ferrors.WrapID("statestore.AddSend", ferrors.KindUnknownEntity, busID, ferrors.ErrUnknownBus)
	}
	t.Sends = append(t.Sends, Send{BusID: busID, Level: level})
	s.appendEventLocked(EventSendAdded, EntityTrack, trackID, map[string]interface{}{"busId": busID, "level": level}, txOrActive(tx, s.activeTx))
	return nil
}

// AddAutomation appends points to trackID's automation lane for parameter
func (s *StateStore) AddAutomation(trackID, parameter string, points []AutomationPoint, tx *Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.registry.tracksByID[trackID]
	if !ok {
		return ferrors.WrapID("statestore.AddAutomation", ferrors.KindUnknownEntity, trackID, ferrors.ErrUnknownTrack)
	}
	if t.Automation == nil {
		t.Automation = make(map[string][]AutomationPoint)
	}
	t.Automation[parameter] = append(t.Automation[parameter], points...)
	s.appendEventLocked(EventAutomationAdded, EntityTrack, trackID, map[string]interface{}{"parameter": parameter, "count": len(points)}, txOrActive(tx, s.activeTx))
	return nil
}

// ─────────────────────────────────────────────────────────────────────
// Read accessors (entity registry pass-through)
// ─────────────────────────────────────────────────────────────────────

// ResolveTrack resolves a track name to its id.
func (s *StateStore) ResolveTrack(name string, exact bool) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registry.resolveTrack(name, exact)
}

// GetTrack returns a value copy of the track, if it exists.
func (s *StateStore) GetTrack(id string) (Track, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.registry.tracksByID[id]
	if !ok {
		return Track{}, false
	}
	return *t, true
}

// GetRegion returns a value copy of the region, if it exists.
func (s *StateStore) GetRegion(id string) (Region, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.registry.regionsByID[id]
	if !ok {
		return Region{}, false
	}
	return cloneRegion(*r), true
}

// LatestRegionForTrack returns the most recently created region id on a
// track, if any.
func (s *StateStore) LatestRegionForTrack(trackID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.registry.latestRegionForTrack[trackID]
	return id, ok
}

// Summary aggregates counts for the coordinator's summary events
type Summary struct {
	TrackCount   int
	RegionCount  int
	NoteCount    int
	EffectCount  int
	TrackNames   []string
}

// Summarize computes the current aggregate counts.
func (s *StateStore) Summarize() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{TrackCount: len(s.registry.tracksByID), RegionCount: len(s.registry.regionsByID)}
	for _, id := range s.registry.trackOrder {
		sum.TrackNames = append(sum.TrackNames, s.registry.tracksByID[id].Name)
	}
	for _, reg := range s.registry.regionsByID {
		sum.NoteCount += len(reg.Notes)
		sum.EffectCount += len(reg.Effects)
	}
	return sum
}

// ─────────────────────────────────────────────────────────────────────
// Sync from client
// ─────────────────────────────────────────────────────────────────────

// ProjectSnapshot is the shape a client sends to replace the server's
// view of the project.
type ProjectSnapshot struct {
	Tracks   []Track
	Regions  []Region
	Buses    []Bus
	Metadata ProjectMetadata
}

// SyncFromClient replaces the registry contents and metadata wholesale.
// Unlike every other mutator, it does NOT append events — the client is
// authoritative for the import.
func (s *StateStore) SyncFromClient(snap ProjectSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.registry = newRegistry()
	for i := range snap.Tracks {
		t := snap.Tracks[i]
		s.registry.addTrack(&t)
	}
	for i := range snap.Regions {
		r := cloneRegion(snap.Regions[i])
		s.registry.addRegion(&r)
	}
	for i := range snap.Buses {
		b := snap.Buses[i]
		s.registry.addBus(&b)
	}
	s.metadata = snap.Metadata
}

// Export returns the full project state as a ProjectSnapshot, the
// counterpart to SyncFromClient. Used by persistence backends (e.g.
// RedisSnapshotStore) that need to serialize the whole project rather than
// replay the event log.
func (s *StateStore) Export() ProjectSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := ProjectSnapshot{Metadata: s.metadata}
	for _, id := range s.registry.trackOrder {
		snap.Tracks = append(snap.Tracks, *s.registry.tracksByID[id])
	}
	for _, reg := range s.registry.regionsByID {
		snap.Regions = append(snap.Regions, cloneRegion(*reg))
	}
	for _, b := range s.registry.busesByID {
		snap.Buses = append(snap.Buses, *b)
	}
	return snap
}

// ─────────────────────────────────────────────────────────────────────
// internal helpers
// ─────────────────────────────────────────────────────────────────────

func (s *StateStore) appendEventLocked(typ EventType, entityType EntityType, entityID string, data map[string]interface{}, tx *Transaction) {
	s.version++
	ev := StateEvent{
		ID:         uuid.NewString(),
		Type:       typ,
		EntityType: entityType,
		EntityID:   entityID,
		Data:       data,
		Timestamp:  time.Now().UTC(),
		Version:    s.version,
	}
	if tx != nil {
		ev.TransactionID = tx.ID
		tx.hasEvents = true
		if tx.firstEventVersion == 0 {
			tx.firstEventVersion = s.version
		}
	}
	s.events = append(s.events, ev)
}

func (s *StateStore) takeSnapshotLocked() {
	snap := snapshot{
		version:  s.version,
		taken:    time.Now().UTC(),
		registry: s.registry.toDict(),
		metadata: s.metadata,
	}
	s.snapshots = append(s.snapshots, snap)
	if s.snapshotCap > 0 && len(s.snapshots) > s.snapshotCap {
		s.snapshots = s.snapshots[len(s.snapshots)-s.snapshotCap:]
	}
}

func txOrActive(tx, active *Transaction) *Transaction {
	if tx != nil {
		return tx
	}
	return active
}

func normalizeKey(name string) string {
	out := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}

package statestore

import "strings"

// registry is the derived, in-memory lookup structure: id lookups are
// O(1), name lookups are O(k) over entities sharing a name. It holds no
// mutex of its own — the owning StateStore serialises all access under
// its own single-writer rule.
type registry struct {
	tracksByID    map[string]*Track
	trackOrder    []string // insertion order, for deterministic iteration
	tracksByName  map[string][]string // lowercased name -> track ids, insertion order

	regionsByID      map[string]*Region
	regionsByTrackID map[string][]string // track id -> region ids, creation order

	busesByID   map[string]*Bus
	busesByName map[string][]string

	latestRegionForTrack map[string]string
}

func newRegistry() *registry {
	return &registry{
		tracksByID:           make(map[string]*Track),
		tracksByName:         make(map[string][]string),
		regionsByID:          make(map[string]*Region),
		regionsByTrackID:     make(map[string][]string),
		busesByID:            make(map[string]*Bus),
		busesByName:          make(map[string][]string),
		latestRegionForTrack: make(map[string]string),
	}
}

func (r *registry) addTrack(t *Track) {
	r.tracksByID[t.ID] = t
	r.trackOrder = append(r.trackOrder, t.ID)
	key := strings.ToLower(t.Name)
	r.tracksByName[key] = append(r.tracksByName[key], t.ID)
}

func (r *registry) addRegion(reg *Region) {
	r.regionsByID[reg.ID] = reg
	r.regionsByTrackID[reg.ParentTrackID] = append(r.regionsByTrackID[reg.ParentTrackID], reg.ID)
	r.latestRegionForTrack[reg.ParentTrackID] = reg.ID
}

func (r *registry) addBus(b *Bus) {
	r.busesByID[b.ID] = b
	key := strings.ToLower(b.Name)
	r.busesByName[key] = append(r.busesByName[key], b.ID)
}

// renameTrack updates t's name in place and reindexes tracksByName so
// resolveTrack keeps finding it under the new name.
func (r *registry) renameTrack(t *Track, newName string) {
	oldKey := strings.ToLower(t.Name)
	ids := r.tracksByName[oldKey]
	for i, id := range ids {
		if id == t.ID {
			r.tracksByName[oldKey] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	t.Name = newName
	newKey := strings.ToLower(newName)
	r.tracksByName[newKey] = append(r.tracksByName[newKey], t.ID)
}

// resolveTrack returns the unique track id whose name matches (case
// insensitive). When exact is false, a name-prefix match is also
// attempted after an exact match fails.
// The first match by insertion order wins.
func (r *registry) resolveTrack(name string, exact bool) (string, bool) {
	key := strings.ToLower(name)
	if ids, ok := r.tracksByName[key]; ok && len(ids) > 0 {
		return ids[0], true
	}
	if exact {
		return "", false
	}
	for _, id := range r.trackOrder {
		if strings.HasPrefix(strings.ToLower(r.tracksByID[id].Name), key) {
			return id, true
		}
	}
	return "", false
}

// findOverlappingRegion returns the first region on track whose interval
// intersects [start, start+duration), or "" if none.
func (r *registry) findOverlappingRegion(trackID string, start, duration float64) (string, bool) {
	for _, rid := range r.regionsByTrackID[trackID] {
		reg := r.regionsByID[rid]
		if reg.Overlaps(start, duration) {
			return rid, true
		}
	}
	return "", false
}

// regionsExactMatch reports whether an overlapping region found by
// findOverlappingRegion also matches (start, duration) exactly — used to
// log a warning when an overlap-but-not-equal match occurs.
func regionsExactMatch(reg *Region, start, duration float64) bool {
	return reg.StartBeat == start && reg.DurationBeats == duration
}

// toDict returns a deep-ish value copy of the registry for snapshotting
func (r *registry) toDict() registrySnapshot {
	tracks := make(map[string]Track, len(r.tracksByID))
	for id, t := range r.tracksByID {
		tracks[id] = *t
	}
	regions := make(map[string]Region, len(r.regionsByID))
	for id, reg := range r.regionsByID {
		regions[id] = cloneRegion(*reg)
	}
	buses := make(map[string]Bus, len(r.busesByID))
	for id, b := range r.busesByID {
		buses[id] = *b
	}

	trackOrder := append([]string(nil), r.trackOrder...)
	regionsByTrackID := make(map[string][]string, len(r.regionsByTrackID))
	for k, v := range r.regionsByTrackID {
		regionsByTrackID[k] = append([]string(nil), v...)
	}
	tracksByName := make(map[string][]string, len(r.tracksByName))
	for k, v := range r.tracksByName {
		tracksByName[k] = append([]string(nil), v...)
	}
	busesByName := make(map[string][]string, len(r.busesByName))
	for k, v := range r.busesByName {
		busesByName[k] = append([]string(nil), v...)
	}
	latest := make(map[string]string, len(r.latestRegionForTrack))
	for k, v := range r.latestRegionForTrack {
		latest[k] = v
	}

	return registrySnapshot{
		tracks:               tracks,
		trackOrder:           trackOrder,
		tracksByName:         tracksByName,
		regions:              regions,
		regionsByTrackID:     regionsByTrackID,
		buses:                buses,
		busesByName:          busesByName,
		latestRegionForTrack: latest,
	}
}

// fromDict replaces the registry's contents with a previously captured
// snapshot.
func (r *registry) fromDict(snap registrySnapshot) {
	r.tracksByID = make(map[string]*Track, len(snap.tracks))
	for id, t := range snap.tracks {
		tc := t
		r.tracksByID[id] = &tc
	}
	r.trackOrder = append([]string(nil), snap.trackOrder...)
	r.tracksByName = make(map[string][]string, len(snap.tracksByName))
	for k, v := range snap.tracksByName {
		r.tracksByName[k] = append([]string(nil), v...)
	}

	r.regionsByID = make(map[string]*Region, len(snap.regions))
	for id, reg := range snap.regions {
		rc := cloneRegion(reg)
		r.regionsByID[id] = &rc
	}
	r.regionsByTrackID = make(map[string][]string, len(snap.regionsByTrackID))
	for k, v := range snap.regionsByTrackID {
		r.regionsByTrackID[k] = append([]string(nil), v...)
	}

	r.busesByID = make(map[string]*Bus, len(snap.buses))
	for id, b := range snap.buses {
		bc := b
		r.busesByID[id] = &bc
	}
	r.busesByName = make(map[string][]string, len(snap.busesByName))
	for k, v := range snap.busesByName {
		r.busesByName[k] = append([]string(nil), v...)
	}

	r.latestRegionForTrack = make(map[string]string, len(snap.latestRegionForTrack))
	for k, v := range snap.latestRegionForTrack {
		r.latestRegionForTrack[k] = v
	}
}

// registrySnapshot is a value-copy of registry state, safe to retain across
// mutations to the live registry.
type registrySnapshot struct {
	tracks               map[string]Track
	trackOrder           []string
	tracksByName         map[string][]string
	regions              map[string]Region
	regionsByTrackID     map[string][]string
	buses                map[string]Bus
	busesByName          map[string][]string
	latestRegionForTrack map[string]string
}

func cloneRegion(reg Region) Region {
	out := reg
	out.Notes = append([]Note(nil), reg.Notes...)
	out.CC = append([]ControllerEvent(nil), reg.CC...)
	out.PitchBends = append([]PitchBend(nil), reg.PitchBends...)
	out.Aftertouch = append([]Aftertouch(nil), reg.Aftertouch...)
	out.Effects = append([]EffectRef(nil), reg.Effects...)
	return out
}

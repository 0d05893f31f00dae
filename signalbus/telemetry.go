package signalbus

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/stori-audio/maestro-agents/statestore"
)

// SectionTelemetry is an immutable, deterministically-computed musical
// snapshot for one section of one instrument. It carries no
// methods that mutate its own fields; callers that want a derived value
// build a new SectionTelemetry via ComputeTelemetry.
type SectionTelemetry struct {
	SectionName        string
	Instrument         string
	Tempo              float64
	EnergyLevel        float64
	DensityScore       float64
	GrooveVector       [16]float64
	KickPatternHash    string
	RhythmicComplexity float64
	VelocityMean       float64
	VelocityVariance   float64
}

// TelemetryKey builds the canonical "Instrument: section_id" store key
func TelemetryKey(instrument, sectionID string) string {
	return fmt.Sprintf("%s: %s", instrument, sectionID)
}

// ComputeTelemetry derives a SectionTelemetry from generated notes with pure
// arithmetic — no ML, no randomness.
func ComputeTelemetry(notes []statestore.Note, tempo float64, instrument, sectionName string, sectionBeats float64) SectionTelemetry {
	totalBeats := sectionBeats
	if totalBeats < 1.0 {
		totalBeats = 1.0
	}
	n := len(notes)
	density := float64(n) / totalBeats

	var velMean, velVar float64
	if n > 0 {
		sum := 0.0
		for _, note := range notes {
			sum += float64(note.Velocity)
		}
		velMean = sum / float64(n)
		sqSum := 0.0
		for _, note := range notes {
			d := float64(note.Velocity) - velMean
			sqSum += d * d
		}
		velVar = sqSum / float64(n)
	}

	densityFactor := density / 4.0
	if densityFactor > 1.0 {
		densityFactor = 1.0
	}
	energy := (velMean / 127.0) * densityFactor
	if energy > 1.0 {
		energy = 1.0
	}
	if energy < 0 {
		energy = 0
	}

	var bins [16]float64
	for _, note := range notes {
		offset := math.Mod(note.StartBeat, 1.0)
		if offset < 0 {
			offset += 1.0
		}
		idx := int(offset*16) % 16
		bins[idx]++
	}
	binTotal := 0.0
	for _, b := range bins {
		binTotal += b
	}
	if binTotal == 0 {
		binTotal = 1.0
	}
	for i := range bins {
		bins[i] /= binTotal
	}

	var kickPositions []float64
	for _, note := range notes {
		if note.Pitch == 35 || note.Pitch == 36 {
			kickPositions = append(kickPositions, roundTo(note.StartBeat, 4))
		}
	}
	sort.Float64s(kickPositions)
	kickHash := ""
	if len(kickPositions) > 0 {
		kickHash = shortMD5(fmt.Sprintf("%v", kickPositions))
	}

	starts := make([]float64, 0, n)
	for _, note := range notes {
		starts = append(starts, note.StartBeat)
	}
	sort.Float64s(starts)
	complexity := 0.0
	if len(starts) > 1 {
		spacings := make([]float64, 0, len(starts)-1)
		for i := 0; i < len(starts)-1; i++ {
			spacings = append(spacings, starts[i+1]-starts[i])
		}
		mean := 0.0
		for _, s := range spacings {
			mean += s
		}
		mean /= float64(len(spacings))
		sqSum := 0.0
		for _, s := range spacings {
			d := s - mean
			sqSum += d * d
		}
		complexity = math.Sqrt(sqSum / float64(len(spacings)))
	}

	return SectionTelemetry{
		SectionName:        sectionName,
		Instrument:         instrument,
		Tempo:              tempo,
		EnergyLevel:        roundTo(energy, 4),
		DensityScore:       roundTo(density, 4),
		GrooveVector:       bins,
		KickPatternHash:    kickHash,
		RhythmicComplexity: roundTo(complexity, 4),
		VelocityMean:       roundTo(velMean, 2),
		VelocityVariance:   roundTo(velVar, 2),
	}
}

func roundTo(v float64, places int) float64 {
	mult := math.Pow(10, float64(places))
	return math.Round(v*mult) / mult
}

func shortMD5(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:8]
}

// TelemetryStore is the mutex-guarded, write-once cross-instrument
// telemetry map.
type TelemetryStore struct {
	mu   sync.Mutex
	data map[string]SectionTelemetry
}

// NewTelemetryStore creates an empty TelemetryStore.
func NewTelemetryStore() *TelemetryStore {
	return &TelemetryStore{data: make(map[string]SectionTelemetry)}
}

// Set records telemetry under key, overwriting nothing in practice since
// callers only ever set a given (instrument, section) key once.
func (t *TelemetryStore) Set(key string, telemetry SectionTelemetry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.data[key] = telemetry
}

// Get returns the telemetry stored under key, if any.
func (t *TelemetryStore) Get(key string) (SectionTelemetry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.data[key]
	return v, ok
}

// Snapshot returns a shallow copy of the whole store, safe to range over
// without holding the lock).
func (t *TelemetryStore) Snapshot() map[string]SectionTelemetry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]SectionTelemetry, len(t.data))
	for k, v := range t.data {
		out[k] = v
	}
	return out
}

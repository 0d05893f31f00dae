package contract

import (
	"fmt"
	"sort"

	"github.com/stori-audio/maestro-agents/ferrors"
)

var (
	ErrAlreadySealed = ferrors.ErrAlreadySealed
	ErrNotSealed     = ferrors.ErrNotSealed
)

func sortStrings(ss []string) { sort.Strings(ss) }

// SectionSpec describes one musical section applied uniformly across
// instruments. It is a leaf in the contract tree.
type SectionSpec struct {
	SectionID     string `json:"section_id"`
	Name          string `json:"name"`
	Index         int    `json:"index"`
	StartBeat     float64 `json:"start_beat"`
	DurationBeats float64 `json:"duration_beats"`
	Bars          int    `json:"bars"`
	Character     string `json:"character"`
	RoleBrief     string `json:"role_brief"`

	ContractHash       string `json:"contract_hash,omitempty"`
	ParentContractHash string `json:"parent_contract_hash,omitempty"`
}

// canonicalDict returns the structural fields that participate in the
// hash, excluding contract_hash/parent_contract_hash (those are advisory,
// filled in only once Seal computes the hash they describe).
func (s SectionSpec) canonicalDict() map[string]interface{} {
	return map[string]interface{}{
		"section_id":     s.SectionID,
		"name":           s.Name,
		"index":          s.Index,
		"start_beat":     s.StartBeat,
		"duration_beats": s.DurationBeats,
		"bars":           s.Bars,
		"character":      s.Character,
		"role_brief":     s.RoleBrief,
	}
}

// Seal computes and stores the section's structural hash. SectionSpec has
// no parent hash of its own (it is folded into CompositionContract.Sections
// as a member hash, not sealed against a separate parent).
func (s *SectionSpec) Seal() error {
	if s.ContractHash != "" {
		return fmt.Errorf("section %q: %w", s.SectionID, ErrAlreadySealed)
	}
	h, err := computeHash(s.canonicalDict())
	if err != nil {
		return err
	}
	s.ContractHash = h
	return nil
}

// Verify recomputes the hash and compares it to the stored value
func (s SectionSpec) Verify() bool {
	if s.ContractHash == "" {
		return false
	}
	h, err := computeHash(s.canonicalDict())
	return err == nil && h == s.ContractHash
}

// CompositionContract is the lineage root: one per composition request
type CompositionContract struct {
	CompositionID string        `json:"composition_id"`
	Sections      []SectionSpec `json:"sections"`
	Style         string        `json:"style"`
	Tempo         int           `json:"tempo"`
	Key           string        `json:"key"`

	ContractHash       string `json:"contract_hash,omitempty"`
	ParentContractHash string `json:"parent_contract_hash,omitempty"`
}

// canonicalDict serializes Sections as the sorted list of member section
// hashes, not the full section objects — this is what keeps
// the composition hash compact and order-independent.
func (c CompositionContract) canonicalDict() map[string]interface{} {
	sectionHashes := make([]string, len(c.Sections))
	for i, s := range c.Sections {
		sectionHashes[i] = s.ContractHash
	}
	return map[string]interface{}{
		"composition_id": c.CompositionID,
		"sections":       sortedCopy(sectionHashes),
		"style":          c.Style,
		"tempo":          c.Tempo,
		"key":            c.Key,
	}
}

func sortedCopy(ss []string) []string {
	out := append([]string(nil), ss...)
	sortStrings(out)
	return out
}

// Seal computes and stores the composition's root hash. Every member
// SectionSpec must already be sealed (its ContractHash populated) before
// calling Seal — the composition's canonical form depends on it.
func (c *CompositionContract) Seal() error {
	if c.ContractHash != "" {
		return ErrAlreadySealed
	}
	for i, s := range c.Sections {
		if s.ContractHash == "" {
			return fmt.Errorf("composition %q: section %d (%s) is not sealed: %w", c.CompositionID, i, s.SectionID, ErrNotSealed)
		}
	}
	h, err := computeHash(c.canonicalDict())
	if err != nil {
		return err
	}
	c.ContractHash = h
	return nil
}

func (c CompositionContract) Verify() bool {
	if c.ContractHash == "" {
		return false
	}
	h, err := computeHash(c.canonicalDict())
	return err == nil && h == c.ContractHash
}

// InstrumentContract is sealed with parent=composition hash and scopes one
// instrument role's work across its sections.
type InstrumentContract struct {
	InstrumentName string        `json:"instrument_name"`
	Role           string        `json:"role"`
	Style          string        `json:"style"`
	Bars           int           `json:"bars"`
	Tempo          int           `json:"tempo"`
	Key            string        `json:"key"`
	StartBeat      float64       `json:"start_beat"`
	Sections       []SectionSpec `json:"sections"`

	// Advisory fields — excluded from the structural hash.
	ExistingTrackID string `json:"existing_track_id,omitempty"`
	AssignedColor   string `json:"assigned_color,omitempty"`
	GMGuidance      string `json:"gm_guidance,omitempty"`

	ContractHash       string `json:"contract_hash,omitempty"`
	ParentContractHash string `json:"parent_contract_hash,omitempty"`
}

func (ic InstrumentContract) canonicalDict() map[string]interface{} {
	sectionHashes := make([]string, len(ic.Sections))
	for i, s := range ic.Sections {
		sectionHashes[i] = s.ContractHash
	}
	return map[string]interface{}{
		"instrument_name": ic.InstrumentName,
		"role":            ic.Role,
		"style":           ic.Style,
		"bars":            ic.Bars,
		"tempo":           ic.Tempo,
		"key":             ic.Key,
		"start_beat":      ic.StartBeat,
		"sections":        sectionHashes,
	}
}

// Seal sets ParentContractHash then computes ContractHash sets parent then computes the hash).
func (ic *InstrumentContract) Seal(parentHash string) error {
	if ic.ContractHash != "" {
		return ErrAlreadySealed
	}
	for i, s := range ic.Sections {
		if s.ContractHash == "" {
			return fmt.Errorf("instrument %q: section %d is not sealed: %w", ic.InstrumentName, i, ErrNotSealed)
		}
	}
	ic.ParentContractHash = parentHash
	h, err := computeHash(ic.canonicalDict())
	if err != nil {
		return err
	}
	ic.ContractHash = h
	return nil
}

func (ic InstrumentContract) Verify() bool {
	if ic.ContractHash == "" {
		return false
	}
	h, err := computeHash(ic.canonicalDict())
	return err == nil && h == ic.ContractHash
}

// SectionContract is sealed to its InstrumentContract's hash and drives one
// Section Child's (region, generate, optional refinement) pipeline
type SectionContract struct {
	Section        SectionSpec `json:"section"`
	TrackID        string      `json:"track_id"`
	InstrumentName string      `json:"instrument_name"`
	Role           string      `json:"role"`
	Style          string      `json:"style"`
	Tempo          int         `json:"tempo"`
	Key            string      `json:"key"`

	// Advisory fields — excluded from the structural hash.
	RegionName        string `json:"region_name,omitempty"`
	L2GeneratePrompt  string `json:"l2_generate_prompt,omitempty"`

	ContractHash       string `json:"contract_hash,omitempty"`
	ParentContractHash string `json:"parent_contract_hash,omitempty"`
}

func (sc SectionContract) canonicalDict() map[string]interface{} {
	return map[string]interface{}{
		"section":         sc.Section.ContractHash,
		"track_id":        sc.TrackID,
		"instrument_name": sc.InstrumentName,
		"role":            sc.Role,
		"style":           sc.Style,
		"tempo":           sc.Tempo,
		"key":             sc.Key,
	}
}

func (sc *SectionContract) Seal(parentHash string) error {
	if sc.ContractHash != "" {
		return ErrAlreadySealed
	}
	if sc.Section.ContractHash == "" {
		return fmt.Errorf("section contract %q: %w", sc.Section.SectionID, ErrNotSealed)
	}
	sc.ParentContractHash = parentHash
	h, err := computeHash(sc.canonicalDict())
	if err != nil {
		return err
	}
	sc.ContractHash = h
	return nil
}

func (sc SectionContract) Verify() bool {
	if sc.ContractHash == "" {
		return false
	}
	h, err := computeHash(sc.canonicalDict())
	return err == nil && h == sc.ContractHash
}

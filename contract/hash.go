// Package contract implements the immutable contract hierarchy and lineage
// hashing: CompositionContract, InstrumentContract, SectionContract, and
// SectionSpec, each sealed with a 16-hex-char structural hash that never
// changes once computed. Each contract type declares its own canonical
// field set via an explicit canonicalDict() method rather than deriving one
// through reflection.
package contract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// shortHash returns the first 16 hex characters of the SHA-256 digest of
// data — a 64-bit short hash.
func shortHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:16]
}

// canonicalJSON serializes v with sorted keys and no extraneous whitespace,
// the same layout as Python's json.dumps(..., sort_keys=True,
// separators=(",", ":")). encoding/json already sorts map keys and omits
// whitespace by default, so this is a thin documented wrapper rather than a
// custom encoder; number formatting and HTML escaping follow encoding/json,
// so the bytes are not guaranteed to equal Python's output.
func canonicalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// computeHash hashes the canonical dict of a sealable contract.
func computeHash(canonical map[string]interface{}) (string, error) {
	data, err := canonicalJSON(sortedMap(canonical))
	if err != nil {
		return "", err
	}
	return shortHash(data), nil
}

// sortedMap is a thin marker type so json.Marshal on a plain map[string]any
// (already key-sorted by encoding/json) reads intentionally in call sites.
func sortedMap(m map[string]interface{}) map[string]interface{} { return m }

// HashList produces a collision-proof aggregate hash from a list of child
// hashes: sort lexicographically, JSON-encode the sorted list, SHA-256,
// truncate to 16 hex chars.
// This replaces any `A+":"+B` concatenation, which is ambiguous when ':'
// can appear inside a token.
func HashList(children []string) string {
	sorted := append([]string(nil), children...)
	sort.Strings(sorted)
	data, _ := json.Marshal(sorted)
	return shortHash(data)
}

// ExecutionHash binds a result to both its contract and its session:
// H(contractHash || traceID)[:16]. The same contract run in
// two sessions produces two distinct execution hashes — the replay defence
// invariant.
func ExecutionHash(contractHash, traceID string) string {
	return shortHash([]byte(contractHash + traceID))
}

// Package hashing computes deterministic per-section fingerprints of CV content
// and diffs them against a previous snapshot to detect which sections changed.
//
// A fingerprint is the SHA-256 digest of the section's canonical JSON (RFC 8785,
// with every string whitespace-normalized), truncated to 128 bits and hex
// encoded. For n distinct fingerprints the collision probability is about
// n²/2¹²⁹, which stays below 1e-20 even at a billion section versions.
package hashing

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/gowebpki/jcs"
	"github.com/jonathan/cv-tailor/internal/types"
)

// FingerprintBytes is the fingerprint width in bytes (hex length is twice this).
const FingerprintBytes = 16

// Canonicalize returns the canonical serialization of a section value:
// strings are trimmed and inner whitespace runs collapsed to one space, then
// the document is serialized per RFC 8785 (sorted keys, fixed number format).
func Canonicalize(raw json.RawMessage) ([]byte, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode section: %w", err)
	}
	normalized, err := json.Marshal(normalize(v))
	if err != nil {
		return nil, fmt.Errorf("failed to encode section: %w", err)
	}
	canonical, err := jcs.Transform(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to canonicalize section: %w", err)
	}
	return canonical, nil
}

// ComputeHash returns the fingerprint of a section's raw JSON.
func ComputeHash(raw json.RawMessage) (string, error) {
	canonical, err := Canonicalize(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:FingerprintBytes]), nil
}

// HashValue fingerprints any JSON-serializable value.
func HashValue(v any) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal value: %w", err)
	}
	return ComputeHash(raw)
}

// SectionHashes fingerprints every section of a CV.
func SectionHashes(cv *types.CV) (map[string]string, error) {
	sections, err := cv.Sections()
	if err != nil {
		return nil, err
	}
	hashes := make(map[string]string, len(sections))
	for name, raw := range sections {
		h, err := ComputeHash(raw)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", name, err)
		}
		hashes[name] = h
	}
	return hashes, nil
}

// Diff reports, per section, whether its fingerprint differs from the previous
// snapshot. A section with no previous fingerprint counts as changed; a section
// that disappeared from current also counts as changed.
func Diff(prev, current map[string]string) map[string]bool {
	changed := make(map[string]bool, len(current))
	for name, h := range current {
		p, ok := prev[name]
		changed[name] = !ok || p != h
	}
	for name := range prev {
		if _, ok := current[name]; !ok {
			changed[name] = true
		}
	}
	return changed
}

// Changed returns the sorted names of the sections flagged as changed.
func Changed(diff map[string]bool) []string {
	var out []string
	for name, c := range diff {
		if c {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

func normalize(v any) any {
	switch t := v.(type) {
	case string:
		return strings.Join(strings.Fields(t), " ")
	case []any:
		for i := range t {
			t[i] = normalize(t[i])
		}
		return t
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	default:
		return v
	}
}

package contextpack

import (
	"encoding/json"

	"github.com/jonathan/cv-tailor/internal/stage"
	"github.com/jonathan/cv-tailor/internal/types"
)

// SchemaVersion identifies the pack layout.
const SchemaVersion = "1.0"

// Status tells whether a section payload carries full content.
type Status string

const (
	StatusChanged   Status = "changed"
	StatusUnchanged Status = "unchanged"
)

// SectionPayload is either full content (changed) or a summary (unchanged).
type SectionPayload struct {
	Status  Status
	Data    json.RawMessage
	Hash    string
	Count   int
	Preview string
}

// MarshalJSON emits only the fields that belong to the payload's status.
func (p SectionPayload) MarshalJSON() ([]byte, error) {
	if p.Status == StatusChanged {
		data := p.Data
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		return json.Marshal(struct {
			Status Status          `json:"status"`
			Data   json.RawMessage `json:"data"`
		}{p.Status, data})
	}
	return json.Marshal(struct {
		Status  Status `json:"status"`
		Hash    string `json:"hash"`
		Count   int    `json:"count"`
		Preview string `json:"preview"`
	}{p.Status, p.Hash, p.Count, p.Preview})
}

// Completeness reports gating progress.
type Completeness struct {
	// NextMissingSection is the first empty section in canonical order.
	NextMissingSection *string `json:"next_missing_section"`
	RequiredPresent    bool    `json:"required_present"`
	// MissingConfirmations lists required sections the user has not confirmed.
	MissingConfirmations []string `json:"missing_confirmations"`
}

// ValidationDigest is the compact form of the latest validation result.
type ValidationDigest struct {
	IsValid        bool     `json:"is_valid"`
	EstimatedPages float64  `json:"estimated_pages"`
	HighFields     []string `json:"high_fields,omitempty"`
	FindingCount   int      `json:"finding_count"`
}

// Pack is the context pack for one model turn. Section payloads are flattened
// into the top level when serialized.
type Pack struct {
	SchemaVersion  string
	Stage          stage.Stage
	SectionChanges map[string]bool
	Sections       map[string]SectionPayload
	Completeness   Completeness
	JobReference   *types.JobReference
	Validation     *ValidationDigest
	// Demoted and Dropped record what the budget policy did, in order. They
	// are not serialized: section_changes already tells the reader which
	// summaries stand in for changed content.
	Demoted []string
	Dropped []string
	// Size is the serialized length in characters.
	Size int
}

// MarshalJSON flattens section payloads next to the fixed keys.
func (p *Pack) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Sections)+8)
	for name, payload := range p.Sections {
		out[name] = payload
	}
	out["schema_version"] = p.SchemaVersion
	out["stage"] = p.Stage
	out["section_changes"] = p.SectionChanges
	out["completeness"] = p.Completeness
	if p.JobReference != nil {
		out["job_reference"] = p.JobReference
	}
	if p.Validation != nil {
		out["validation"] = p.Validation
	}
	return json.Marshal(out)
}

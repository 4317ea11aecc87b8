package session

import (
	"encoding/json"
	"fmt"

	"github.com/jonathan/cv-tailor/internal/stage"
	"github.com/jonathan/cv-tailor/internal/types"
)

// MetaPatch lists metadata fields to overwrite. Nil fields are left alone.
type MetaPatch struct {
	Stage *stage.Stage
	// Confirm sets or clears confirmation flags. Only user-driven actions
	// populate it; no system path clears a flag implicitly.
	Confirm        map[string]bool
	SectionHashes  map[string]string
	Language       *string
	JobReference   *types.JobReference
	LastValidation *ValidationSummary
}

// PDFArtifact is a rendered PDF to store in the cold tier.
type PDFArtifact struct {
	Data        []byte
	ContentHash string
}

// Changes is everything one flush writes.
type Changes struct {
	Edits         []Edit
	Section       *SectionPatch
	Meta          MetaPatch
	Events        []Event
	Pack          json.RawMessage
	PDF           *PDFArtifact
	Proposal      *Proposal
	ClearProposal bool
}

// Empty reports whether the changes would write nothing.
func (c *Changes) Empty() bool {
	m := c.Meta
	return len(c.Edits) == 0 && c.Section == nil &&
		m.Stage == nil && m.Confirm == nil && m.SectionHashes == nil && m.Language == nil &&
		m.JobReference == nil && m.LastValidation == nil &&
		len(c.Events) == 0 && c.Pack == nil && c.PDF == nil && c.Proposal == nil && !c.ClearProposal
}

func (c *Changes) touchesContent() bool {
	return len(c.Edits) > 0 || c.Section != nil
}

// Batch queues the writes of one tool-call turn so they are flushed together.
type Batch struct {
	changes Changes
	err     error
}

// NewBatch returns an empty batch.
func NewBatch() *Batch {
	return &Batch{}
}

// BatchOf wraps prepared changes.
func BatchOf(c Changes) *Batch {
	return &Batch{changes: c}
}

// Set queues a path-addressed assignment. value is JSON-encoded.
func (b *Batch) Set(path string, value any) *Batch {
	raw, err := json.Marshal(value)
	if err != nil {
		b.fail(fmt.Errorf("failed to encode value for %s: %w", path, err))
		return b
	}
	return b.SetRaw(path, raw)
}

// SetRaw queues a path-addressed assignment of pre-encoded JSON.
func (b *Batch) SetRaw(path string, raw json.RawMessage) *Batch {
	b.changes.Edits = append(b.changes.Edits, Edit{Path: path, Value: raw})
	return b
}

// Edits queues several edits in order.
func (b *Batch) Edits(edits ...Edit) *Batch {
	b.changes.Edits = append(b.changes.Edits, edits...)
	return b
}

// ReplaceSection queues a whole-section replacement. Only one section may be
// replaced per batch.
func (b *Batch) ReplaceSection(section string, data json.RawMessage) *Batch {
	if b.changes.Section != nil && b.changes.Section.Section != section {
		b.fail(&EditError{Path: section, Message: "only one section may be replaced per batch"})
		return b
	}
	b.changes.Section = &SectionPatch{Section: section, Data: data}
	return b
}

// SetStage queues a stage change. Legality is the caller's concern.
func (b *Batch) SetStage(s stage.Stage) *Batch {
	b.changes.Meta.Stage = &s
	return b
}

// Confirm queues a user-driven confirmation flag change.
func (b *Batch) Confirm(section string, confirmed bool) *Batch {
	if b.changes.Meta.Confirm == nil {
		b.changes.Meta.Confirm = map[string]bool{}
	}
	b.changes.Meta.Confirm[section] = confirmed
	return b
}

// SetSectionHashes queues the new hash snapshot.
func (b *Batch) SetSectionHashes(h map[string]string) *Batch {
	b.changes.Meta.SectionHashes = h
	return b
}

// SetLanguage queues a language change.
func (b *Batch) SetLanguage(lang string) *Batch {
	b.changes.Meta.Language = &lang
	return b
}

// SetJobReference queues a job reference change.
func (b *Batch) SetJobReference(ref *types.JobReference) *Batch {
	b.changes.Meta.JobReference = ref
	return b
}

// SetValidation queues the latest validation summary.
func (b *Batch) SetValidation(v *ValidationSummary) *Batch {
	b.changes.Meta.LastValidation = v
	return b
}

// AppendEvent queues an event log entry.
func (b *Batch) AppendEvent(e Event) *Batch {
	b.changes.Events = append(b.changes.Events, e)
	return b
}

// RecordPack queues a context pack for the pack history.
func (b *Batch) RecordPack(pack json.RawMessage) *Batch {
	b.changes.Pack = pack
	return b
}

// AddPDF queues a rendered PDF.
func (b *Batch) AddPDF(a *PDFArtifact) *Batch {
	b.changes.PDF = a
	return b
}

// SetProposal queues a pending proposal.
func (b *Batch) SetProposal(p *Proposal) *Batch {
	b.changes.Proposal = p
	b.changes.ClearProposal = false
	return b
}

// ClearProposal queues removal of the pending proposal.
func (b *Batch) ClearProposal() *Batch {
	b.changes.Proposal = nil
	b.changes.ClearProposal = true
	return b
}

// Changes returns the queued changes and the first builder error.
func (b *Batch) Changes() (Changes, error) {
	return b.changes, b.err
}

func (b *Batch) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

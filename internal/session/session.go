// Package session owns the persisted state of a CV tailoring session: the CV
// content, the control metadata, and the auxiliary blobs kept in the cold tier.
// All mutation goes through Store, which serializes writers per session and
// flushes each batch of changes once.
package session

import (
	"encoding/json"
	"time"

	"github.com/jonathan/cv-tailor/internal/stage"
	"github.com/jonathan/cv-tailor/internal/types"
)

// Auxiliary blob kinds stored in the cold tier.
const (
	BlobEvents      = "events"
	BlobPDFHistory  = "pdf_history"
	BlobPackHistory = "pack_history"
	BlobProposal    = "proposal"
)

const (
	maxEvents      = 500
	maxPackHistory = 20
)

// BlobRef points from the hot record to a blob in the cold tier.
type BlobRef struct {
	Key   string `json:"key"`
	Bytes int    `json:"bytes"`
}

// ValidationSummary is the part of the latest validation result kept in the
// hot record.
type ValidationSummary struct {
	IsValid        bool      `json:"is_valid"`
	EstimatedPages float64   `json:"estimated_pages"`
	HighCount      int       `json:"high_count"`
	HighFields     []string  `json:"high_fields,omitempty"`
	FindingCount   int       `json:"finding_count"`
	ContentHash    string    `json:"content_hash"`
	ValidatedAt    time.Time `json:"validated_at"`
}

// Metadata is the control state of a session.
type Metadata struct {
	Stage             stage.Stage         `json:"stage"`
	ConfirmedFlags    map[string]bool     `json:"confirmed_flags"`
	SectionHashesPrev map[string]string   `json:"section_hashes_prev"`
	Language          string              `json:"language"`
	JobReference      *types.JobReference `json:"job_reference,omitempty"`
	LastValidation    *ValidationSummary  `json:"last_validation,omitempty"`
	Blobs             map[string]BlobRef  `json:"blobs,omitempty"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`
}

// Event records a successful state-changing tool call.
type Event struct {
	At        time.Time   `json:"at"`
	Tool      string      `json:"tool"`
	FromStage stage.Stage `json:"from_stage"`
	ToStage   stage.Stage `json:"to_stage"`
	Detail    string      `json:"detail,omitempty"`
}

// PDFRef describes a rendered PDF stored in the cold tier.
type PDFRef struct {
	Key         string    `json:"key"`
	Bytes       int       `json:"bytes"`
	ContentHash string    `json:"content_hash"`
	CreatedAt   time.Time `json:"created_at"`
}

// Proposal is a pending set of edits drafted by the model for user review.
type Proposal struct {
	Edits     []Edit    `json:"edits"`
	Rationale string    `json:"rationale,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Auxiliary holds the resolved cold-tier blobs of a session.
type Auxiliary struct {
	Events      []Event           `json:"events,omitempty"`
	PDFHistory  []PDFRef          `json:"pdf_history,omitempty"`
	PackHistory []json.RawMessage `json:"pack_history,omitempty"`
	Proposal    *Proposal         `json:"proposal,omitempty"`
}

// Session is a versioned snapshot of one session.
type Session struct {
	ID      string    `json:"id"`
	CV      *types.CV `json:"cv_data"`
	Meta    Metadata  `json:"metadata"`
	Version int64     `json:"version"`
	Aux     Auxiliary `json:"-"`
	// RecordBytes is the size of the hot record as persisted.
	RecordBytes int `json:"-"`
}

// LatestPDF returns the most recent rendered PDF reference, if any.
func (s *Session) LatestPDF() (PDFRef, bool) {
	if len(s.Aux.PDFHistory) == 0 {
		return PDFRef{}, false
	}
	return s.Aux.PDFHistory[len(s.Aux.PDFHistory)-1], true
}

func newMetadata(now time.Time) Metadata {
	return Metadata{
		Stage:             stage.Bootstrap,
		ConfirmedFlags:    map[string]bool{},
		SectionHashesPrev: map[string]string{},
		Blobs:             map[string]BlobRef{},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

func (m *Metadata) ensureMaps() {
	if m.ConfirmedFlags == nil {
		m.ConfirmedFlags = map[string]bool{}
	}
	if m.SectionHashesPrev == nil {
		m.SectionHashesPrev = map[string]string{}
	}
	if m.Blobs == nil {
		m.Blobs = map[string]BlobRef{}
	}
}

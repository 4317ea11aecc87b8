package validation

import (
	"encoding/json"

	"github.com/jonathan/cv-tailor/internal/types"
)

// Limits are the size and layout ceilings of the output template.
type Limits struct {
	MaxPhotoBytes  int
	MaxBulletChars int
	MaxRecordBytes int
	MaxPages       int
	CharsPerPage   int
	// EntryOverheadChars approximates the space a heading line, date line and
	// spacing take per entry.
	EntryOverheadChars int
}

// DefaultLimits returns the ceilings of the standard two-page template.
func DefaultLimits() Limits {
	return Limits{
		MaxPhotoBytes:      200 * 1024,
		MaxBulletChars:     300,
		MaxRecordBytes:     400 * 1024,
		MaxPages:           2,
		CharsPerPage:       3200,
		EntryOverheadChars: 90,
	}
}

// Options are per-call inputs to Validate.
type Options struct {
	// Language is the output language (ISO 639-1). Empty means English.
	Language string
	// RecordBytes is the size of the persisted record. When zero the size of
	// the serialized CV is used.
	RecordBytes int
}

// Validator runs the ordered checks against a CV.
type Validator struct {
	limits Limits
}

// New creates a Validator with the given limits.
func New(limits Limits) *Validator {
	return &Validator{limits: limits}
}

// Limits returns the ceilings this validator enforces.
func (v *Validator) Limits() Limits {
	return v.limits
}

// Validate runs, in order: required fields, size constraints, cross-field
// consistency and the page estimate. The result is valid iff it has no HIGH
// findings.
func (v *Validator) Validate(cv *types.CV, opts Options) *Result {
	if cv == nil {
		cv = &types.CV{}
	}
	res := &Result{}

	for _, f := range checkRequired(cv) {
		res.add(f)
	}

	recordBytes := opts.RecordBytes
	if recordBytes == 0 {
		if data, err := json.Marshal(cv); err == nil {
			recordBytes = len(data)
		}
	}
	for _, f := range checkSizes(cv, recordBytes, v.limits) {
		res.add(f)
	}

	for _, f := range checkConsistency(cv) {
		res.add(f)
	}

	est := EstimatePages(cv, opts.Language, v.limits)
	res.EstimatedPages = est.Pages
	if f := pageFinding(est, v.limits); f != nil {
		res.add(*f)
	}

	res.finish()
	return res
}

package contextpack

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/cv-tailor/internal/stage"
	"github.com/jonathan/cv-tailor/internal/types"
)

const (
	// DefaultMaxChars is the default character budget of a pack.
	DefaultMaxChars = 24000
	// PreviewChars bounds the preview of a summary payload.
	PreviewChars = 120
)

// DemotionOrder lists sections from first to last demoted or dropped when a
// pack is over budget. Required sections come last and are never reduced.
var DemotionOrder = []string{
	types.SectionReferences,
	types.SectionInterests,
	types.SectionSkills,
	types.SectionLanguages,
	types.SectionFurtherExperience,
	types.SectionProfile,
	types.SectionWorkExperience,
	types.SectionEducation,
	types.SectionContact,
}

// completenessOrder is the order in which missing sections are reported.
var completenessOrder = []string{
	types.SectionContact,
	types.SectionEducation,
	types.SectionWorkExperience,
	types.SectionFurtherExperience,
	types.SectionLanguages,
	types.SectionSkills,
	types.SectionInterests,
	types.SectionReferences,
}

// Input is a consistent snapshot of everything a pack is built from.
type Input struct {
	Stage          stage.Stage
	CV             *types.CV
	Hashes         map[string]string
	Changes        map[string]bool
	ConfirmedFlags map[string]bool
	JobReference   *types.JobReference
	Validation     *ValidationDigest
}

// Builder assembles packs under a character budget.
type Builder struct {
	maxChars int
}

// NewBuilder creates a builder. A non-positive budget selects DefaultMaxChars.
func NewBuilder(maxChars int) *Builder {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	return &Builder{maxChars: maxChars}
}

// MaxChars returns the budget.
func (b *Builder) MaxChars() int {
	return b.maxChars
}

// Build assembles the pack. Changed sections carry full content; unchanged
// ones carry a summary. Over budget, changed optional sections are demoted to
// summaries in DemotionOrder, then optional summaries are dropped in the same
// order. If the pack still does not fit, Build returns an OverflowError.
func (b *Builder) Build(in Input) (*Pack, error) {
	cv := in.CV
	if cv == nil {
		cv = &types.CV{}
	}
	raw, err := cv.Sections()
	if err != nil {
		return nil, &BuildError{Section: "(cv_data)", Cause: err}
	}

	pack := &Pack{
		SchemaVersion:  SchemaVersion,
		Stage:          in.Stage,
		SectionChanges: make(map[string]bool, len(types.SectionOrder)),
		Sections:       make(map[string]SectionPayload, len(types.SectionOrder)),
		Completeness:   completeness(cv, in.ConfirmedFlags),
		JobReference:   in.JobReference,
		Validation:     in.Validation,
	}

	for _, name := range types.SectionOrder {
		changed, known := in.Changes[name]
		if !known {
			changed = true
		}
		pack.SectionChanges[name] = changed
		if changed {
			pack.Sections[name] = SectionPayload{Status: StatusChanged, Data: raw[name]}
		} else {
			pack.Sections[name] = summarize(cv, name, in.Hashes[name])
		}
	}

	size, err := measure(pack)
	if err != nil {
		return nil, err
	}

	for _, name := range DemotionOrder {
		if size <= b.maxChars {
			break
		}
		p := pack.Sections[name]
		if types.IsRequired(name) || p.Status != StatusChanged {
			continue
		}
		pack.Sections[name] = summarize(cv, name, in.Hashes[name])
		pack.Demoted = append(pack.Demoted, name)
		if size, err = measure(pack); err != nil {
			return nil, err
		}
	}

	for _, name := range DemotionOrder {
		if size <= b.maxChars {
			break
		}
		if types.IsRequired(name) {
			continue
		}
		if _, ok := pack.Sections[name]; !ok {
			continue
		}
		delete(pack.Sections, name)
		pack.Dropped = append(pack.Dropped, name)
		if size, err = measure(pack); err != nil {
			return nil, err
		}
	}

	if size > b.maxChars {
		kept := make([]string, 0, len(pack.Sections))
		for _, name := range types.SectionOrder {
			if _, ok := pack.Sections[name]; ok {
				kept = append(kept, name)
			}
		}
		return nil, &OverflowError{Budget: b.maxChars, Size: size, Kept: kept}
	}

	pack.Size = size
	return pack, nil
}

func measure(p *Pack) (int, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return 0, &BuildError{Section: "(pack)", Cause: err}
	}
	return utf8.RuneCount(data), nil
}

func summarize(cv *types.CV, name, hash string) SectionPayload {
	return SectionPayload{
		Status:  StatusUnchanged,
		Hash:    hash,
		Count:   cv.EntryCount(name),
		Preview: Preview(cv.Labels(name), PreviewChars),
	}
}

// Preview joins entry labels and cuts the result to at most limit runes.
func Preview(labels []string, limit int) string {
	s := strings.Join(strings.Fields(strings.Join(labels, "; ")), " ")
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:limit-1])) + "…"
}

func completeness(cv *types.CV, confirmed map[string]bool) Completeness {
	var c Completeness
	for _, name := range completenessOrder {
		if _, present := cv.Section(name); !present {
			n := name
			c.NextMissingSection = &n
			break
		}
	}
	c.RequiredPresent = true
	c.MissingConfirmations = []string{}
	for _, name := range types.RequiredSections {
		if _, present := cv.Section(name); !present {
			c.RequiredPresent = false
		}
		if !confirmed[name] {
			c.MissingConfirmations = append(c.MissingConfirmations, name)
		}
	}
	return c
}

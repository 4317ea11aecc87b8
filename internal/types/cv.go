// Package types provides type definitions for structured CV data used throughout the cv-tailor system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Section names. These are the top-level keys of cv_data.
const (
	SectionContact           = "contact"
	SectionProfile           = "profile"
	SectionEducation         = "education"
	SectionWorkExperience    = "work_experience"
	SectionFurtherExperience = "further_experience"
	SectionLanguages         = "languages"
	SectionSkills            = "skills"
	SectionInterests         = "interests"
	SectionReferences        = "references"
)

// SectionOrder is the canonical section ordering used for completeness checks
// and for iterating sections deterministically.
var SectionOrder = []string{
	SectionContact,
	SectionEducation,
	SectionWorkExperience,
	SectionFurtherExperience,
	SectionLanguages,
	SectionSkills,
	SectionInterests,
	SectionReferences,
	SectionProfile,
}

// RequiredSections must be present (and confirmed) before a PDF can be generated.
var RequiredSections = []string{SectionContact, SectionEducation}

// IsSection reports whether name is a known top-level section.
func IsSection(name string) bool {
	for _, s := range SectionOrder {
		if s == name {
			return true
		}
	}
	return false
}

// IsRequired reports whether a section is part of the readiness gate.
func IsRequired(name string) bool {
	for _, s := range RequiredSections {
		if s == name {
			return true
		}
	}
	return false
}

// DateRange is a free-form period. Start and End use "YYYY", "YYYY-MM" or "present".
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// Contact holds personal details shown in the CV header.
type Contact struct {
	FullName string `json:"full_name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Phone    string `json:"phone,omitempty"`
	Address  string `json:"address,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
	Website  string `json:"website,omitempty"`
}

// Education is a single degree or program.
type Education struct {
	Title       string    `json:"title" validate:"required"`
	Institution string    `json:"institution" validate:"required"`
	Location    string    `json:"location,omitempty"`
	Period      DateRange `json:"period"`
	Details     []string  `json:"details,omitempty"`
}

// WorkExperience is a single position.
type WorkExperience struct {
	Title    string    `json:"title" validate:"required"`
	Employer string    `json:"employer" validate:"required"`
	Location string    `json:"location,omitempty"`
	Period   DateRange `json:"period"`
	Bullets  []string  `json:"bullets,omitempty"`
}

// FurtherExperience covers projects, volunteering, certifications and similar.
type FurtherExperience struct {
	Title        string    `json:"title" validate:"required"`
	Organization string    `json:"organization,omitempty"`
	Period       DateRange `json:"period"`
	Bullets      []string  `json:"bullets,omitempty"`
}

// Language is a spoken language and proficiency.
type Language struct {
	Name  string `json:"name" validate:"required"`
	Level string `json:"level,omitempty"`
}

// SkillGroup is a labelled list of skills.
type SkillGroup struct {
	Category string   `json:"category,omitempty"`
	Items    []string `json:"items" validate:"required,min=1"`
}

// Reference is a professional reference.
type Reference struct {
	Name    string `json:"name" validate:"required"`
	Title   string `json:"title,omitempty"`
	Contact string `json:"contact,omitempty"`
}

// CV is the structured content of a session. Every section is optional at the
// type level; the validator decides what the template contract requires.
type CV struct {
	Contact           *Contact            `json:"contact,omitempty" validate:"required"`
	Profile           string              `json:"profile,omitempty"`
	Education         []Education         `json:"education,omitempty" validate:"required,min=1,dive"`
	WorkExperience    []WorkExperience    `json:"work_experience,omitempty" validate:"dive"`
	FurtherExperience []FurtherExperience `json:"further_experience,omitempty" validate:"dive"`
	Languages         []Language          `json:"languages,omitempty" validate:"dive"`
	Skills            []SkillGroup        `json:"skills,omitempty" validate:"dive"`
	Interests         []string            `json:"interests,omitempty"`
	References        []Reference         `json:"references,omitempty" validate:"dive"`

	// Photo is a base64-encoded image embedded in the header. It is not a
	// section: it is never hashed or sent in context packs.
	Photo string `json:"photo,omitempty"`
}

// DecodeCV strictly decodes CV JSON. Unknown fields are rejected so malformed
// records fail at the boundary instead of being silently dropped.
func DecodeCV(data []byte) (*CV, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var cv CV
	if err := dec.Decode(&cv); err != nil {
		return nil, fmt.Errorf("failed to decode cv_data: %w", err)
	}
	return &cv, nil
}

// Sections returns the raw JSON of every known section, keyed by section name.
// Absent sections map to JSON null.
func (c *CV) Sections() (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(SectionOrder))
	for _, name := range SectionOrder {
		v, _ := c.section(name)
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal section %s: %w", name, err)
		}
		out[name] = data
	}
	return out, nil
}

// Section returns the typed value of a section and whether it holds content.
func (c *CV) Section(name string) (any, bool) {
	return c.section(name)
}

func (c *CV) section(name string) (any, bool) {
	switch name {
	case SectionContact:
		return c.Contact, c.Contact != nil
	case SectionProfile:
		return c.Profile, strings.TrimSpace(c.Profile) != ""
	case SectionEducation:
		return c.Education, len(c.Education) > 0
	case SectionWorkExperience:
		return c.WorkExperience, len(c.WorkExperience) > 0
	case SectionFurtherExperience:
		return c.FurtherExperience, len(c.FurtherExperience) > 0
	case SectionLanguages:
		return c.Languages, len(c.Languages) > 0
	case SectionSkills:
		return c.Skills, len(c.Skills) > 0
	case SectionInterests:
		return c.Interests, len(c.Interests) > 0
	case SectionReferences:
		return c.References, len(c.References) > 0
	}
	return nil, false
}

// EntryCount returns the number of entries in a section. Scalar and object
// sections count as one entry when present.
func (c *CV) EntryCount(name string) int {
	switch name {
	case SectionEducation:
		return len(c.Education)
	case SectionWorkExperience:
		return len(c.WorkExperience)
	case SectionFurtherExperience:
		return len(c.FurtherExperience)
	case SectionLanguages:
		return len(c.Languages)
	case SectionSkills:
		return len(c.Skills)
	case SectionInterests:
		return len(c.Interests)
	case SectionReferences:
		return len(c.References)
	}
	if _, ok := c.section(name); ok {
		return 1
	}
	return 0
}

// Labels returns a short human label per entry of a section, in order.
func (c *CV) Labels(name string) []string {
	var labels []string
	switch name {
	case SectionContact:
		if c.Contact != nil {
			labels = append(labels, joinNonEmpty(" ", c.Contact.FullName, "<"+c.Contact.Email+">"))
		}
	case SectionProfile:
		if c.Profile != "" {
			labels = append(labels, c.Profile)
		}
	case SectionEducation:
		for _, e := range c.Education {
			labels = append(labels, joinNonEmpty(", ", e.Title, e.Institution))
		}
	case SectionWorkExperience:
		for _, w := range c.WorkExperience {
			labels = append(labels, joinNonEmpty(" @ ", w.Title, w.Employer))
		}
	case SectionFurtherExperience:
		for _, f := range c.FurtherExperience {
			labels = append(labels, joinNonEmpty(" @ ", f.Title, f.Organization))
		}
	case SectionLanguages:
		for _, l := range c.Languages {
			labels = append(labels, joinNonEmpty(" ", l.Name, l.Level))
		}
	case SectionSkills:
		for _, s := range c.Skills {
			labels = append(labels, joinNonEmpty(": ", s.Category, strings.Join(s.Items, ", ")))
		}
	case SectionInterests:
		labels = append(labels, c.Interests...)
	case SectionReferences:
		for _, r := range c.References {
			labels = append(labels, joinNonEmpty(", ", r.Name, r.Title))
		}
	}
	return labels
}

// ErrPhotoEncoding is returned by DecodePhoto for payloads that are not
// base64 image data.
var ErrPhotoEncoding = errors.New("photo is not base64 image data")

var photoEncodings = []*base64.Encoding{
	base64.StdEncoding,
	base64.RawStdEncoding,
	base64.URLEncoding,
	base64.RawURLEncoding,
}

// DecodePhoto decodes a base64 photo, optionally wrapped in an image data URI.
// Padded, unpadded and URL-safe payloads are accepted, as are embedded line
// breaks. The mime type defaults to image/jpeg.
func DecodePhoto(photo string) (mime string, data []byte, err error) {
	mime = "image/jpeg"
	payload := strings.TrimSpace(photo)
	if strings.HasPrefix(payload, "data:") {
		header, rest, ok := strings.Cut(payload, ",")
		if !ok || !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
			return "", nil, fmt.Errorf("%w: unsupported data uri", ErrPhotoEncoding)
		}
		mime = strings.TrimSuffix(strings.TrimPrefix(header, "data:"), ";base64")
		payload = rest
	}
	payload = strings.Join(strings.Fields(payload), "")
	if payload == "" {
		return "", nil, fmt.Errorf("%w: empty payload", ErrPhotoEncoding)
	}
	for _, enc := range photoEncodings {
		if data, err = enc.DecodeString(payload); err == nil {
			return mime, data, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %v", ErrPhotoEncoding, err)
}

// EstimatePhotoBytes approximates the decoded size of a photo payload that
// DecodePhoto rejected.
func EstimatePhotoBytes(photo string) int {
	if _, rest, ok := strings.Cut(photo, ","); ok && strings.HasPrefix(strings.TrimSpace(photo), "data:") {
		photo = rest
	}
	n := len(strings.Join(strings.Fields(photo), ""))
	return n * 3 / 4
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || p == "<>" {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, sep)
}

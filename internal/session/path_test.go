package session

import (
	"encoding/json"
	"testing"

	"github.com/jonathan/cv-tailor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCV() *types.CV {
	return &types.CV{
		Contact: &types.Contact{FullName: "Ada Lovelace", Email: "ada@example.com"},
		Education: []types.Education{
			{Title: "BSc Mathematics", Institution: "University of London"},
		},
		WorkExperience: []types.WorkExperience{
			{Title: "Analyst", Employer: "Babbage & Co", Bullets: []string{"Wrote the first program", "Annotated the engine"}},
		},
	}
}

func TestSplitPath(t *testing.T) {
	tests := []struct {
		path string
		want []string
	}{
		{"contact.email", []string{"contact", "email"}},
		{"work_experience[0].bullets[2]", []string{"work_experience", "0", "bullets", "2"}},
		{" education.0.title ", []string{"education", "0", "title"}},
		{"", nil},
		{".", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitPath(tt.path))
		})
	}
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestApplyEdits_Assignments(t *testing.T) {
	cv := sampleCV()

	got, err := applyEdits(cv, []Edit{
		{Path: "contact.phone", Value: raw(t, "+44 20 1234")},
		{Path: "work_experience.0.bullets.1", Value: raw(t, "Annotated the analytical engine")},
		{Path: "work_experience.0.bullets.2", Value: raw(t, "Appended bullet")},
		{Path: "skills", Value: raw(t, []map[string]any{{"category": "Math", "items": []string{"Calculus"}}})},
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "+44 20 1234", got.Contact.Phone)
	assert.Equal(t, []string{"Wrote the first program", "Annotated the analytical engine", "Appended bullet"}, got.WorkExperience[0].Bullets)
	require.Len(t, got.Skills, 1)
	assert.Equal(t, []string{"Calculus"}, got.Skills[0].Items)

	// input untouched
	assert.Empty(t, cv.Contact.Phone)
	assert.Len(t, cv.WorkExperience[0].Bullets, 2)
}

func TestApplyEdits_NullDeletes(t *testing.T) {
	got, err := applyEdits(sampleCV(), []Edit{
		{Path: "work_experience.0.bullets.0", Value: json.RawMessage("null")},
		{Path: "work_experience.0.bullets.0", Value: raw(t, "Replaced")},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Replaced"}, got.WorkExperience[0].Bullets)

	got, err = applyEdits(sampleCV(), []Edit{{Path: "work_experience", Value: json.RawMessage("null")}}, nil)
	require.NoError(t, err)
	assert.Nil(t, got.WorkExperience)
}

func TestApplyEdits_SectionPatch(t *testing.T) {
	patch := &SectionPatch{
		Section: types.SectionLanguages,
		Data:    raw(t, []types.Language{{Name: "English", Level: "native"}}),
	}
	got, err := applyEdits(sampleCV(), []Edit{{Path: "languages.1", Value: raw(t, map[string]string{"name": "German"})}}, patch)
	require.NoError(t, err)
	require.Len(t, got.Languages, 2)
	assert.Equal(t, "German", got.Languages[1].Name)
}

func TestApplyEdits_Rejections(t *testing.T) {
	tests := []struct {
		name  string
		edits []Edit
		patch *SectionPatch
	}{
		{"unknown section", []Edit{{Path: "hobbies.0", Value: raw(t, "chess")}}, nil},
		{"empty path", []Edit{{Path: "", Value: raw(t, "x")}}, nil},
		{"index gap", []Edit{{Path: "work_experience.0.bullets.5", Value: raw(t, "x")}}, nil},
		{"index on object", []Edit{{Path: "contact.0", Value: raw(t, "x")}}, nil},
		{"descend into scalar", []Edit{{Path: "profile.text", Value: raw(t, "x")}}, nil},
		{"unknown field", []Edit{{Path: "contact.nickname", Value: raw(t, "Ada")}}, nil},
		{"wrong type", []Edit{{Path: "education.0.title", Value: raw(t, 42)}}, nil},
		{"invalid JSON", []Edit{{Path: "profile", Value: json.RawMessage("{nope")}}, nil},
		{"unknown patch section", nil, &SectionPatch{Section: "hobbies", Data: raw(t, []string{"chess"})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cv := sampleCV()
			_, err := applyEdits(cv, tt.edits, tt.patch)
			var editErr *EditError
			require.ErrorAs(t, err, &editErr)
			assert.Equal(t, sampleCV(), cv)
		})
	}
}

func TestApplyEdits_Photo(t *testing.T) {
	got, err := applyEdits(sampleCV(), []Edit{{Path: "photo", Value: raw(t, "aGVsbG8=")}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "aGVsbG8=", got.Photo)
}

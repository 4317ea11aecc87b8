package hashing

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
			{Title: "BSc Mathematics", Institution: "University of London", Period: types.DateRange{Start: "1830", End: "1833"}},
		},
		WorkExperience: []types.WorkExperience{
			{Title: "Analyst", Employer: "Analytical Engine Ltd", Bullets: []string{"Wrote the first program"}},
		},
		Skills: []types.SkillGroup{{Category: "Math", Items: []string{"Analysis"}}},
	}
}

func TestComputeHash_Deterministic(t *testing.T) {
	raw := json.RawMessage(`{"b": 1, "a": ["x", "y"]}`)
	h1, err := ComputeHash(raw)
	require.NoError(t, err)
	h2, err := ComputeHash(raw)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, FingerprintBytes*2)
}

func TestComputeHash_KeyOrderAndWhitespaceInsensitive(t *testing.T) {
	h1, err := ComputeHash(json.RawMessage(`{"title": "Senior  Engineer ", "employer": "Acme"}`))
	require.NoError(t, err)
	h2, err := ComputeHash(json.RawMessage(`{"employer":"Acme","title":"Senior Engineer"}`))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestComputeHash_ContentChangeChangesHash(t *testing.T) {
	h1, err := ComputeHash(json.RawMessage(`[{"title": "Engineer"}]`))
	require.NoError(t, err)
	h2, err := ComputeHash(json.RawMessage(`[{"title": "Engineers"}]`))
	require.NoError(t, err)
	assert.NotEqual(t, h1, h2)

	// Entry order is content.
	h3, err := ComputeHash(json.RawMessage(`["a", "b"]`))
	require.NoError(t, err)
	h4, err := ComputeHash(json.RawMessage(`["b", "a"]`))
	require.NoError(t, err)
	assert.NotEqual(t, h3, h4)
}

func TestComputeHash_EmptyIsNull(t *testing.T) {
	h1, err := ComputeHash(nil)
	require.NoError(t, err)
	h2, err := ComputeHash(json.RawMessage("null"))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

func TestComputeHash_InvalidJSON(t *testing.T) {
	_, err := ComputeHash(json.RawMessage(`{"a":`))
	assert.Error(t, err)
}

func TestSectionHashes_LocalityOfChange(t *testing.T) {
	cv := sampleCV()
	before, err := SectionHashes(cv)
	require.NoError(t, err)

	cv.Education[0].Title = "MSc Mathematics"
	after, err := SectionHashes(cv)
	require.NoError(t, err)

	assert.NotEqual(t, before[types.SectionEducation], after[types.SectionEducation])
	for _, name := range types.SectionOrder {
		if name == types.SectionEducation {
			continue
		}
		assert.Equal(t, before[name], after[name], "section %s should be unchanged", name)
	}

	diff := Diff(before, after)
	assert.Equal(t, []string{types.SectionEducation}, Changed(diff))
}

func TestSectionHashes_PhotoIsNotHashed(t *testing.T) {
	cv := sampleCV()
	before, err := SectionHashes(cv)
	require.NoError(t, err)
	cv.Photo = "aGVsbG8="
	after, err := SectionHashes(cv)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDiff(t *testing.T) {
	prev := map[string]string{"contact": "aa", "education": "bb", "skills": "cc"}
	cur := map[string]string{"contact": "aa", "education": "bx", "languages": "dd"}

	diff := Diff(prev, cur)
	assert.False(t, diff["contact"])
	assert.True(t, diff["education"])
	assert.True(t, diff["languages"], "no prior value counts as changed")
	assert.True(t, diff["skills"], "removed section counts as changed")
	assert.Equal(t, []string{"education", "languages", "skills"}, Changed(diff))
}

func TestDiff_NilPrevious(t *testing.T) {
	diff := Diff(nil, map[string]string{"contact": "aa"})
	assert.True(t, diff["contact"])
}

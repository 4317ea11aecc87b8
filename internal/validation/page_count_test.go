package validation

import (
	"strings"
	"testing"

	"github.com/jonathan/cv-tailor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLanguageMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, LanguageMultiplier(""))
	assert.Equal(t, 1.0, LanguageMultiplier("en"))
	assert.Equal(t, 1.2, LanguageMultiplier("DE"))
	assert.Equal(t, 1.2, LanguageMultiplier("de-CH"))
	assert.Equal(t, 1.0, LanguageMultiplier("xx"))
}

func TestEstimatePages_LanguageExpansion(t *testing.T) {
	limits := DefaultLimits()
	cv := validCV()

	en := EstimatePages(cv, "en", limits)
	de := EstimatePages(cv, "de", limits)

	assert.Equal(t, en.TotalChars, de.TotalChars)
	assert.GreaterOrEqual(t, de.Pages, en.Pages)
	assert.Contains(t, en.SectionChars, types.SectionContact)
	assert.NotContains(t, en.SectionChars, types.SectionSkills)
}

func TestEstimatePages_CountsEntryOverhead(t *testing.T) {
	limits := DefaultLimits()
	cv := &types.CV{Interests: []string{"chess", "go"}}
	est := EstimatePages(cv, "en", limits)
	assert.Equal(t, len("chess")+len("go")+2*limits.EntryOverheadChars, est.TotalChars)
}

func TestValidate_PageOverflow(t *testing.T) {
	limits := DefaultLimits()
	cv := validCV()
	bullet := strings.Repeat("x", 250)
	for i := 0; i < 12; i++ {
		cv.WorkExperience = append(cv.WorkExperience, types.WorkExperience{
			Title:    "Engineer",
			Employer: "Acme",
			Bullets:  []string{bullet, bullet, bullet},
		})
	}

	res := New(limits).Validate(cv, Options{})
	assert.False(t, res.IsValid)
	assert.Greater(t, res.EstimatedPages, float64(limits.MaxPages))

	high := res.BySeverity(SeverityHigh)
	require.Len(t, high, 1)
	assert.Equal(t, "(document)", high[0].Field)
	assert.Contains(t, high[0].Suggestion, types.SectionWorkExperience)
}

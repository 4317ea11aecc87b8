package observability

import (
	"bytes"
	"fmt"
	"strings"
	"testing"

	"github.com/jonathan/cv-tailor/internal/types"
	"github.com/jonathan/cv-tailor/internal/validation"
	"github.com/stretchr/testify/assert"
)

func TestPrintCVSummary(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	cv := &types.CV{
		Contact: &types.Contact{FullName: "Ada Lovelace", Email: "ada@example.com"},
		Skills:  []types.SkillGroup{{Category: "Math", Items: []string{"Calculus"}}},
	}
	for i := 0; i < 7; i++ {
		cv.Interests = append(cv.Interests, fmt.Sprintf("interest %d", i))
	}

	p.PrintCVSummary(cv)
	output := buf.String()

	assert.Contains(t, output, "CV SUMMARY")
	assert.Contains(t, output, "Ada Lovelace")
	assert.Contains(t, output, "Math: Calculus")
	assert.Contains(t, output, "... and 2 more")
	assert.NotContains(t, output, "education")
}

func TestPrintCVSummary_Empty(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintCVSummary(nil)
	assert.Empty(t, buf.String())

	p.PrintCVSummary(&types.CV{})
	assert.Contains(t, buf.String(), "(empty)")
}

func TestPrintValidation(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintValidation(&validation.Result{
		IsValid:        false,
		EstimatedPages: 2.4,
		Errors: []validation.Finding{
			{Field: "photo", Severity: validation.SeverityHigh, Message: "photo exceeds 204800 bytes"},
			{Field: "work_experience.0.bullets.1", Severity: validation.SeverityLow, Message: "bullet is long"},
		},
	})
	output := buf.String()

	assert.Contains(t, output, "INVALID")
	assert.Contains(t, output, "2.40")
	assert.Contains(t, output, "HIGH (1)")
	assert.Contains(t, output, "LOW (1)")
	assert.NotContains(t, output, "MEDIUM")
}

func TestPrintValidation_Nil(t *testing.T) {
	var buf bytes.Buffer
	NewPrinter(&buf).PrintValidation(nil)
	assert.Empty(t, buf.String())
}

func TestPrintSectionHashes_Order(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.PrintSectionHashes(map[string]string{
		"skills":  "cccc",
		"contact": "aaaa",
		"zzz":     "dddd",
	})
	output := buf.String()

	contact := strings.Index(output, "contact")
	skills := strings.Index(output, "skills")
	extra := strings.Index(output, "zzz")
	assert.True(t, contact < skills && skills < extra, output)
}

func TestPrintBox_TruncatesLongLines(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.printBox("TITLE", strings.Repeat("é", 200))
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		assert.LessOrEqual(t, len([]rune(line)), boxWidth)
	}
	assert.Contains(t, buf.String(), "...")
}

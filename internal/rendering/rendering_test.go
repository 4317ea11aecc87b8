package rendering

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/jonathan/cv-tailor/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCV() *types.CV {
	return &types.CV{
		Contact:   &types.Contact{FullName: "Ada <Lovelace>", Email: "ada@example.com", Phone: "+44 1"},
		Profile:   "Mathematician & writer.",
		Education: []types.Education{{Title: "BSc Mathematics", Institution: "University of London", Period: types.DateRange{Start: "1830", End: "1833"}}},
		WorkExperience: []types.WorkExperience{
			{Title: "Analyst", Employer: "Babbage & Co", Period: types.DateRange{Start: "1842-01", End: "present"}, Bullets: []string{"Wrote <the> first program"}},
		},
		Skills:    []types.SkillGroup{{Category: "Math", Items: []string{"Calculus", "Algebra"}}},
		Languages: []types.Language{{Name: "English", Level: "native"}, {Name: "French"}},
		Interests: []string{"Poetry", "Horses"},
	}
}

func TestRenderHTML(t *testing.T) {
	html, err := RenderHTML(sampleCV(), "en")
	require.NoError(t, err)

	assert.Contains(t, html, `<html lang="en">`)
	assert.Contains(t, html, "Ada &lt;Lovelace&gt;")
	assert.Contains(t, html, "Wrote &lt;the&gt; first program")
	assert.Contains(t, html, "Babbage &amp; Co")
	assert.Contains(t, html, "Work Experience")
	assert.Contains(t, html, "1842-01 – present")
	assert.Contains(t, html, "Calculus, Algebra")
	assert.Contains(t, html, "English (native) · French")
	assert.NotContains(t, html, "References")
	assert.NotContains(t, html, "<img")
}

func TestRenderHTML_Language(t *testing.T) {
	html, err := RenderHTML(sampleCV(), "de-AT")
	require.NoError(t, err)
	assert.Contains(t, html, `<html lang="de">`)
	assert.Contains(t, html, "Berufserfahrung")

	html, err = RenderHTML(sampleCV(), "pl")
	require.NoError(t, err)
	assert.Contains(t, html, "Work Experience")
}

func TestRenderHTML_NilCV(t *testing.T) {
	_, err := RenderHTML(nil, "en")
	var re *RenderError
	assert.ErrorAs(t, err, &re)
}

func TestPhotoURL(t *testing.T) {
	tests := []struct {
		name  string
		photo string
		want  string
	}{
		{"empty", "", ""},
		{"raw base64", "aGVsbG8=", "data:image/jpeg;base64,aGVsbG8="},
		{"data uri", "data:image/png;base64,aGVsbG8=", "data:image/png;base64,aGVsbG8="},
		{"unpadded is re-encoded", "aGVsbG8", "data:image/jpeg;base64,aGVsbG8="},
		{"not base64", "%%%", ""},
		{"script uri", "data:text/html;base64,aGVsbG8=", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(photoURL(tt.photo)))
		})
	}

	cv := sampleCV()
	cv.Photo = "aGVsbG8="
	html, err := RenderHTML(cv, "en")
	require.NoError(t, err)
	assert.Contains(t, html, `<img src="data:image/jpeg;base64,aGVsbG8="`)
}

func chromePath() string {
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	return ""
}

func TestChromeRenderer_RenderPDF(t *testing.T) {
	path := chromePath()
	if path == "" {
		t.Skip("Skipping: Chrome not found on PATH")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	pdf, err := NewChromeRenderer(path, nil).RenderPDF(ctx, sampleCV(), "en")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(pdf, []byte("%PDF")), "output should be a PDF")
}

func TestFormatPeriod(t *testing.T) {
	assert.Equal(t, "2020 – 2021", formatPeriod(types.DateRange{Start: "2020", End: "2021"}))
	assert.Equal(t, "2020", formatPeriod(types.DateRange{Start: "2020"}))
	assert.Equal(t, "2021", formatPeriod(types.DateRange{End: "2021"}))
	assert.Empty(t, strings.TrimSpace(formatPeriod(types.DateRange{})))
}

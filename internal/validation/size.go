package validation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/cv-tailor/internal/types"
)

// checkSizes enforces the photo, bullet and record ceilings.
func checkSizes(cv *types.CV, recordBytes int, limits Limits) []Finding {
	var findings []Finding

	if cv.Photo != "" {
		if f := checkPhoto(cv.Photo, limits.MaxPhotoBytes); f != nil {
			findings = append(findings, *f)
		}
	}

	for i, w := range cv.WorkExperience {
		findings = append(findings, checkBullets(fmt.Sprintf("%s.%d.bullets", types.SectionWorkExperience, i), w.Bullets, limits.MaxBulletChars)...)
	}
	for i, f := range cv.FurtherExperience {
		findings = append(findings, checkBullets(fmt.Sprintf("%s.%d.bullets", types.SectionFurtherExperience, i), f.Bullets, limits.MaxBulletChars)...)
	}
	for i, e := range cv.Education {
		findings = append(findings, checkBullets(fmt.Sprintf("%s.%d.details", types.SectionEducation, i), e.Details, limits.MaxBulletChars)...)
	}

	if limits.MaxRecordBytes > 0 && recordBytes > limits.MaxRecordBytes {
		findings = append(findings, Finding{
			Field:    "(record)",
			Severity: SeverityHigh,
			Message: fmt.Sprintf("persisted record is %d KiB, maximum is %d KiB",
				kib(recordBytes), kib(limits.MaxRecordBytes)),
			Suggestion: "shrink the photo or shorten long free-text entries",
		})
	}

	return findings
}

// checkPhoto enforces the photo ceiling on the decoded size. A payload that
// does not decode cannot be rendered, so it is HIGH and its size is estimated
// from the encoded length.
func checkPhoto(photo string, maxBytes int) *Finding {
	_, data, err := types.DecodePhoto(photo)
	if err != nil {
		msg := fmt.Sprintf("photo is not valid base64 image data: %v", err)
		if size := types.EstimatePhotoBytes(photo); maxBytes > 0 && size > maxBytes {
			msg += fmt.Sprintf(" (about %d KiB, maximum is %d KiB)", kib(size), kib(maxBytes))
		}
		return &Finding{
			Field:      "photo",
			Severity:   SeverityHigh,
			Message:    msg,
			Suggestion: fmt.Sprintf("re-upload the photo as a base64 JPEG or PNG of at most %d KiB", kib(maxBytes)),
		}
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return &Finding{
			Field:    "photo",
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("photo is %d KiB, maximum is %d KiB", kib(len(data)), kib(maxBytes)),
			Suggestion: fmt.Sprintf("resize or recompress the photo to at most %d KiB (for example 400x400 px JPEG at 80%% quality)",
				kib(maxBytes)),
		}
	}
	return nil
}

func checkBullets(prefix string, bullets []string, maxChars int) []Finding {
	if maxChars <= 0 {
		return nil
	}
	var findings []Finding
	for i, b := range bullets {
		n := utf8.RuneCountInString(b)
		if n <= maxChars {
			continue
		}
		findings = append(findings, Finding{
			Field:      fmt.Sprintf("%s.%d", prefix, i),
			Severity:   SeverityMedium,
			Message:    fmt.Sprintf("bullet has %d characters, maximum is %d", n, maxChars),
			Suggestion: truncateWords(b, maxChars),
		})
	}
	return findings
}

// truncateWords shortens s to at most maxChars runes, cutting at a word
// boundary and ending with an ellipsis.
func truncateWords(s string, maxChars int) string {
	runes := []rune(strings.TrimSpace(s))
	if len(runes) <= maxChars {
		return string(runes)
	}
	cut := string(runes[:maxChars-1])
	if i := strings.LastIndex(cut, " "); i > maxChars/2 {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " ,;.") + "…"
}

func kib(n int) int {
	return (n + 1023) / 1024
}

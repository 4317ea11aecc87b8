package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/jonathan/cv-tailor/internal/types"
)

var (
	yearMonthPattern = regexp.MustCompile(`^(\d{4})(?:[-/.](\d{1,2}))?$`)
	monthYearPattern = regexp.MustCompile(`^(\d{1,2})[-/.](\d{4})$`)
)

// openEnded are end values meaning "ongoing".
var openEnded = map[string]bool{
	"present": true, "current": true, "now": true, "ongoing": true, "today": true,
}

// yearMonth is a comparable date; month is 0 when only the year is known.
type yearMonth struct {
	year, month int
}

func (a yearMonth) after(b yearMonth) bool {
	if a.year != b.year {
		return a.year > b.year
	}
	// A bare year never sorts after a month within the same year.
	if a.month == 0 || b.month == 0 {
		return false
	}
	return a.month > b.month
}

// parseDate parses "YYYY", "YYYY-MM", "YYYY/MM" or "MM/YYYY". ok is false
// for open-ended values and empty strings.
func parseDate(s string) (ym yearMonth, ok bool, err error) {
	s = strings.TrimSpace(s)
	if s == "" || openEnded[strings.ToLower(s)] {
		return yearMonth{}, false, nil
	}
	if m := yearMonthPattern.FindStringSubmatch(s); m != nil {
		ym.year, _ = strconv.Atoi(m[1])
		if m[2] != "" {
			ym.month, _ = strconv.Atoi(m[2])
		}
	} else if m := monthYearPattern.FindStringSubmatch(s); m != nil {
		ym.month, _ = strconv.Atoi(m[1])
		ym.year, _ = strconv.Atoi(m[2])
	} else {
		return yearMonth{}, false, fmt.Errorf("unrecognized date %q", s)
	}
	if ym.month < 0 || ym.month > 12 {
		return yearMonth{}, false, fmt.Errorf("month out of range in %q", s)
	}
	return ym, true, nil
}

// checkConsistency verifies every date range starts no later than it ends.
func checkConsistency(cv *types.CV) []Finding {
	var findings []Finding
	for i, e := range cv.Education {
		findings = append(findings, checkPeriod(fmt.Sprintf("%s.%d.period", types.SectionEducation, i), e.Period)...)
	}
	for i, w := range cv.WorkExperience {
		findings = append(findings, checkPeriod(fmt.Sprintf("%s.%d.period", types.SectionWorkExperience, i), w.Period)...)
	}
	for i, f := range cv.FurtherExperience {
		findings = append(findings, checkPeriod(fmt.Sprintf("%s.%d.period", types.SectionFurtherExperience, i), f.Period)...)
	}
	return findings
}

func checkPeriod(path string, p types.DateRange) []Finding {
	var findings []Finding

	start, hasStart, err := parseDate(p.Start)
	if err != nil {
		findings = append(findings, Finding{
			Field:      path + ".start",
			Severity:   SeverityMedium,
			Message:    err.Error(),
			Suggestion: "use YYYY or YYYY-MM",
		})
	}
	end, hasEnd, err := parseDate(p.End)
	if err != nil {
		findings = append(findings, Finding{
			Field:      path + ".end",
			Severity:   SeverityMedium,
			Message:    err.Error(),
			Suggestion: "use YYYY, YYYY-MM or \"present\"",
		})
	}

	if hasStart && hasEnd && start.after(end) {
		findings = append(findings, Finding{
			Field:      path,
			Severity:   SeverityHigh,
			Message:    fmt.Sprintf("start %s is after end %s", p.Start, p.End),
			Suggestion: types.DateRange{Start: p.End, End: p.Start},
		})
	}
	return findings
}

package validation

import (
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/jonathan/cv-tailor/internal/types"
)

// languageMultipliers approximate how much longer rendered text runs in a
// language compared to English.
var languageMultipliers = map[string]float64{
	"en": 1.0,
	"de": 1.2,
	"fr": 1.15,
	"es": 1.15,
	"pl": 1.1,
	"it": 1.1,
}

// LanguageMultiplier returns the expansion multiplier for a language code.
// Unknown languages use 1.0.
func LanguageMultiplier(lang string) float64 {
	lang = strings.ToLower(strings.TrimSpace(lang))
	if i := strings.IndexAny(lang, "-_"); i > 0 {
		lang = lang[:i]
	}
	if m, ok := languageMultipliers[lang]; ok {
		return m
	}
	return 1.0
}

// PageEstimate is the output of the page-count heuristic.
type PageEstimate struct {
	Pages        float64        `json:"pages"`
	TotalChars   int            `json:"total_chars"`
	SectionChars map[string]int `json:"section_chars"`
	Multiplier   float64        `json:"multiplier"`
}

// EstimatePages estimates rendered page count from per-section character
// volume, a per-entry layout overhead, the language multiplier and the
// template's per-page capacity. The result is rounded up to one decimal.
func EstimatePages(cv *types.CV, lang string, limits Limits) PageEstimate {
	est := PageEstimate{
		SectionChars: make(map[string]int, len(types.SectionOrder)),
		Multiplier:   LanguageMultiplier(lang),
	}
	for _, name := range types.SectionOrder {
		v, ok := cv.Section(name)
		if !ok {
			continue
		}
		chars := textChars(v) + cv.EntryCount(name)*limits.EntryOverheadChars
		est.SectionChars[name] = chars
		est.TotalChars += chars
	}
	if limits.CharsPerPage <= 0 {
		return est
	}
	pages := float64(est.TotalChars) * est.Multiplier / float64(limits.CharsPerPage)
	est.Pages = math.Ceil(pages*10) / 10
	return est
}

func pageFinding(est PageEstimate, limits Limits) *Finding {
	if limits.MaxPages <= 0 || est.Pages <= float64(limits.MaxPages) {
		return nil
	}
	budget := float64(limits.MaxPages*limits.CharsPerPage) / est.Multiplier
	excess := est.TotalChars - int(budget)
	bullets := int(math.Ceil(float64(excess) / float64(limits.MaxBulletChars/2)))
	return &Finding{
		Field:    "(document)",
		Severity: SeverityHigh,
		Message:  fmt.Sprintf("estimated %.1f pages, maximum is %d", est.Pages, limits.MaxPages),
		Suggestion: fmt.Sprintf("remove about %d characters (roughly %d bullets), starting with %s",
			excess, bullets, largestSection(est.SectionChars)),
	}
}

func largestSection(chars map[string]int) string {
	best, bestN := "", -1
	for _, name := range types.SectionOrder {
		if n, ok := chars[name]; ok && n > bestN {
			best, bestN = name, n
		}
	}
	return best
}

// textChars counts the runes of every string reachable from v.
func textChars(v any) int {
	switch t := v.(type) {
	case string:
		return utf8.RuneCountInString(strings.TrimSpace(t))
	case []string:
		n := 0
		for _, s := range t {
			n += textChars(s)
		}
		return n
	case *types.Contact:
		if t == nil {
			return 0
		}
		return textChars([]string{t.FullName, t.Email, t.Phone, t.Address, t.LinkedIn, t.Website})
	case []types.Education:
		n := 0
		for _, e := range t {
			n += textChars([]string{e.Title, e.Institution, e.Location, e.Period.Start, e.Period.End}) + textChars(e.Details)
		}
		return n
	case []types.WorkExperience:
		n := 0
		for _, w := range t {
			n += textChars([]string{w.Title, w.Employer, w.Location, w.Period.Start, w.Period.End}) + textChars(w.Bullets)
		}
		return n
	case []types.FurtherExperience:
		n := 0
		for _, f := range t {
			n += textChars([]string{f.Title, f.Organization, f.Period.Start, f.Period.End}) + textChars(f.Bullets)
		}
		return n
	case []types.Language:
		n := 0
		for _, l := range t {
			n += textChars([]string{l.Name, l.Level})
		}
		return n
	case []types.SkillGroup:
		n := 0
		for _, s := range t {
			n += textChars(s.Category) + textChars(s.Items)
		}
		return n
	case []types.Reference:
		n := 0
		for _, r := range t {
			n += textChars([]string{r.Name, r.Title, r.Contact})
		}
		return n
	}
	return 0
}

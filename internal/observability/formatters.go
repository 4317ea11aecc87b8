// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jonathan/cv-tailor/internal/types"
	"github.com/jonathan/cv-tailor/internal/validation"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted CLI output.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintCVSummary outputs the entry count and first labels of each section.
func (p *Printer) PrintCVSummary(cv *types.CV) {
	if cv == nil {
		return
	}

	var sb strings.Builder
	for _, name := range types.SectionOrder {
		n := cv.EntryCount(name)
		if n == 0 {
			continue
		}
		fmt.Fprintf(&sb, "%-18s %d\n", name, n)
		labels := cv.Labels(name)
		count := min(len(labels), maxItemsToShow)
		for _, l := range labels[:count] {
			fmt.Fprintf(&sb, "  • %s\n", l)
		}
		if len(labels) > maxItemsToShow {
			fmt.Fprintf(&sb, "  ... and %d more\n", len(labels)-maxItemsToShow)
		}
	}
	if sb.Len() == 0 {
		sb.WriteString("(empty)")
	}
	p.printBox("CV SUMMARY", sb.String())
}

// PrintValidation outputs a validation result grouped by severity.
func (p *Printer) PrintValidation(result *validation.Result) {
	if result == nil {
		return
	}

	var sb strings.Builder
	status := "VALID"
	if !result.IsValid {
		status = "INVALID"
	}
	fmt.Fprintf(&sb, "Status:          %s\n", status)
	fmt.Fprintf(&sb, "Estimated pages: %.2f\n", result.EstimatedPages)

	for _, sev := range []validation.Severity{validation.SeverityHigh, validation.SeverityMedium, validation.SeverityLow} {
		findings := result.BySeverity(sev)
		if len(findings) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n%s (%d):\n", sev, len(findings))
		for _, f := range findings {
			fmt.Fprintf(&sb, "  • %s: %s\n", f.Field, f.Message)
		}
	}
	p.printBox("VALIDATION", sb.String())
}

// PrintSectionHashes outputs section fingerprints in section order. Sections
// not in the standard order are listed after, sorted.
func (p *Printer) PrintSectionHashes(hashes map[string]string) {
	if len(hashes) == 0 {
		return
	}

	seen := make(map[string]bool, len(hashes))
	var names []string
	for _, name := range types.SectionOrder {
		if _, ok := hashes[name]; ok {
			names = append(names, name)
			seen[name] = true
		}
	}
	var extra []string
	for name := range hashes {
		if !seen[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	names = append(names, extra...)

	var sb strings.Builder
	for _, name := range names {
		fmt.Fprintf(&sb, "%-18s %s\n", name, hashes[name])
	}
	p.printBox("SECTION HASHES", sb.String())
}

// Package validation checks CV content against the output template contract:
// required fields, size ceilings, cross-field consistency and page budget.
package validation

import (
	"fmt"
	"strings"
)

// FindingsError carries a failed validation result. It is not fatal: callers
// surface the findings so they can be corrected in one batch and retried.
type FindingsError struct {
	Result *Result
}

func (e *FindingsError) Error() string {
	high := e.Result.BySeverity(SeverityHigh)
	fields := make([]string, 0, len(high))
	for _, f := range high {
		fields = append(fields, f.Field)
	}
	return fmt.Sprintf("validation failed with %d blocking finding(s): %s", len(high), strings.Join(fields, ", "))
}

// Findings returns the full ordered findings list.
func (e *FindingsError) Findings() []Finding {
	return e.Result.Errors
}

// Package contextpack builds the size-bounded payload handed to the model loop
// each turn: current stage, completeness state, and per-section content that
// is sent in full only when it changed since the previous turn.
package contextpack

import (
	"fmt"
	"strings"
)

// OverflowError is returned when the pack cannot fit its budget even after
// every optional section was demoted and dropped.
type OverflowError struct {
	Budget int
	Size   int
	// Kept lists the sections that could not be reduced further.
	Kept []string
}

func (e *OverflowError) Error() string {
	return fmt.Sprintf("context pack overflow: %d chars exceeds budget of %d (required content: %s)",
		e.Size, e.Budget, strings.Join(e.Kept, ", "))
}

// BuildError wraps failures to serialize section content.
type BuildError struct {
	Section string
	Cause   error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("failed to build payload for section %s: %v", e.Section, e.Cause)
}

func (e *BuildError) Unwrap() error {
	return e.Cause
}

// Package stage defines the CV tailoring workflow stages, the transition table
// between them, which actions are legal in which stage, and the readiness gate
// guarding PDF generation.
package stage

import (
	"encoding/json"
	"fmt"
)

// Stage is one state of the workflow state machine.
type Stage string

// Workflow stages, in forward order.
const (
	Bootstrap     Stage = "bootstrap"
	Extract       Stage = "extract"
	ReviewSession Stage = "review_session"
	DraftProposal Stage = "draft_proposal"
	ApplyEdits    Stage = "apply_edits"
	EditsOnly     Stage = "edits_only"
	FixValidation Stage = "fix_validation"
	GeneratePDF   Stage = "generate_pdf"
	Final         Stage = "final"
)

// All lists every stage in forward order.
var All = []Stage{
	Bootstrap,
	Extract,
	ReviewSession,
	DraftProposal,
	ApplyEdits,
	EditsOnly,
	FixValidation,
	GeneratePDF,
	Final,
}

// transitions is the fixed transition table. The only backward edge is
// generate_pdf -> fix_validation; fix_validation -> generate_pdf closes the loop.
var transitions = map[Stage][]Stage{
	Bootstrap:     {Extract},
	Extract:       {ReviewSession},
	ReviewSession: {DraftProposal, EditsOnly, GeneratePDF},
	DraftProposal: {ApplyEdits},
	ApplyEdits:    {EditsOnly, GeneratePDF},
	EditsOnly:     {GeneratePDF},
	FixValidation: {GeneratePDF},
	GeneratePDF:   {FixValidation, Final},
	Final:         {},
}

// Parse converts a string into a Stage, rejecting unknown values.
func Parse(s string) (Stage, error) {
	for _, st := range All {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown stage: %q", s)
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s Stage) String() string {
	return string(s)
}

// UnmarshalJSON rejects unknown stage names so persisted metadata cannot carry
// a stage the state machine does not know about.
func (s *Stage) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	parsed, err := Parse(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Next returns the stages directly reachable from s.
func (s Stage) Next() []Stage {
	next := transitions[s]
	out := make([]Stage, len(next))
	copy(out, next)
	return out
}

// CanTransition reports whether from -> to is an edge of the transition table.
func CanTransition(from, to Stage) bool {
	for _, n := range transitions[from] {
		if n == to {
			return true
		}
	}
	return false
}

// Transition validates from -> to and returns the target stage, or a
// ViolationError when the edge does not exist.
func Transition(from, to Stage) (Stage, error) {
	if !to.Valid() {
		return from, &ViolationError{From: from, To: to, Message: "unknown target stage"}
	}
	if !CanTransition(from, to) {
		return from, &ViolationError{From: from, To: to, Message: "transition not allowed"}
	}
	return to, nil
}

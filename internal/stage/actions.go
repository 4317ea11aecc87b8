package stage

import "sort"

// Action is an externally requested operation on a session.
type Action string

// Actions exposed through the tool dispatcher.
const (
	ActionIngestCV        Action = "ingest_cv"
	ActionGetSession      Action = "get_session"
	ActionGetContextPack  Action = "get_context_pack"
	ActionUpdateCV        Action = "update_cv"
	ActionConfirmSections Action = "confirm_sections"
	ActionAdvanceStage    Action = "advance_stage"
	ActionProposeEdits    Action = "propose_edits"
	ActionApplyProposal   Action = "apply_proposal"
	ActionValidateCV      Action = "validate_cv"
	ActionSetJobReference Action = "set_job_reference"
	ActionGeneratePDF     Action = "generate_pdf"
	ActionGetPDF          Action = "get_pdf"
)

// mutable is every stage except final.
var mutable = []Stage{
	Bootstrap, Extract, ReviewSession, DraftProposal, ApplyEdits,
	EditsOnly, FixValidation, GeneratePDF,
}

// legalFrom maps each action to the stages from which it may be requested.
var legalFrom = map[Action][]Stage{
	ActionIngestCV:        {Bootstrap},
	ActionGetSession:      All,
	ActionGetContextPack:  All,
	ActionUpdateCV:        {Extract, ReviewSession, ApplyEdits, EditsOnly, FixValidation},
	ActionConfirmSections: mutable,
	ActionAdvanceStage:    mutable,
	ActionProposeEdits:    {ReviewSession, DraftProposal},
	ActionApplyProposal:   {DraftProposal},
	ActionValidateCV:      mutable,
	ActionSetJobReference: mutable,
	ActionGeneratePDF:     {ReviewSession, ApplyEdits, EditsOnly, FixValidation, GeneratePDF},
	ActionGetPDF:          All,
}

// Actions returns every known action, sorted.
func Actions() []Action {
	out := make([]Action, 0, len(legalFrom))
	for a := range legalFrom {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Known reports whether a is a known action.
func (a Action) Known() bool {
	_, ok := legalFrom[a]
	return ok
}

// LegalIn returns the stages from which a may be requested.
func (a Action) LegalIn() []Stage {
	stages := legalFrom[a]
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

// CheckAction returns a ViolationError when a may not be requested in current.
func CheckAction(a Action, current Stage) error {
	for _, s := range legalFrom[a] {
		if s == current {
			return nil
		}
	}
	return &ViolationError{
		Action:  a,
		From:    current,
		Allowed: a.LegalIn(),
		Message: "action not allowed in current stage",
	}
}

// AdvanceTargets are the stages advance_stage may move to. generate_pdf,
// fix_validation and final are only entered by generation itself.
func AdvanceTargets(from Stage) []Stage {
	var out []Stage
	for _, n := range transitions[from] {
		switch n {
		case GeneratePDF, FixValidation, Final:
			continue
		}
		out = append(out, n)
	}
	return out
}

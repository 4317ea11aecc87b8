package stage

import "github.com/jonathan/cv-tailor/internal/types"

// Gate is the state the readiness check looks at.
type Gate struct {
	ConfirmedFlags map[string]bool
	// ValidationPassed is nil when no validation describes the current content.
	ValidationPassed *bool
}

// MissingConfirmations returns the required sections the user has not
// confirmed, in canonical order.
func MissingConfirmations(flags map[string]bool) []string {
	var missing []string
	for _, s := range types.RequiredSections {
		if !flags[s] {
			missing = append(missing, "confirmed_flags."+s)
		}
	}
	return missing
}

// CheckReadiness returns a ReadinessError listing every unmet precondition of
// the generate_pdf gate, or nil when generation may proceed.
func CheckReadiness(g Gate) error {
	missing := MissingConfirmations(g.ConfirmedFlags)
	if g.ValidationPassed != nil && !*g.ValidationPassed {
		missing = append(missing, "validation.is_valid")
	}
	if len(missing) > 0 {
		return &ReadinessError{Missing: missing}
	}
	return nil
}

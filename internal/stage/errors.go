package stage

import (
	"fmt"
	"strings"
)

// ViolationError is returned when an action or transition is requested from a
// stage that does not allow it. No state is mutated when it is returned.
type ViolationError struct {
	Action  Action
	From    Stage
	To      Stage
	Allowed []Stage
	Message string
}

func (e *ViolationError) Error() string {
	var sb strings.Builder
	sb.WriteString("stage violation: ")
	sb.WriteString(e.Message)
	if e.Action != "" {
		sb.WriteString(fmt.Sprintf(" (action %s in stage %s", e.Action, e.From))
		if len(e.Allowed) > 0 {
			names := make([]string, len(e.Allowed))
			for i, s := range e.Allowed {
				names[i] = string(s)
			}
			sb.WriteString(fmt.Sprintf("; allowed in %s", strings.Join(names, ", ")))
		}
		sb.WriteString(")")
		return sb.String()
	}
	sb.WriteString(fmt.Sprintf(" (%s -> %s)", e.From, e.To))
	return sb.String()
}

// ReadinessError is returned when the generation gate is not satisfied.
// Missing lists every unmet precondition.
type ReadinessError struct {
	Missing []string
}

func (e *ReadinessError) Error() string {
	return fmt.Sprintf("readiness not met: %s", strings.Join(e.Missing, ", "))
}

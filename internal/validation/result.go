package validation

// Severity ranks a finding. Only HIGH findings make a result invalid.
type Severity string

// Severities.
const (
	SeverityHigh   Severity = "HIGH"
	SeverityMedium Severity = "MEDIUM"
	SeverityLow    Severity = "LOW"
)

// Finding is a single validation failure.
type Finding struct {
	Field    string   `json:"field"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	// Suggestion is a mechanically derived corrected value or remediation,
	// when one exists.
	Suggestion any `json:"suggestion,omitempty"`
}

// Result is the outcome of validating a CV.
type Result struct {
	IsValid        bool      `json:"is_valid"`
	Errors         []Finding `json:"errors"`
	EstimatedPages float64   `json:"estimated_pages"`
}

// BySeverity returns the findings with the given severity, in order.
func (r *Result) BySeverity(s Severity) []Finding {
	var out []Finding
	for _, f := range r.Errors {
		if f.Severity == s {
			out = append(out, f)
		}
	}
	return out
}

// HasField reports whether any finding targets field.
func (r *Result) HasField(field string) bool {
	for _, f := range r.Errors {
		if f.Field == field {
			return true
		}
	}
	return false
}

// Err returns a FindingsError when the result is invalid, nil otherwise.
func (r *Result) Err() error {
	if r.IsValid {
		return nil
	}
	return &FindingsError{Result: r}
}

func (r *Result) add(f Finding) {
	r.Errors = append(r.Errors, f)
}

func (r *Result) finish() {
	r.IsValid = len(r.BySeverity(SeverityHigh)) == 0
	if r.Errors == nil {
		r.Errors = []Finding{}
	}
}

package validation

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/jonathan/cv-tailor/internal/types"
)

var (
	structValidator     *validator.Validate
	structValidatorOnce sync.Once

	indexPattern = regexp.MustCompile(`\[(\d+)\]`)
)

func getStructValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// Report JSON names so field paths match cv_data paths.
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// checkRequired validates presence and format of the fields the template
// contract requires, using the validate tags on the CV records.
func checkRequired(cv *types.CV) []Finding {
	err := getStructValidator().Struct(cv)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []Finding{{
			Field:    "(root)",
			Severity: SeverityHigh,
			Message:  fmt.Sprintf("cv_data could not be validated: %v", err),
		}}
	}

	findings := make([]Finding, 0, len(verrs))
	for _, fe := range verrs {
		findings = append(findings, Finding{
			Field:    fieldPath(fe.Namespace()),
			Severity: SeverityHigh,
			Message:  tagMessage(fe),
		})
	}

	if cv.Contact != nil && strings.TrimSpace(cv.Contact.Phone) == "" {
		findings = append(findings, Finding{
			Field:    "contact.phone",
			Severity: SeverityLow,
			Message:  "phone number is recommended",
		})
	}
	return findings
}

// fieldPath converts a validator namespace such as "CV.education[0].title"
// into the dotted path "education.0.title".
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		namespace = namespace[i+1:]
	}
	return indexPattern.ReplaceAllString(namespace, ".$1")
}

func tagMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "email":
		return fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "min":
		return fmt.Sprintf("%s must have at least %s entr(ies)", fe.Field(), fe.Param())
	default:
		return fmt.Sprintf("%s failed the %q check", fe.Field(), fe.Tag())
	}
}

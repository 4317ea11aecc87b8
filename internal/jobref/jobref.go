// Package jobref turns a job posting supplied as text, HTML or a URL into the
// bounded, sanitized job reference stored on a session.
package jobref

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonathan/cv-tailor/internal/types"
)

// MaxTextChars bounds the stored posting text.
const MaxTextChars = 6000

// Input is a job posting as supplied by the caller. Exactly one of Text,
// HTML or URL is used, in that order of preference.
type Input struct {
	Title   string `json:"title,omitempty"`
	Company string `json:"company,omitempty"`
	Text    string `json:"text,omitempty"`
	HTML    string `json:"html,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Error reports a posting that could not be turned into a reference.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("job reference: %s: %v", e.Message, e.Cause)
	}
	return "job reference: " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Resolver builds job references. It performs network I/O for URL inputs and
// must not be called while holding a session lock.
type Resolver struct {
	fetch  FetchOptions
	logger *slog.Logger
}

// NewResolver creates a resolver. A nil logger uses slog.Default().
func NewResolver(opts FetchOptions, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{fetch: opts, logger: logger}
}

// Resolve produces a sanitized job reference from in.
func (r *Resolver) Resolve(ctx context.Context, in Input) (*types.JobReference, error) {
	ref := &types.JobReference{
		Title:   strings.TrimSpace(in.Title),
		Company: strings.TrimSpace(in.Company),
		URL:     strings.TrimSpace(in.URL),
	}

	var text string
	switch {
	case strings.TrimSpace(in.Text) != "":
		text = CleanText(in.Text)
	case strings.TrimSpace(in.HTML) != "":
		body, title, err := ExtractMainText(in.HTML)
		if err != nil {
			return nil, &Error{Message: "failed to extract posting text", Cause: err}
		}
		text = body
		if ref.Title == "" {
			ref.Title = title
		}
	case ref.URL != "":
		html, err := Fetch(ctx, ref.URL, r.fetch)
		if err != nil {
			return nil, &Error{Message: "failed to fetch posting", Cause: err}
		}
		body, title, err := ExtractMainText(html)
		if err != nil {
			return nil, &Error{Message: "failed to extract posting text", Cause: err}
		}
		text = body
		if ref.Title == "" {
			ref.Title = title
		}
	default:
		return nil, &Error{Message: "one of text, html or url is required"}
	}

	if text == "" {
		return nil, &Error{Message: "posting contains no text"}
	}

	if check := CheckBasicHeuristics(text); !check.IsSafe {
		r.logger.Warn("potential prompt injection in job posting", "reason", check.Reason, "url", ref.URL)
	}
	text = StripInjectionAttempts(text)

	var truncated bool
	if text, truncated = Truncate(text, MaxTextChars); truncated {
		r.logger.Info("job posting truncated", "limit", MaxTextChars, "url", ref.URL)
	}
	ref.Text = text
	ref.Title, _ = Truncate(ref.Title, 200)
	ref.Company, _ = Truncate(ref.Company, 200)
	return ref, nil
}

// Quoted returns a copy of ref whose text is wrapped in quotation delimiters,
// ready to be placed in a model-facing payload.
func Quoted(ref *types.JobReference) *types.JobReference {
	if ref == nil {
		return nil
	}
	out := *ref
	out.Text = QuoteExternalContent(ref.Text)
	return &out
}

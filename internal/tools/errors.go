package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonathan/cv-tailor/internal/contextpack"
	"github.com/jonathan/cv-tailor/internal/jobref"
	"github.com/jonathan/cv-tailor/internal/schemas"
	"github.com/jonathan/cv-tailor/internal/session"
	"github.com/jonathan/cv-tailor/internal/stage"
	"github.com/jonathan/cv-tailor/internal/validation"
)

// ErrorCode is the taxonomy code carried by a failed tool response.
type ErrorCode string

// Error codes.
const (
	CodeStageViolation       ErrorCode = "StageViolation"
	CodeReadinessNotMet      ErrorCode = "ReadinessNotMet"
	CodeValidationError      ErrorCode = "ValidationError"
	CodeStorageError         ErrorCode = "StorageError"
	CodePackOverflow         ErrorCode = "PackOverflow"
	CodeToolContractError    ErrorCode = "ToolContractError"
	CodeConcurrentGeneration ErrorCode = "ConcurrentGenerationRejected"
	CodeNotFound             ErrorCode = "NotFound"
	CodeAlreadyExists        ErrorCode = "AlreadyExists"
	CodeJobReference         ErrorCode = "JobReferenceError"
	CodeGenerationTimeout    ErrorCode = "GenerationTimeout"
	CodeInternal             ErrorCode = "Internal"
)

// ContractError is returned when a request does not satisfy the tool's param
// contract. It is always raised before the session store is touched, or
// from an edit that was rejected without writing.
type ContractError struct {
	Tool    string
	Message string
	Fields  []schemas.FieldError
	Cause   error
}

func (e *ContractError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("tool contract error: %s: %s: %v", e.Tool, e.Message, e.Cause)
	}
	return fmt.Sprintf("tool contract error: %s: %s", e.Tool, e.Message)
}

func (e *ContractError) Unwrap() error {
	return e.Cause
}

// ConcurrentGenerationError is returned when a generation is already in flight
// for the session. The caller may retry once it completes.
type ConcurrentGenerationError struct {
	SessionID string
}

func (e *ConcurrentGenerationError) Error() string {
	return fmt.Sprintf("generation already in progress for session %s", e.SessionID)
}

// GenerationTimeoutError is returned when rendering did not finish in time.
// The session stays in generate_pdf and generation may be retried.
type GenerationTimeoutError struct {
	SessionID string
	Timeout   time.Duration
}

func (e *GenerationTimeoutError) Error() string {
	return fmt.Sprintf("generation for session %s timed out after %s", e.SessionID, e.Timeout)
}

func (e *GenerationTimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// NoPDFError is returned by get_pdf when nothing has been rendered yet.
type NoPDFError struct {
	SessionID string
}

func (e *NoPDFError) Error() string {
	return fmt.Sprintf("no pdf has been generated for session %s", e.SessionID)
}

// ErrorBody is the error part of a failed response.
type ErrorBody struct {
	Code      ErrorCode            `json:"code"`
	Message   string               `json:"message"`
	Retryable bool                 `json:"retryable"`
	Findings  []validation.Finding `json:"findings,omitempty"`
	Missing   []string             `json:"missing,omitempty"`
	Fields    []schemas.FieldError `json:"fields,omitempty"`
}

// Code maps an error to its taxonomy code.
func Code(err error) ErrorCode {
	var (
		violation   *stage.ViolationError
		readiness   *stage.ReadinessError
		findings    *validation.FindingsError
		storage     *session.StorageError
		overflow    *contextpack.OverflowError
		contract    *ContractError
		edit        *session.EditError
		concurrent  *ConcurrentGenerationError
		timeout     *GenerationTimeoutError
		notFound    *session.NotFoundError
		noPDF       *NoPDFError
		exists      *session.AlreadyExistsError
		jobRefError *jobref.Error
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &violation):
		return CodeStageViolation
	case errors.As(err, &readiness):
		return CodeReadinessNotMet
	case errors.As(err, &findings):
		return CodeValidationError
	case errors.As(err, &contract), errors.As(err, &edit):
		return CodeToolContractError
	case errors.As(err, &concurrent):
		return CodeConcurrentGeneration
	case errors.As(err, &timeout):
		return CodeGenerationTimeout
	case errors.As(err, &storage):
		return CodeStorageError
	case errors.As(err, &overflow):
		return CodePackOverflow
	case errors.As(err, &notFound), errors.As(err, &noPDF), errors.Is(err, session.ErrBlobNotFound):
		return CodeNotFound
	case errors.As(err, &exists):
		return CodeAlreadyExists
	case errors.As(err, &jobRefError):
		return CodeJobReference
	default:
		return CodeInternal
	}
}

// Retryable reports whether the same call may succeed later without changes.
func Retryable(code ErrorCode) bool {
	switch code {
	case CodeConcurrentGeneration, CodeGenerationTimeout:
		return true
	default:
		return false
	}
}

// Fatal reports whether the error must be surfaced to the end user rather
// than handled by the calling model loop.
func Fatal(code ErrorCode) bool {
	switch code {
	case CodeStorageError, CodePackOverflow, CodeInternal:
		return true
	default:
		return false
	}
}

func errorBody(err error) *ErrorBody {
	code := Code(err)
	body := &ErrorBody{
		Code:      code,
		Message:   err.Error(),
		Retryable: Retryable(code),
	}

	var (
		findings  *validation.FindingsError
		readiness *stage.ReadinessError
		contract  *ContractError
	)
	if errors.As(err, &findings) {
		body.Findings = findings.Findings()
	}
	if errors.As(err, &readiness) {
		body.Missing = readiness.Missing
	}
	if errors.As(err, &contract) {
		body.Fields = contract.Fields
	}
	return body
}

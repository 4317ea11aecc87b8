package server

import (
	"net/http"

	"github.com/jonathan/cv-tailor/internal/tools"
)

// HTTPStatus returns the HTTP status code for a tool error code.
func HTTPStatus(code tools.ErrorCode) int {
	switch code {
	case tools.CodeToolContractError:
		return http.StatusBadRequest
	case tools.CodeNotFound:
		return http.StatusNotFound
	case tools.CodeStageViolation, tools.CodeReadinessNotMet, tools.CodeAlreadyExists,
		tools.CodeConcurrentGeneration:
		return http.StatusConflict
	case tools.CodeValidationError, tools.CodePackOverflow:
		return http.StatusUnprocessableEntity
	case tools.CodeJobReference:
		return http.StatusBadGateway
	case tools.CodeGenerationTimeout:
		return http.StatusGatewayTimeout
	case tools.CodeStorageError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

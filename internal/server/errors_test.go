package server

import (
	"net/http"
	"testing"

	"github.com/jonathan/cv-tailor/internal/tools"
	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		code tools.ErrorCode
		want int
	}{
		{tools.CodeToolContractError, http.StatusBadRequest},
		{tools.CodeNotFound, http.StatusNotFound},
		{tools.CodeStageViolation, http.StatusConflict},
		{tools.CodeReadinessNotMet, http.StatusConflict},
		{tools.CodeAlreadyExists, http.StatusConflict},
		{tools.CodeConcurrentGeneration, http.StatusConflict},
		{tools.CodeValidationError, http.StatusUnprocessableEntity},
		{tools.CodePackOverflow, http.StatusUnprocessableEntity},
		{tools.CodeJobReference, http.StatusBadGateway},
		{tools.CodeGenerationTimeout, http.StatusGatewayTimeout},
		{tools.CodeStorageError, http.StatusServiceUnavailable},
		{tools.CodeInternal, http.StatusInternalServerError},
		{tools.ErrorCode("Unheard"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.code))
		})
	}
}

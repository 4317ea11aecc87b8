package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testValidator map[string]string

func (v testValidator) ValidateToken(token string) (SessionIDGetter, error) {
	id, ok := v[token]
	if !ok {
		return nil, errors.New("invalid token")
	}
	return testClaims(id), nil
}

type testClaims string

func (c testClaims) GetSessionID() string { return string(c) }

// echo writes the authenticated session id, or "-" when there is none.
var echo = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	id, ok := SessionID(r)
	if !ok {
		id = "-"
	}
	_, _ = w.Write([]byte(id))
})

func TestRequireSession(t *testing.T) {
	handler := RequireSession(testValidator{"good": "sess-1"})(echo)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"valid", "Bearer good", http.StatusOK, "sess-1"},
		{"lowercase scheme", "bearer good", http.StatusOK, "sess-1"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic good", http.StatusUnauthorized, ""},
		{"no token", "Bearer", http.StatusUnauthorized, ""},
		{"extra parts", "Bearer good extra", http.StatusUnauthorized, ""},
		{"unknown token", "Bearer bad", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/sessions/sess-1", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestOptionalSession(t *testing.T) {
	handler := OptionalSession(testValidator{"good": "sess-1"})(echo)

	req := httptest.NewRequest(http.MethodPost, "/tools", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "-", rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/tools", nil)
	req.Header.Set("Authorization", "Bearer good")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "sess-1", rec.Body.String())

	req = httptest.NewRequest(http.MethodPost, "/tools", nil)
	req.Header.Set("Authorization", "Bearer forged")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "a bad token is never ignored")
}

func TestSessionID_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, ok := SessionID(req)
	assert.False(t, ok)

	req = req.WithContext(WithSessionID(req.Context(), "s"))
	id, ok := SessionID(req)
	assert.True(t, ok)
	assert.Equal(t, "s", id)
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// These cases are rejected before the database is touched.
func TestRegisterValidation(t *testing.T) {
	h := NewHandler(nil, []byte("test-signing-key"))

	tests := []struct {
		name string
		body string
		want string
	}{
		{"malformed", `{"email":`, "Invalid request body"},
		{"missing name", `{"email":"a@b.co","password":"longenough"}`, "Email, name, and password are required"},
		{"short password", `{"email":"a@b.co","name":"Ana","password":"short"}`, "Password must be at least 8 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/register", strings.NewReader(tt.body))
			rec := httptest.NewRecorder()
			h.Register(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.want)
		})
	}
}

func TestLoginValidation(t *testing.T) {
	h := NewHandler(nil, []byte("test-signing-key"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"  "}`))
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Email and password are required")
}

func TestCurrentUserRequiresAuth(t *testing.T) {
	h := NewHandler(nil, []byte("test-signing-key"))

	rec := httptest.NewRecorder()
	h.GetCurrentUser(rec, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

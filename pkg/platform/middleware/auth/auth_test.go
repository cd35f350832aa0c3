package auth

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	id "claimreg/pkg/domain"
	"claimreg/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (v stubValidator) ValidateToken(string) (*JWTClaims, error) {
	return v.claims, v.err
}

func runAuth(t *testing.T, v JWTValidator, header string) (*httptest.ResponseRecorder, id.AccountID, bool) {
	t.Helper()
	var seen id.AccountID
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		seen = requestcontext.AccountID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	req := httptest.NewRequest(http.MethodPost, "/claims", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	RequireAuth(v, logger)(next).ServeHTTP(rec, req)
	return rec, seen, called
}

func TestRequireAuth(t *testing.T) {
	t.Run("missing header is rejected", func(t *testing.T) {
		rec, _, called := runAuth(t, stubValidator{}, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("non-bearer scheme is rejected", func(t *testing.T) {
		rec, _, called := runAuth(t, stubValidator{}, "Basic abc")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("invalid token is rejected", func(t *testing.T) {
		rec, _, called := runAuth(t, stubValidator{err: errors.New("bad signature")}, "Bearer tok")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid or expired token")
		assert.False(t, called)
	})

	t.Run("empty account claim is rejected", func(t *testing.T) {
		rec, _, called := runAuth(t, stubValidator{claims: &JWTClaims{}}, "Bearer tok")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.False(t, called)
	})

	t.Run("valid token puts caller in context", func(t *testing.T) {
		rec, seen, called := runAuth(t, stubValidator{claims: &JWTClaims{AccountID: "alice"}}, "Bearer tok")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.True(t, called)
		assert.Equal(t, id.AccountID("alice"), seen)
	})
}

package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "abc", BearerToken("  bearer   abc "))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken("Bearer"))
	assert.Equal(t, "", BearerToken(""))
}

func TestAllow(t *testing.T) {
	open := NewAdminGuard("  ")
	assert.False(t, open.Enabled())
	assert.True(t, open.Allow(""))

	var unset *AdminGuard
	assert.True(t, unset.Allow(""))

	g := NewAdminGuard("s3cret")
	assert.True(t, g.Enabled())
	assert.True(t, g.Allow("Bearer s3cret"))
	assert.False(t, g.Allow("Bearer s3cre"))
	assert.False(t, g.Allow(""))
}

func TestMiddleware(t *testing.T) {
	g := NewAdminGuard("s3cret")
	h := g.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/admin/init", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"admin token required"}`, rec.Body.String())

	req := httptest.NewRequest(http.MethodPost, "/v1/admin/init", nil)
	req.Header.Set("Authorization", "Bearer s3cret")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

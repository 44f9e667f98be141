package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func testPassHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestAdminLoginRoundTrip(t *testing.T) {
	a := NewAdmin(testPassHash(t, "hunter2"), nil)

	token, err := a.Login("hunter2", "1.2.3.4")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	assert.NoError(t, a.ValidateToken(token))
}

func TestAdminLoginBadPassword(t *testing.T) {
	a := NewAdmin(testPassHash(t, "hunter2"), nil)

	_, err := a.Login("wrong", "1.2.3.4")
	assert.ErrorIs(t, err, errBadCredentials)
}

func TestAdminLoginDisabledWithoutHash(t *testing.T) {
	a := NewAdmin("", nil)

	_, err := a.Login("anything", "1.2.3.4")
	assert.ErrorIs(t, err, errAdminDisabled)
}

func TestAdminLoginRateLimited(t *testing.T) {
	a := NewAdmin(testPassHash(t, "hunter2"), nil)

	for i := 0; i < maxLoginAttempts; i++ {
		a.Login("wrong", "1.2.3.4")
	}
	_, err := a.Login("hunter2", "1.2.3.4")
	assert.ErrorIs(t, err, errTooManyAttempts)

	// Other addresses keep their own budget
	_, err = a.Login("hunter2", "5.6.7.8")
	assert.NoError(t, err)
}

func TestAdminValidateTokenRejectsGarbage(t *testing.T) {
	a := NewAdmin(testPassHash(t, "hunter2"), nil)

	assert.Error(t, a.ValidateToken("not.a.token"))
	assert.Error(t, a.ValidateToken(""))
}

func TestAdminValidateTokenRejectsForeignSecret(t *testing.T) {
	a := NewAdmin(testPassHash(t, "hunter2"), nil)
	b := NewAdmin(testPassHash(t, "hunter2"), nil)

	token, err := a.Login("hunter2", "1.2.3.4")
	require.NoError(t, err)

	assert.Error(t, b.ValidateToken(token))
}

func TestAdminMiddleware(t *testing.T) {
	a := NewAdmin(testPassHash(t, "hunter2"), nil)
	handler := a.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest("GET", "/admin/stats", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := a.Login("hunter2", "1.2.3.4")
	require.NoError(t, err)

	r = httptest.NewRequest("GET", "/admin/stats", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminSecretPersistsAcrossRestart(t *testing.T) {
	db := testDB(t)

	a := NewAdmin(testPassHash(t, "hunter2"), db)
	token, err := a.Login("hunter2", "1.2.3.4")
	require.NoError(t, err)

	// Rebuilt against the same database, the secret is reused
	b := NewAdmin("", db)
	assert.NoError(t, b.ValidateToken(token))
}

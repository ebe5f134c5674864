package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndValidate(t *testing.T) {
	v := NewValidator("test-secret")
	require.NotNil(t, v)

	token, err := v.Issue("alice", time.Minute)
	require.NoError(t, err)

	claims, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.WithinDuration(t, time.Now().Add(time.Minute), claims.ExpiresAt, 5*time.Second)
}

func TestValidateRejectsWrongKeyAndExpiry(t *testing.T) {
	v := NewValidator("test-secret")
	other := NewValidator("other-secret")

	token, err := other.Issue("alice", time.Minute)
	require.NoError(t, err)
	_, err = v.Validate(token)
	assert.Error(t, err)

	expired, err := v.Issue("alice", -time.Minute)
	require.NoError(t, err)
	_, err = v.Validate(expired)
	assert.Error(t, err)

	_, err = v.Validate("not.a.token")
	assert.Error(t, err)
}

func TestMiddlewareEnforcement(t *testing.T) {
	v := NewValidator("test-secret")
	var gotSubject string
	handler := Middleware(v)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := FromContext(r.Context())
		require.True(t, ok)
		gotSubject = claims.Subject
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, `Bearer realm="connex"`, rec.Header().Get("WWW-Authenticate"))

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := v.Issue("bob", time.Minute)
	require.NoError(t, err)
	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", gotSubject)
}

func TestMiddlewareDisabledWithoutSecret(t *testing.T) {
	require.Nil(t, NewValidator(""))

	handler := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

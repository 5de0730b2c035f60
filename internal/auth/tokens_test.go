package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegis-sec/sentinel/internal/core"
)

var testActor = &core.Actor{
	ID:         "U001",
	Username:   "alice",
	Role:       core.RoleAnalyst,
	Department: "FINANCE",
}

func newIssuer() *Issuer {
	return NewIssuer("test-secret", 30*time.Minute, 7*24*time.Hour)
}

func TestIssueAndVerifyAccess(t *testing.T) {
	i := newIssuer()
	pair, err := i.IssuePair(testActor)
	require.NoError(t, err)
	assert.Equal(t, "bearer", pair.TokenType)
	assert.Equal(t, int64(1800), pair.ExpiresIn)

	claims, err := i.VerifyAccess(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "U001", claims.ActorID())
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, core.RoleAnalyst, claims.Role)
	assert.Equal(t, "FINANCE", claims.Department)
}

func TestRefreshTokenRejectedAsAccess(t *testing.T) {
	i := newIssuer()
	pair, err := i.IssuePair(testActor)
	require.NoError(t, err)

	_, err = i.VerifyAccess(pair.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = i.VerifyRefresh(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = i.VerifyRefresh(pair.RefreshToken)
	assert.NoError(t, err)
}

func TestExpiredToken(t *testing.T) {
	i := NewIssuer("test-secret", time.Nanosecond, time.Nanosecond)
	// NewIssuer clamps non-positive TTLs only, so a nanosecond TTL expires
	// immediately.
	pair, err := i.IssuePair(testActor)
	require.NoError(t, err)
	time.Sleep(10 * time.Millisecond)

	_, err = i.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestWrongSecret(t *testing.T) {
	pair, err := newIssuer().IssuePair(testActor)
	require.NoError(t, err)

	other := NewIssuer("other-secret", 30*time.Minute, time.Hour)
	_, err = other.VerifyAccess(pair.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("s3cret!")
	require.NoError(t, err)
	assert.True(t, CheckPassword(hash, "s3cret!"))
	assert.False(t, CheckPassword(hash, "wrong"))
}

func TestMiddlewareStoresClaims(t *testing.T) {
	i := newIssuer()
	pair, err := i.IssuePair(testActor)
	require.NoError(t, err)

	var got *Claims
	handler := i.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = ClaimsFrom(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, got)
	assert.Equal(t, "U001", got.ActorID())
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	handler := newIssuer().Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("handler should not run")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRoleBlocksPlainUsers(t *testing.T) {
	next := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	req := httptest.NewRequest(http.MethodPatch, "/", nil)
	ctx := context.WithValue(req.Context(), claimsKey, &Claims{Role: core.RoleUser})
	rec := httptest.NewRecorder()
	RequireRole(next).ServeHTTP(rec, req.WithContext(ctx))
	assert.Equal(t, http.StatusForbidden, rec.Code)

	ctx = context.WithValue(req.Context(), claimsKey, &Claims{Role: core.RoleAdmin})
	rec = httptest.NewRecorder()
	RequireRole(next).ServeHTTP(rec, req.WithContext(ctx))
	assert.Equal(t, http.StatusOK, rec.Code)
}

// Package auth issues and verifies the service's JWT credentials.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/aegis-sec/sentinel/internal/core"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// Token kinds. A refresh token can only be exchanged, never used to call
// the API directly.
const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// Claims is the signed identity carried by every token.
type Claims struct {
	Username   string    `json:"username"`
	Role       core.Role `json:"role"`
	Department string    `json:"department"`
	TokenType  string    `json:"type"`
	jwt.RegisteredClaims
}

// ActorID is the subject of the token.
func (c *Claims) ActorID() string { return c.Subject }

// TokenPair is what a successful login or refresh returns.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}

// Issuer signs and verifies HS256 tokens.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewIssuer builds an issuer. Non-positive TTLs fall back to 30 minutes
// for access and 7 days for refresh.
func NewIssuer(secret string, accessTTL, refreshTTL time.Duration) *Issuer {
	if accessTTL <= 0 {
		accessTTL = 30 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Issuer{secret: []byte(secret), accessTTL: accessTTL, refreshTTL: refreshTTL}
}

// IssuePair mints an access/refresh pair for the actor.
func (i *Issuer) IssuePair(actor *core.Actor) (TokenPair, error) {
	access, err := i.sign(actor, TokenAccess, i.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := i.sign(actor, TokenRefresh, i.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresIn:    int64(i.accessTTL.Seconds()),
	}, nil
}

func (i *Issuer) sign(actor *core.Actor, kind string, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := Claims{
		Username:   actor.Username,
		Role:       actor.Role,
		Department: actor.Department,
		TokenType:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, nil
}

// VerifyAccess parses an access token. Refresh tokens are rejected.
func (i *Issuer) VerifyAccess(raw string) (*Claims, error) {
	return i.verify(raw, TokenAccess)
}

// VerifyRefresh parses a refresh token. Access tokens are rejected.
func (i *Issuer) VerifyRefresh(raw string) (*Claims, error) {
	return i.verify(raw, TokenRefresh)
}

func (i *Issuer) verify(raw, wantKind string) (*Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid || claims.TokenType != wantKind || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

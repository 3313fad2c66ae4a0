// Package token issues and verifies the scoped bearer tokens used by the
// auth and session surfaces.
//
// Two scopes exist: "access" authorizes the general API, "proof" is the
// short-lived MFA proof required by session create/renew. A token is only
// valid for the scope it was minted with.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Scope is the authority class carried inside a token.
type Scope string

const (
	ScopeAccess Scope = "access"
	ScopeProof  Scope = "proof"
)

// ErrInvalidToken covers every verification failure: bad signature, wrong
// algorithm, expired, malformed subject, or scope mismatch. Callers map it
// to 401 without distinguishing the cause.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the verified content of a token.
type Claims struct {
	UserID    int64
	Scope     Scope
	ExpiresAt time.Time
}

type jwtClaims struct {
	Scope string `json:"scope"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HMAC tokens with a single shared key.
type Manager struct {
	secret    []byte
	method    jwt.SigningMethod
	accessTTL time.Duration
	proofTTL  time.Duration
}

// NewManager validates the key material and algorithm up front so a
// misconfigured service fails at startup, not on first login.
func NewManager(secret, algorithm string, accessTTL, proofTTL time.Duration) (*Manager, error) {
	if secret == "" {
		return nil, errors.New("token: secret key must not be empty")
	}
	method := jwt.GetSigningMethod(algorithm)
	if method == nil {
		return nil, fmt.Errorf("token: unknown signing algorithm %q", algorithm)
	}
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("token: algorithm %q is not an HMAC method", algorithm)
	}
	if accessTTL <= 0 || proofTTL <= 0 {
		return nil, errors.New("token: token lifetimes must be positive")
	}

	return &Manager{
		secret:    []byte(secret),
		method:    method,
		accessTTL: accessTTL,
		proofTTL:  proofTTL,
	}, nil
}

// IssueAccess mints an access-scope token for userID.
func (m *Manager) IssueAccess(userID int64, now time.Time) (string, time.Time, error) {
	return m.issue(userID, ScopeAccess, now, m.accessTTL)
}

// IssueProof mints a proof-scope token for userID.
func (m *Manager) IssueProof(userID int64, now time.Time) (string, time.Time, error) {
	return m.issue(userID, ScopeProof, now, m.proofTTL)
}

func (m *Manager) issue(userID int64, scope Scope, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)

	claims := jwtClaims{
		Scope: string(scope),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(userID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(m.method, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks signature, expiry, and scope, and returns the claims.
// The signing method is pinned to the configured one.
func (m *Manager) Verify(raw string, want Scope, now time.Time) (Claims, error) {
	var claims jwtClaims

	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	if claims.Scope != string(want) {
		return Claims{}, ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	return Claims{
		UserID:    userID,
		Scope:     want,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

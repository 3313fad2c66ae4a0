// Package auth resolves bearer tokens and the admin header into callers.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"wgsd/cmd/identity"
	"wgsd/cmd/security/token"
)

var (
	// ErrUnauthenticated covers a missing, malformed, expired, or
	// wrong-scope bearer token.
	ErrUnauthenticated = errors.New("missing or invalid token")

	// ErrForbidden is returned for a valid token whose user is missing
	// or disabled.
	ErrForbidden = errors.New("user not allowed")

	// ErrAdminForbidden is returned for a bad admin token.
	ErrAdminForbidden = errors.New("admin token invalid")
)

// UserStore is the user lookup the authenticator needs.
type UserStore interface {
	GetByID(ctx context.Context, id int64) (identity.User, error)
}

// Authenticator turns requests into authenticated users.
type Authenticator struct {
	tokens     *token.Manager
	users      UserStore
	adminToken string
}

// NewAuthenticator wires an Authenticator.
func NewAuthenticator(tokens *token.Manager, users UserStore, adminToken string) (*Authenticator, error) {
	if tokens == nil || users == nil {
		return nil, errors.New("auth: missing dependency")
	}
	if adminToken == "" {
		return nil, errors.New("auth: empty admin token")
	}
	return &Authenticator{tokens: tokens, users: users, adminToken: adminToken}, nil
}

// UserFromRequest authenticates the bearer token for the given scope and
// loads its user. A valid token for a missing or disabled user is
// ErrForbidden, everything else token-related is ErrUnauthenticated.
func (a *Authenticator) UserFromRequest(r *http.Request, scope token.Scope, now time.Time) (identity.User, error) {
	raw, ok := bearerToken(r)
	if !ok {
		return identity.User{}, ErrUnauthenticated
	}

	claims, err := a.tokens.Verify(raw, scope, now)
	if err != nil {
		return identity.User{}, ErrUnauthenticated
	}

	u, err := a.users.GetByID(r.Context(), claims.UserID)
	if errors.Is(err, identity.ErrUserNotFound) {
		return identity.User{}, ErrForbidden
	}
	if err != nil {
		return identity.User{}, err
	}
	if !u.IsActive {
		return identity.User{}, ErrForbidden
	}
	return u, nil
}

// RequireAdmin checks the X-Admin-Token header.
func (a *Authenticator) RequireAdmin(r *http.Request) error {
	got := r.Header.Get("X-Admin-Token")
	if subtle.ConstantTimeCompare([]byte(got), []byte(a.adminToken)) != 1 {
		return ErrAdminForbidden
	}
	return nil
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	raw := strings.TrimSpace(parts[1])
	return raw, raw != ""
}

package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"wgsd/cmd/identity"
	"wgsd/cmd/security/token"
)

type userMap map[int64]identity.User

func (m userMap) GetByID(_ context.Context, id int64) (identity.User, error) {
	u, ok := m[id]
	if !ok {
		return identity.User{}, identity.ErrUserNotFound
	}
	return u, nil
}

func newTestAuthenticator(t *testing.T, users userMap) (*Authenticator, *token.Manager) {
	t.Helper()

	tokens, err := token.NewManager("auth-test-secret", "HS256", 900*time.Second, 60*time.Second)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	a, err := NewAuthenticator(tokens, users, "admin-secret")
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return a, tokens
}

func TestUserFromRequest(t *testing.T) {
	t.Parallel()

	users := userMap{
		1: {ID: 1, Username: "demo", IsActive: true},
		2: {ID: 2, Username: "off", IsActive: false},
	}
	a, tokens := newTestAuthenticator(t, users)
	now := time.Now()

	access, _, err := tokens.IssueAccess(1, now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}

	r := httptest.NewRequest("GET", "/v1/sessions/x", nil)
	r.Header.Set("Authorization", "Bearer "+access)

	u, err := a.UserFromRequest(r, token.ScopeAccess, now)
	if err != nil {
		t.Fatalf("UserFromRequest: %v", err)
	}
	if u.ID != 1 {
		t.Fatalf("user id = %d", u.ID)
	}

	// Access token is not proof authority.
	if _, err := a.UserFromRequest(r, token.ScopeProof, now); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("access-as-proof err = %v", err)
	}

	// Missing and malformed headers.
	bare := httptest.NewRequest("GET", "/v1/sessions/x", nil)
	if _, err := a.UserFromRequest(bare, token.ScopeAccess, now); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("missing header err = %v", err)
	}
	bad := httptest.NewRequest("GET", "/v1/sessions/x", nil)
	bad.Header.Set("Authorization", "Token abc")
	if _, err := a.UserFromRequest(bad, token.ScopeAccess, now); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("bad scheme err = %v", err)
	}

	// Expired token.
	if _, err := a.UserFromRequest(r, token.ScopeAccess, now.Add(901*time.Second)); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expired err = %v", err)
	}
}

func TestUserFromRequestForbidden(t *testing.T) {
	t.Parallel()

	users := userMap{2: {ID: 2, Username: "off", IsActive: false}}
	a, tokens := newTestAuthenticator(t, users)
	now := time.Now()

	// Disabled user.
	disabled, _, err := tokens.IssueAccess(2, now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "bearer "+disabled)
	if _, err := a.UserFromRequest(r, token.ScopeAccess, now); !errors.Is(err, ErrForbidden) {
		t.Fatalf("disabled user err = %v", err)
	}

	// Valid token for a deleted user.
	gone, _, err := tokens.IssueAccess(99, now)
	if err != nil {
		t.Fatalf("IssueAccess: %v", err)
	}
	r2 := httptest.NewRequest("GET", "/", nil)
	r2.Header.Set("Authorization", "Bearer "+gone)
	if _, err := a.UserFromRequest(r2, token.ScopeAccess, now); !errors.Is(err, ErrForbidden) {
		t.Fatalf("missing user err = %v", err)
	}
}

func TestRequireAdmin(t *testing.T) {
	t.Parallel()

	a, _ := newTestAuthenticator(t, userMap{})

	r := httptest.NewRequest("GET", "/v1/admin/sessions", nil)
	if err := a.RequireAdmin(r); !errors.Is(err, ErrAdminForbidden) {
		t.Fatalf("missing header err = %v", err)
	}

	r.Header.Set("X-Admin-Token", "wrong")
	if err := a.RequireAdmin(r); !errors.Is(err, ErrAdminForbidden) {
		t.Fatalf("wrong token err = %v", err)
	}

	r.Header.Set("X-Admin-Token", "admin-secret")
	if err := a.RequireAdmin(r); err != nil {
		t.Fatalf("RequireAdmin: %v", err)
	}
}

// Package session owns the VPN session lifecycle.
//
// A session is created with a short expiry that the client keeps pushing
// forward by renewing, never past the hard max set at creation. Expiry is
// enforced twice: lazily whenever a handler touches a session, and by the
// background revoker sweep.
package session

import (
	"fmt"
	"time"
)

// Status is the session lifecycle state. EXPIRED and REVOKED are terminal.
type Status string

const (
	StatusActive  Status = "ACTIVE"
	StatusExpired Status = "EXPIRED"
	StatusRevoked Status = "REVOKED"
)

// ParseStatus validates a status string from the admin filter.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusActive, StatusExpired, StatusRevoked:
		return Status(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrBadStatusFilter, s)
	}
}

// Session is one sessions row.
type Session struct {
	ID             string
	UserID         int64
	Status         Status
	StartedAt      time.Time
	ExpiresAt      time.Time
	MaxExpiresAt   time.Time
	TTLMaxSeconds  int
	TTLStepSeconds int
	ClientPubkey   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Remaining returns the whole seconds left until expiry, floored at zero.
func (s Session) Remaining(now time.Time) int {
	d := s.ExpiresAt.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// ConfigData is the client tunnel configuration for one active session.
type ConfigData struct {
	Address       string
	DNS           []string
	GatewayPubkey string
	Endpoint      string
	AllowedIPs    []string
}

// Package challenge persists the MFA challenges backing the auth flow.
//
// A challenge is single-use: it is issued by /v1/auth/start or
// /v1/auth/step-up/start, burns one try per wrong TOTP code, and is
// consumed exactly once on success.
package challenge

import (
	"errors"
	"time"
)

// Type distinguishes what a successful verification unlocks.
type Type string

const (
	TypeLogin  Type = "LOGIN"
	TypeRenew  Type = "RENEW" // retained in the enum, no longer produced
	TypeStepUp Type = "STEPUP"
)

// MaxTries is the attempt budget per challenge.
const MaxTries = 5

// Challenge is one MFA challenge row.
type Challenge struct {
	ID        string
	UserID    int64
	Type      Type
	Tries     int
	Consumed  bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the challenge is past its deadline at now.
func (c Challenge) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// ErrChallengeNotFound is returned when no challenge matches the ID.
var ErrChallengeNotFound = errors.New("challenge not found")

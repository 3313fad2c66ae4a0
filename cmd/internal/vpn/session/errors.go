package session

import "errors"

var (
	// ErrSessionNotFound is returned when no session matches the ID.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotOwner is returned when a session belongs to another user.
	ErrNotOwner = errors.New("not owner")

	// ErrNotActive is returned for lifecycle operations on a session
	// that is already EXPIRED or REVOKED.
	ErrNotActive = errors.New("session not active")

	// ErrActiveSessionExists is returned by create when the user already
	// holds an active session and multiples are disabled.
	ErrActiveSessionExists = errors.New("active session exists")

	// ErrInvalidTTLStep is returned when the requested step is outside
	// (0, ttl_max].
	ErrInvalidTTLStep = errors.New("invalid ttl_step")

	// ErrTTLMaxReached is returned by renew at or past max_expires_at.
	ErrTTLMaxReached = errors.New("ttl max reached")

	// ErrNoExtension is returned by renew when the new expiry would not
	// move forward.
	ErrNoExtension = errors.New("no extension possible")

	// ErrPubkeyInUse is returned when the client pubkey is already bound
	// to another session.
	ErrPubkeyInUse = errors.New("client pubkey already in use")

	// ErrIPMissing means an active session has no pool entry. That is an
	// internal inconsistency, not a client error.
	ErrIPMissing = errors.New("ip not found for session")

	// ErrBadStatusFilter is returned for an unknown admin status filter.
	ErrBadStatusFilter = errors.New("bad status filter")
)

// Package ippool manages the pool of client tunnel addresses.
//
// Every address in the configured network lives in the ip_pool table in
// exactly one state. FREE addresses are handed to new sessions, ASSIGNED
// addresses belong to one session, and QUARANTINED addresses sit out a
// cooldown after release before they can be reused.
package ippool

import (
	"errors"
	"time"
)

// State is the lifecycle state of one pool entry.
type State string

const (
	StateFree        State = "FREE"
	StateAssigned    State = "ASSIGNED"
	StateQuarantined State = "QUARANTINED"
)

// Entry is one ip_pool row.
type Entry struct {
	IP               string
	State            State
	SessionID        *string
	QuarantinedUntil *time.Time
	UpdatedAt        time.Time
}

// Counts is the per-state size of the pool.
type Counts struct {
	Free        int
	Assigned    int
	Quarantined int
}

var (
	// ErrPoolExhausted is returned when no FREE address exists.
	ErrPoolExhausted = errors.New("no free IPs available")

	// ErrNoAssignedIP is returned when a session has no pool entry.
	ErrNoAssignedIP = errors.New("no IP assigned to session")
)

package session

import (
	"context"
	"time"
)

// Store is the session persistence contract used by Service.
type Store interface {
	Create(ctx context.Context, s Session) error
	GetByID(ctx context.Context, id string) (Session, error)
	FindActiveByUser(ctx context.Context, userID int64) (Session, error)
	UpdateStatus(ctx context.Context, id string, status Status, now time.Time) error
	UpdateExpiry(ctx context.Context, id string, expiresAt, now time.Time) error
	List(ctx context.Context, status *Status) ([]Session, error)
	ListExpired(ctx context.Context, now time.Time) ([]Session, error)
}

// IPStore is the slice of the IP pool the session lifecycle needs.
type IPStore interface {
	Allocate(ctx context.Context, sessionID string) (string, error)
	GetBySession(ctx context.Context, sessionID string) (string, error)
	QuarantineSession(ctx context.Context, sessionID string, until time.Time) error
}

// PeerClient programs peers on the WireGuard interface.
type PeerClient interface {
	AddPeer(ctx context.Context, sessionID, pubkey, allowedIPs string) error
	RemovePeer(ctx context.Context, sessionID, pubkey string) error
}

// Recorder appends audit entries.
type Recorder interface {
	Record(ctx context.Context, action string, userID *int64, sessionID *string, detail string)
}

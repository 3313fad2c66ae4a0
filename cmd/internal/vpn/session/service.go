package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"wgsd/cmd/identity/ids"
	"wgsd/cmd/internal/audit"
	"wgsd/cmd/internal/metrics"
	"wgsd/cmd/internal/vpn/ippool"
)

// Config carries the lifecycle policy and the tunnel parameters handed
// out in session configs.
type Config struct {
	TTLMax              time.Duration
	TTLStepDefault      time.Duration
	AllowMultipleActive bool
	QuarantineDuration  time.Duration

	DNS           string
	Endpoint      string
	GatewayPubkey string
	AllowedIPs    []string
}

// Service implements the session lifecycle on top of the stores and the
// peer daemon.
type Service struct {
	cfg     Config
	log     *slog.Logger
	store   Store
	ips     IPStore
	peers   PeerClient
	audit   Recorder
	metrics *metrics.Collector
}

// NewService wires a Service. metrics may be nil.
func NewService(cfg Config, log *slog.Logger, store Store, ips IPStore, peers PeerClient, rec Recorder, m *metrics.Collector) (*Service, error) {
	if log == nil {
		return nil, errors.New("session: nil logger")
	}
	if store == nil || ips == nil || peers == nil || rec == nil {
		return nil, errors.New("session: missing dependency")
	}
	if cfg.TTLMax <= 0 || cfg.TTLStepDefault <= 0 {
		return nil, errors.New("session: ttl config must be positive")
	}

	return &Service{
		cfg:     cfg,
		log:     log,
		store:   store,
		ips:     ips,
		peers:   peers,
		audit:   rec,
		metrics: m,
	}, nil
}

// CreateParams is the proof-gated create request.
type CreateParams struct {
	UserID       int64
	ClientPubkey string

	// TTLStepSeconds of 0 means the configured default.
	TTLStepSeconds int
}

// Create starts a new session: enforce the one-active-session policy,
// insert the row, allocate an address, and program the peer. The row and
// the address are committed before the daemon call; a daemon failure
// leaves them for admin reconciliation and surfaces as an internal error.
func (s *Service) Create(ctx context.Context, now time.Time, p CreateParams) (Session, error) {
	if !s.cfg.AllowMultipleActive {
		active, err := s.store.FindActiveByUser(ctx, p.UserID)
		switch {
		case err == nil:
			active, err = s.expireIfNeeded(ctx, now, active)
			if err != nil {
				return Session{}, err
			}
			if active.Status == StatusActive {
				return Session{}, ErrActiveSessionExists
			}
		case !errors.Is(err, ErrSessionNotFound):
			return Session{}, err
		}
	}

	step := s.cfg.TTLStepDefault
	if p.TTLStepSeconds != 0 {
		step = time.Duration(p.TTLStepSeconds) * time.Second
	}
	if step <= 0 || step > s.cfg.TTLMax {
		return Session{}, ErrInvalidTTLStep
	}

	id, err := ids.NewULID(now)
	if err != nil {
		return Session{}, fmt.Errorf("session: new id: %w", err)
	}

	expiresAt, maxExpiresAt := expirySchedule(now, step, s.cfg.TTLMax)
	sess := Session{
		ID:             id,
		UserID:         p.UserID,
		Status:         StatusActive,
		StartedAt:      now.UTC(),
		ExpiresAt:      expiresAt,
		MaxExpiresAt:   maxExpiresAt,
		TTLMaxSeconds:  int(s.cfg.TTLMax / time.Second),
		TTLStepSeconds: int(step / time.Second),
		ClientPubkey:   p.ClientPubkey,
		CreatedAt:      now.UTC(),
		UpdatedAt:      now.UTC(),
	}

	if err := s.store.Create(ctx, sess); err != nil {
		return Session{}, err
	}

	ip, err := s.ips.Allocate(ctx, sess.ID)
	if err != nil {
		return Session{}, err
	}
	allowedIPs := ip + "/32"

	if err := s.peers.AddPeer(ctx, sess.ID, sess.ClientPubkey, allowedIPs); err != nil {
		return Session{}, err
	}

	s.audit.Record(ctx, audit.ActionSessionCreated, &sess.UserID, &sess.ID,
		"Created session. Allocated IPs: "+allowedIPs)
	if s.metrics != nil {
		s.metrics.SessionCreated()
	}

	return sess, nil
}

// Status returns an owned session after the lazy expiry check.
func (s *Service) Status(ctx context.Context, now time.Time, userID int64, id string) (Session, error) {
	return s.getOwned(ctx, now, userID, id)
}

// Revoke ends an active owned session: flip the row, remove the peer,
// quarantine the address.
func (s *Service) Revoke(ctx context.Context, now time.Time, userID int64, id string) (Session, error) {
	sess, err := s.getOwned(ctx, now, userID, id)
	if err != nil {
		return Session{}, err
	}
	if sess.Status != StatusActive {
		return Session{}, ErrNotActive
	}

	if err := s.store.UpdateStatus(ctx, sess.ID, StatusRevoked, now); err != nil {
		return Session{}, err
	}
	sess.Status = StatusRevoked
	sess.UpdatedAt = now.UTC()

	if err := s.peers.RemovePeer(ctx, sess.ID, sess.ClientPubkey); err != nil {
		return Session{}, err
	}
	if err := s.ips.QuarantineSession(ctx, sess.ID, now.Add(s.cfg.QuarantineDuration)); err != nil {
		return Session{}, err
	}

	s.audit.Record(ctx, audit.ActionSessionRevoked, &userID, &sess.ID, "Manual revoke")
	if s.metrics != nil {
		s.metrics.SessionTerminated("manual")
	}

	return sess, nil
}

// Renew pushes the expiry forward by the session's step, capped at
// max_expires_at.
func (s *Service) Renew(ctx context.Context, now time.Time, userID int64, id string) (Session, error) {
	sess, err := s.getOwned(ctx, now, userID, id)
	if err != nil {
		return Session{}, err
	}
	if sess.Status != StatusActive {
		return Session{}, ErrNotActive
	}

	next, err := renewExpiry(now, sess)
	if err != nil {
		return Session{}, err
	}

	if err := s.store.UpdateExpiry(ctx, sess.ID, next, now); err != nil {
		return Session{}, err
	}
	sess.ExpiresAt = next
	sess.UpdatedAt = now.UTC()

	s.audit.Record(ctx, audit.ActionSessionRenewed, &userID, &sess.ID, "")
	if s.metrics != nil {
		s.metrics.SessionRenewed()
	}

	return sess, nil
}

// Config returns the tunnel configuration for an active owned session.
func (s *Service) Config(ctx context.Context, now time.Time, userID int64, id string) (ConfigData, error) {
	sess, err := s.getOwned(ctx, now, userID, id)
	if err != nil {
		return ConfigData{}, err
	}
	if sess.Status != StatusActive {
		return ConfigData{}, ErrNotActive
	}

	ip, err := s.ips.GetBySession(ctx, sess.ID)
	if errors.Is(err, ippool.ErrNoAssignedIP) {
		return ConfigData{}, ErrIPMissing
	}
	if err != nil {
		return ConfigData{}, err
	}

	return ConfigData{
		Address:       ip,
		DNS:           []string{s.cfg.DNS},
		GatewayPubkey: s.cfg.GatewayPubkey,
		Endpoint:      s.cfg.Endpoint,
		AllowedIPs:    s.cfg.AllowedIPs,
	}, nil
}

// AdminList returns sessions, optionally filtered by a status string.
func (s *Service) AdminList(ctx context.Context, filter string) ([]Session, error) {
	var status *Status
	if filter != "" {
		parsed, err := ParseStatus(filter)
		if err != nil {
			return nil, err
		}
		status = &parsed
	}
	return s.store.List(ctx, status)
}

// AdminRevoke force-revokes any session regardless of owner or state.
// The address is not quarantined; the operator decides what to reuse.
func (s *Service) AdminRevoke(ctx context.Context, now time.Time, id string) (Session, error) {
	sess, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Session{}, err
	}

	if err := s.store.UpdateStatus(ctx, sess.ID, StatusRevoked, now); err != nil {
		return Session{}, err
	}
	sess.Status = StatusRevoked
	sess.UpdatedAt = now.UTC()

	if err := s.peers.RemovePeer(ctx, sess.ID, sess.ClientPubkey); err != nil {
		return Session{}, err
	}

	s.audit.Record(ctx, audit.ActionAdminRevoke, &sess.UserID, &sess.ID, "")
	if s.metrics != nil {
		s.metrics.SessionTerminated("admin")
	}

	return sess, nil
}

// getOwned fetches a session, enforces ownership, and runs the lazy
// expiry check.
func (s *Service) getOwned(ctx context.Context, now time.Time, userID int64, id string) (Session, error) {
	sess, err := s.store.GetByID(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if sess.UserID != userID {
		return Session{}, ErrNotOwner
	}
	return s.expireIfNeeded(ctx, now, sess)
}

// expireIfNeeded flips an overdue ACTIVE session to EXPIRED. Peer removal
// is best effort on this path: the status flip must stand even when the
// daemon is unreachable.
func (s *Service) expireIfNeeded(ctx context.Context, now time.Time, sess Session) (Session, error) {
	if sess.Status != StatusActive || sess.ExpiresAt.After(now) {
		return sess, nil
	}

	if err := s.store.UpdateStatus(ctx, sess.ID, StatusExpired, now); err != nil {
		return Session{}, err
	}
	sess.Status = StatusExpired
	sess.UpdatedAt = now.UTC()

	if err := s.peers.RemovePeer(ctx, sess.ID, sess.ClientPubkey); err != nil {
		s.log.Error("session.expire.remove_peer.fail", "session_id", sess.ID, "err", err)
	}

	s.audit.Record(ctx, audit.ActionSessionExpired, &sess.UserID, &sess.ID, "On-access check")
	if s.metrics != nil {
		s.metrics.SessionTerminated("expired")
	}

	return sess, nil
}

// expirySchedule returns the first expiry and the hard cap for a session
// started at now.
func expirySchedule(now time.Time, step, max time.Duration) (expiresAt, maxExpiresAt time.Time) {
	maxExpiresAt = now.Add(max).UTC()
	expiresAt = now.Add(step).UTC()
	if expiresAt.After(maxExpiresAt) {
		expiresAt = maxExpiresAt
	}
	return expiresAt, maxExpiresAt
}

// renewExpiry computes the next expiry for a renew at now.
func renewExpiry(now time.Time, sess Session) (time.Time, error) {
	if !now.Before(sess.MaxExpiresAt) {
		return time.Time{}, ErrTTLMaxReached
	}

	next := now.Add(time.Duration(sess.TTLStepSeconds) * time.Second).UTC()
	if next.After(sess.MaxExpiresAt) {
		next = sess.MaxExpiresAt
	}
	if !next.After(sess.ExpiresAt) {
		return time.Time{}, ErrNoExtension
	}
	return next, nil
}

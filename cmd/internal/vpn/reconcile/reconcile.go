// Package reconcile runs the background loops that enforce session
// expiry and return quarantined addresses to the pool.
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"wgsd/cmd/internal/audit"
	"wgsd/cmd/internal/metrics"
	"wgsd/cmd/internal/vpn/ippool"
	"wgsd/cmd/internal/vpn/session"
)

// passGrace bounds a single worker pass. Passes run detached from the
// shutdown context: cancelling mid-pass would strand sessions with the
// peer removed but the row still ACTIVE.
const passGrace = time.Minute

// Revoker sweeps ACTIVE sessions whose expiry has passed.
type Revoker struct {
	log        *slog.Logger
	store      session.Store
	ips        session.IPStore
	peers      session.PeerClient
	audit      session.Recorder
	quarantine time.Duration
	interval   time.Duration
	metrics    *metrics.Collector
}

// NewRevoker wires a Revoker. metrics may be nil.
func NewRevoker(log *slog.Logger, store session.Store, ips session.IPStore, peers session.PeerClient, rec session.Recorder, quarantine, interval time.Duration, m *metrics.Collector) (*Revoker, error) {
	if log == nil || store == nil || ips == nil || peers == nil || rec == nil {
		return nil, errors.New("reconcile: missing revoker dependency")
	}
	if interval <= 0 {
		return nil, errors.New("reconcile: revoker interval must be positive")
	}
	return &Revoker{
		log:        log,
		store:      store,
		ips:        ips,
		peers:      peers,
		audit:      rec,
		quarantine: quarantine,
		interval:   interval,
		metrics:    m,
	}, nil
}

// Run sweeps on a fixed period until the context is cancelled.
func (r *Revoker) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("revoker.start", "interval", r.interval.String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("revoker.stop")
			return
		case <-ticker.C:
			sweepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), passGrace)
			err := r.SweepOnce(sweepCtx, time.Now().UTC())
			cancel()
			if err != nil {
				r.log.Error("revoker.sweep.fail", "err", err)
				if r.metrics != nil {
					r.metrics.SweepRun("revoker", "fail")
				}
				continue
			}
			if r.metrics != nil {
				r.metrics.SweepRun("revoker", "ok")
			}
		}
	}
}

// SweepOnce expires every overdue session. The peer is removed before the
// row flips: a session must never read EXPIRED while its peer still
// forwards traffic. A daemon failure leaves the session for the next pass.
func (r *Revoker) SweepOnce(ctx context.Context, now time.Time) error {
	expired, err := r.store.ListExpired(ctx, now)
	if err != nil {
		return err
	}

	for _, sess := range expired {
		if err := r.peers.RemovePeer(ctx, sess.ID, sess.ClientPubkey); err != nil {
			r.log.Error("revoker.remove_peer.fail", "session_id", sess.ID, "err", err)
			continue
		}
		if err := r.store.UpdateStatus(ctx, sess.ID, session.StatusExpired, now); err != nil {
			r.log.Error("revoker.update_status.fail", "session_id", sess.ID, "err", err)
			continue
		}
		if err := r.ips.QuarantineSession(ctx, sess.ID, now.Add(r.quarantine)); err != nil {
			r.log.Error("revoker.quarantine.fail", "session_id", sess.ID, "err", err)
			continue
		}

		r.audit.Record(ctx, audit.ActionSessionExpired, &sess.UserID, &sess.ID, "Auto-expire")
		if r.metrics != nil {
			r.metrics.SessionTerminated("expired")
		}
		r.log.Info("revoker.session_expired", "session_id", sess.ID)
	}
	return nil
}

// PoolStore is the slice of the IP pool the releaser needs.
type PoolStore interface {
	ReleaseExpired(ctx context.Context, now time.Time) (int64, error)
	Counts(ctx context.Context) (ippool.Counts, error)
}

// Releaser returns addresses whose quarantine has elapsed to FREE.
type Releaser struct {
	log      *slog.Logger
	ips      PoolStore
	interval time.Duration
	metrics  *metrics.Collector
}

// NewReleaser wires a Releaser. metrics may be nil.
func NewReleaser(log *slog.Logger, ips PoolStore, interval time.Duration, m *metrics.Collector) (*Releaser, error) {
	if log == nil || ips == nil {
		return nil, errors.New("reconcile: missing releaser dependency")
	}
	if interval <= 0 {
		return nil, errors.New("reconcile: releaser interval must be positive")
	}
	return &Releaser{log: log, ips: ips, interval: interval, metrics: m}, nil
}

// Run releases on a fixed period until the context is cancelled.
func (r *Releaser) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("releaser.start", "interval", r.interval.String())
	for {
		select {
		case <-ctx.Done():
			r.log.Info("releaser.stop")
			return
		case <-ticker.C:
			passCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), passGrace)
			_, err := r.ReleaseOnce(passCtx, time.Now().UTC())
			cancel()
			if err != nil {
				r.log.Error("releaser.pass.fail", "err", err)
				if r.metrics != nil {
					r.metrics.SweepRun("releaser", "fail")
				}
				continue
			}
			if r.metrics != nil {
				r.metrics.SweepRun("releaser", "ok")
			}
		}
	}
}

// ReleaseOnce runs one release pass and refreshes the pool gauges.
func (r *Releaser) ReleaseOnce(ctx context.Context, now time.Time) (int64, error) {
	released, err := r.ips.ReleaseExpired(ctx, now)
	if err != nil {
		return 0, err
	}
	if released > 0 {
		r.log.Info("releaser.released", "count", released)
		if r.metrics != nil {
			r.metrics.QuarantineReleased(int(released))
		}
	}

	if r.metrics != nil {
		counts, err := r.ips.Counts(ctx)
		if err != nil {
			r.log.Error("releaser.counts.fail", "err", err)
			return released, nil
		}
		r.metrics.SetIPPoolState(string(ippool.StateFree), counts.Free)
		r.metrics.SetIPPoolState(string(ippool.StateAssigned), counts.Assigned)
		r.metrics.SetIPPoolState(string(ippool.StateQuarantined), counts.Quarantined)
	}

	return released, nil
}

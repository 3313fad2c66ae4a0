package ippool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists the pool in the ip_pool table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires the store to an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("ippool: nil pgx pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Allocate claims one random FREE address for sessionID and returns it.
// The subquery locks the candidate row with SKIP LOCKED so concurrent
// allocations never pick the same address and never block each other.
func (s *PostgresStore) Allocate(ctx context.Context, sessionID string) (string, error) {
	var ip string
	err := s.pool.QueryRow(ctx, `
		UPDATE ip_pool
		SET state = 'ASSIGNED', session_id = $1, quarantined_until = NULL, updated_at = now()
		WHERE ip = (
			SELECT ip FROM ip_pool
			WHERE state = 'FREE'
			ORDER BY random()
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING ip::text
	`, sessionID).Scan(&ip)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrPoolExhausted
	}
	if err != nil {
		return "", fmt.Errorf("ippool: allocate: %w", err)
	}
	return ip, nil
}

// GetBySession returns the address assigned to sessionID.
func (s *PostgresStore) GetBySession(ctx context.Context, sessionID string) (string, error) {
	var ip string
	err := s.pool.QueryRow(ctx, `
		SELECT ip::text FROM ip_pool WHERE session_id = $1
	`, sessionID).Scan(&ip)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNoAssignedIP
	}
	if err != nil {
		return "", fmt.Errorf("ippool: get by session: %w", err)
	}
	return ip, nil
}

// QuarantineIP moves one address into quarantine until the deadline and
// detaches it from its session. A missing address is a no-op.
func (s *PostgresStore) QuarantineIP(ctx context.Context, ip string, until time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ip_pool
		SET state = 'QUARANTINED', session_id = NULL, quarantined_until = $2, updated_at = now()
		WHERE ip = $1::inet
	`, ip, until.UTC())
	if err != nil {
		return fmt.Errorf("ippool: quarantine ip: %w", err)
	}
	return nil
}

// QuarantineSession quarantines whatever address sessionID holds.
// A session without an address is a no-op.
func (s *PostgresStore) QuarantineSession(ctx context.Context, sessionID string, until time.Time) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE ip_pool
		SET state = 'QUARANTINED', session_id = NULL, quarantined_until = $2, updated_at = now()
		WHERE session_id = $1
	`, sessionID, until.UTC())
	if err != nil {
		return fmt.Errorf("ippool: quarantine session: %w", err)
	}
	return nil
}

// ReleaseExpired returns every address whose quarantine deadline has
// passed to FREE and reports how many were released.
func (s *PostgresStore) ReleaseExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ip_pool
		SET state = 'FREE', quarantined_until = NULL, updated_at = now()
		WHERE state = 'QUARANTINED'
		  AND quarantined_until IS NOT NULL
		  AND quarantined_until <= $1
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("ippool: release expired: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Counts returns the per-state pool sizes.
func (s *PostgresStore) Counts(ctx context.Context) (Counts, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT state, count(*) FROM ip_pool GROUP BY state
	`)
	if err != nil {
		return Counts{}, fmt.Errorf("ippool: counts: %w", err)
	}
	defer rows.Close()

	var c Counts
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return Counts{}, fmt.Errorf("ippool: counts: %w", err)
		}
		switch State(state) {
		case StateFree:
			c.Free = n
		case StateAssigned:
			c.Assigned = n
		case StateQuarantined:
			c.Quarantined = n
		}
	}
	if err := rows.Err(); err != nil {
		return Counts{}, fmt.Errorf("ippool: counts: %w", err)
	}
	return c, nil
}

// Sync reconciles the table with the configured network: missing host
// addresses are inserted FREE, FREE/QUARANTINED addresses outside the
// network are deleted, ASSIGNED addresses outside it are only reported.
// The whole pass runs under an advisory lock keyed on lockKey so two
// instances never reconcile at the same time.
func (s *PostgresStore) Sync(ctx context.Context, cidr string, reserved []string, lockKey string, log *slog.Logger) error {
	desired, err := hostAddrs(cidr, reserved)
	if err != nil {
		return err
	}

	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("ippool: sync: acquire: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock(hashtext($1))`, lockKey); err != nil {
		return fmt.Errorf("ippool: sync: lock: %w", err)
	}
	defer func() {
		_, _ = conn.Exec(ctx, `SELECT pg_advisory_unlock(hashtext($1))`, lockKey)
	}()

	rows, err := conn.Query(ctx, `SELECT ip::text, state FROM ip_pool`)
	if err != nil {
		return fmt.Errorf("ippool: sync: %w", err)
	}

	existing := make(map[string]State)
	for rows.Next() {
		var (
			ip    string
			state string
		)
		if err := rows.Scan(&ip, &state); err != nil {
			rows.Close()
			return fmt.Errorf("ippool: sync: %w", err)
		}
		existing[ip] = State(state)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("ippool: sync: %w", err)
	}

	desiredSet := make(map[string]struct{}, len(desired))
	for _, ip := range desired {
		desiredSet[ip] = struct{}{}
	}

	var toAdd []string
	for _, ip := range desired {
		if _, ok := existing[ip]; !ok {
			toAdd = append(toAdd, ip)
		}
	}
	sort.Strings(toAdd)

	var deletable, assignedOutside []string
	for ip, state := range existing {
		if _, ok := desiredSet[ip]; ok {
			continue
		}
		if state == StateAssigned {
			assignedOutside = append(assignedOutside, ip)
		} else {
			deletable = append(deletable, ip)
		}
	}

	if len(toAdd) > 0 {
		_, err := conn.Exec(ctx, `
			INSERT INTO ip_pool (ip, state, updated_at)
			SELECT unnest($1::text[])::inet, 'FREE', now()
		`, toAdd)
		if err != nil {
			return fmt.Errorf("ippool: sync: insert: %w", err)
		}
		log.Info("ippool.sync.added", "count", len(toAdd))
	}

	if len(deletable) > 0 {
		_, err := conn.Exec(ctx, `
			DELETE FROM ip_pool WHERE ip::text = ANY($1)
		`, deletable)
		if err != nil {
			return fmt.Errorf("ippool: sync: delete: %w", err)
		}
		log.Info("ippool.sync.removed", "count", len(deletable))
	}

	if len(assignedOutside) > 0 {
		sort.Strings(assignedOutside)
		examples := assignedOutside
		if len(examples) > 5 {
			examples = examples[:5]
		}
		log.Warn("ippool.sync.assigned_outside_cidr",
			"count", len(assignedOutside),
			"examples", examples,
		)
	}

	return nil
}

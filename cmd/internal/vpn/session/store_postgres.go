package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// uniqueViolation is the Postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

const sessionColumns = `
	id, user_id, status, started_at, expires_at, max_expires_at,
	ttl_max_seconds, ttl_step_seconds, client_pubkey, created_at, updated_at
`

// PostgresStore persists sessions in the sessions table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires the store to an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("session: nil pgx pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Create inserts a new session row. A duplicate client pubkey surfaces as
// ErrPubkeyInUse.
func (s *PostgresStore) Create(ctx context.Context, sess Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, user_id, status, started_at, expires_at, max_expires_at,
		                      ttl_max_seconds, ttl_step_seconds, client_pubkey, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		sess.ID, sess.UserID, string(sess.Status), sess.StartedAt, sess.ExpiresAt, sess.MaxExpiresAt,
		sess.TTLMaxSeconds, sess.TTLStepSeconds, sess.ClientPubkey, sess.CreatedAt, sess.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrPubkeyInUse
		}
		return fmt.Errorf("session: create: %w", err)
	}
	return nil
}

// GetByID fetches one session.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Session, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: get: %w", err)
	}
	return sess, nil
}

// FindActiveByUser returns the user's ACTIVE session, if any.
func (s *PostgresStore) FindActiveByUser(ctx context.Context, userID int64) (Session, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE user_id = $1 AND status = 'ACTIVE'
		ORDER BY started_at DESC
		LIMIT 1
	`, userID)
	sess, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("session: find active: %w", err)
	}
	return sess, nil
}

// UpdateStatus flips a session to a terminal state.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, status Status, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET status = $2, updated_at = $3 WHERE id = $1
	`, id, string(status), now.UTC())
	if err != nil {
		return fmt.Errorf("session: update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// UpdateExpiry moves the expiry forward after a renew.
func (s *PostgresStore) UpdateExpiry(ctx context.Context, id string, expiresAt, now time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE sessions SET expires_at = $2, updated_at = $3 WHERE id = $1
	`, id, expiresAt.UTC(), now.UTC())
	if err != nil {
		return fmt.Errorf("session: update expiry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// List returns sessions, optionally filtered by status, newest first.
func (s *PostgresStore) List(ctx context.Context, status *Status) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE $1::session_status IS NULL OR status = $1
		ORDER BY started_at DESC
	`, statusArg(status))
	if err != nil {
		return nil, fmt.Errorf("session: list: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

// ListExpired returns ACTIVE sessions whose expiry has passed.
func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time) ([]Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE status = 'ACTIVE' AND expires_at <= $1
		ORDER BY expires_at
	`, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("session: list expired: %w", err)
	}
	defer rows.Close()
	return collectSessions(rows)
}

func statusArg(status *Status) *string {
	if status == nil {
		return nil
	}
	s := string(*status)
	return &s
}

func collectSessions(rows pgx.Rows) ([]Session, error) {
	var out []Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("session: scan: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("session: rows: %w", err)
	}
	return out, nil
}

func scanSession(row pgx.Row) (Session, error) {
	var (
		sess   Session
		status string
	)
	err := row.Scan(
		&sess.ID, &sess.UserID, &status, &sess.StartedAt, &sess.ExpiresAt, &sess.MaxExpiresAt,
		&sess.TTLMaxSeconds, &sess.TTLStepSeconds, &sess.ClientPubkey, &sess.CreatedAt, &sess.UpdatedAt,
	)
	if err != nil {
		return Session{}, err
	}

	sess.Status = Status(status)
	// timestamptz comes back in the server session zone; normalize before
	// any comparison.
	sess.StartedAt = sess.StartedAt.UTC()
	sess.ExpiresAt = sess.ExpiresAt.UTC()
	sess.MaxExpiresAt = sess.MaxExpiresAt.UTC()
	sess.CreatedAt = sess.CreatedAt.UTC()
	sess.UpdatedAt = sess.UpdatedAt.UTC()
	return sess, nil
}

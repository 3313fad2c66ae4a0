// Package audit appends security-relevant events to the audit_logs table.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Actions recorded by the service.
const (
	ActionAuthStart      = "auth_start"
	ActionMFAVerified    = "auth_mfa_verified"
	ActionStepUpStart    = "stepup_start"
	ActionStepUpVerified = "stepup_mfa_verified"
	ActionSessionCreated = "session_created"
	ActionSessionRenewed = "session_renewed"
	ActionSessionRevoked = "session_revoked"
	ActionSessionExpired = "session_expired"
	ActionAdminRevoke    = "admin_revoke"
)

// Entry is one audit row.
type Entry struct {
	ID         int64
	OccurredAt time.Time
	UserID     *int64
	SessionID  *string
	Action     string
	Detail     *string
}

// Recorder writes and queries audit entries.
type Recorder struct {
	pool *pgxpool.Pool
	log  *slog.Logger
}

// NewRecorder wires the recorder to an existing pool.
func NewRecorder(pool *pgxpool.Pool, log *slog.Logger) (*Recorder, error) {
	if pool == nil {
		return nil, errors.New("audit: nil pgx pool")
	}
	if log == nil {
		return nil, errors.New("audit: nil logger")
	}
	return &Recorder{pool: pool, log: log}, nil
}

// Record appends one entry. Failures are logged and swallowed: an audit
// write must never fail the operation it describes.
func (r *Recorder) Record(ctx context.Context, action string, userID *int64, sessionID *string, detail string) {
	var d *string
	if detail != "" {
		d = &detail
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_logs (occurred_at, user_id, session_id, action, detail)
		VALUES (now(), $1, $2, $3, $4)
	`, userID, sessionID, action, d)
	if err != nil {
		r.log.Error("audit.record.fail", "action", action, "err", err)
	}
}

// ListRecent returns the newest entries, optionally filtered to one
// session, capped at limit.
func (r *Recorder) ListRecent(ctx context.Context, sessionID *string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 200
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, occurred_at, user_id, session_id, action, detail
		FROM audit_logs
		WHERE $1::text IS NULL OR session_id = $1
		ORDER BY occurred_at DESC, id DESC
		LIMIT $2
	`, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.OccurredAt, &e.UserID, &e.SessionID, &e.Action, &e.Detail); err != nil {
			return nil, fmt.Errorf("audit: list: %w", err)
		}
		e.OccurredAt = e.OccurredAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	return out, nil
}

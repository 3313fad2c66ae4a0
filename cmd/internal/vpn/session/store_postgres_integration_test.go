package session

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"wgsd/cmd/identity/ids"
	"wgsd/db"
)

// Integration tests are enabled when WG_DATABASE_URL is set.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresStoreLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustPGXPool(ctx, t)
	defer pool.Close()

	store, err := NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	userID := insertTestUser(ctx, t, pool, "store-a")
	now := time.Now().UTC().Truncate(time.Microsecond)

	sess := newTestSession(t, userID, now)
	if err := store.Create(ctx, sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { deleteSession(ctx, pool, sess.ID) })

	// A second session reusing the pubkey hits the unique constraint.
	dup := newTestSession(t, userID, now)
	dup.ClientPubkey = sess.ClientPubkey
	if err := store.Create(ctx, dup); !errors.Is(err, ErrPubkeyInUse) {
		t.Fatalf("duplicate pubkey err = %v", err)
	}

	got, err := store.GetByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.UserID != userID || got.Status != StatusActive {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) || !got.MaxExpiresAt.Equal(sess.MaxExpiresAt) {
		t.Fatalf("timestamps differ: got %v/%v want %v/%v",
			got.ExpiresAt, got.MaxExpiresAt, sess.ExpiresAt, sess.MaxExpiresAt)
	}

	active, err := store.FindActiveByUser(ctx, userID)
	if err != nil {
		t.Fatalf("FindActiveByUser: %v", err)
	}
	if active.ID != sess.ID {
		t.Fatalf("active session = %s, want %s", active.ID, sess.ID)
	}

	next := now.Add(30 * time.Minute)
	if err := store.UpdateExpiry(ctx, sess.ID, next, now); err != nil {
		t.Fatalf("UpdateExpiry: %v", err)
	}
	got, err = store.GetByID(ctx, sess.ID)
	if err != nil {
		t.Fatalf("GetByID(2): %v", err)
	}
	if !got.ExpiresAt.Equal(next) {
		t.Fatalf("expires_at = %v, want %v", got.ExpiresAt, next)
	}

	if err := store.UpdateStatus(ctx, sess.ID, StatusRevoked, now); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if _, err := store.FindActiveByUser(ctx, userID); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected no active session after revoke, got %v", err)
	}

	// The status filter only matches the revoked row.
	revoked := StatusRevoked
	list, err := store.List(ctx, &revoked)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if !containsSession(list, sess.ID) {
		t.Fatalf("revoked list misses %s", sess.ID)
	}
	activeOnly := StatusActive
	list, err = store.List(ctx, &activeOnly)
	if err != nil {
		t.Fatalf("List(ACTIVE): %v", err)
	}
	if containsSession(list, sess.ID) {
		t.Fatalf("active list contains revoked %s", sess.ID)
	}
}

func TestPostgresStoreListExpired(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustPGXPool(ctx, t)
	defer pool.Close()

	store, err := NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	userID := insertTestUser(ctx, t, pool, "store-b")
	now := time.Now().UTC().Truncate(time.Microsecond)

	overdue := newTestSession(t, userID, now.Add(-time.Hour))
	overdue.ExpiresAt = now.Add(-time.Minute)
	if err := store.Create(ctx, overdue); err != nil {
		t.Fatalf("Create(overdue): %v", err)
	}
	t.Cleanup(func() { deleteSession(ctx, pool, overdue.ID) })

	fresh := newTestSession(t, userID, now)
	if err := store.Create(ctx, fresh); err != nil {
		t.Fatalf("Create(fresh): %v", err)
	}
	t.Cleanup(func() { deleteSession(ctx, pool, fresh.ID) })

	expired, err := store.ListExpired(ctx, now)
	if err != nil {
		t.Fatalf("ListExpired: %v", err)
	}
	if !containsSession(expired, overdue.ID) {
		t.Fatalf("expired list misses %s", overdue.ID)
	}
	if containsSession(expired, fresh.ID) {
		t.Fatalf("expired list contains fresh %s", fresh.ID)
	}

	if err := store.UpdateStatus(ctx, "no-such-id", StatusExpired, now); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("UpdateStatus on missing row err = %v", err)
	}
}

func newTestSession(t *testing.T, userID int64, now time.Time) Session {
	t.Helper()

	id, err := ids.NewULID(now)
	if err != nil {
		t.Fatalf("NewULID: %v", err)
	}
	return Session{
		ID:             id,
		UserID:         userID,
		Status:         StatusActive,
		StartedAt:      now,
		ExpiresAt:      now.Add(15 * time.Minute),
		MaxExpiresAt:   now.Add(8 * time.Hour),
		TTLMaxSeconds:  28800,
		TTLStepSeconds: 900,
		ClientPubkey:   "pk-" + id,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func containsSession(list []Session, id string) bool {
	for _, s := range list {
		if s.ID == id {
			return true
		}
	}
	return false
}

func insertTestUser(ctx context.Context, t *testing.T, pool *pgxpool.Pool, tag string) int64 {
	t.Helper()

	var userID int64
	err := pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, mfa_secret, is_active)
		VALUES ('it-' || $1 || '-' || md5(random()::text), 'x', 'x', TRUE)
		RETURNING id
	`, tag).Scan(&userID)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}

	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
		_, _ = pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	})
	return userID
}

func deleteSession(ctx context.Context, pool *pgxpool.Pool, id string) {
	_, _ = pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
}

func mustPGXPool(ctx context.Context, t *testing.T) *pgxpool.Pool {
	t.Helper()

	dbURL := os.Getenv("WG_DATABASE_URL")
	if dbURL == "" {
		t.Skip("WG_DATABASE_URL is not set; skipping Postgres integration test")
	}

	cfg, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		t.Fatalf("pgxpool.ParseConfig: %v", err)
	}

	cfg.MaxConns = 4
	cfg.MinConns = 0
	cfg.MaxConnLifetime = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pgxpool.NewWithConfig: %v", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		if shouldSkipIntegration(err) {
			t.Skipf("integration test skipped: Postgres unreachable (WG_DATABASE_URL set): %v", err)
		}
		t.Fatalf("pool.Ping: %v", err)
	}

	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("db.Migrate: %v", err)
	}

	return pool
}

func shouldSkipIntegration(err error) bool {
	if err == nil {
		return false
	}
	if os.Getenv("CI") != "" {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "context deadline exceeded") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "dial tcp") ||
		strings.Contains(msg, "no such host") {
		return true
	}
	return false
}

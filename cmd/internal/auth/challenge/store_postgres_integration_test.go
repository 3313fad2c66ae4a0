package challenge

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"wgsd/db"
)

// Integration tests are enabled when WG_DATABASE_URL is set.
// In non-CI runs, unreachable Postgres skips these tests to keep local runs fast.

func TestPostgresChallengeLifecycle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	pool := mustPGXPool(ctx, t)
	defer pool.Close()

	store, err := NewPostgresStore(pool)
	if err != nil {
		t.Fatalf("NewPostgresStore: %v", err)
	}

	userID := insertTestUser(ctx, t, pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	ch, err := store.Create(ctx, userID, TypeLogin, now, 120*time.Second)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if ch.ID == "" || ch.Type != TypeLogin || ch.Tries != 0 || ch.Consumed {
		t.Fatalf("unexpected challenge: %+v", ch)
	}
	if !ch.ExpiresAt.Equal(now.Add(120 * time.Second)) {
		t.Fatalf("expires_at = %v", ch.ExpiresAt)
	}

	got, err := store.GetByID(ctx, ch.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.UserID != userID || got.Type != TypeLogin {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.Expired(now) {
		t.Fatal("fresh challenge reads expired")
	}
	if !got.Expired(now.Add(121 * time.Second)) {
		t.Fatal("challenge not expired past its deadline")
	}

	// Tries accumulate across calls.
	for want := 1; want <= 3; want++ {
		n, err := store.IncrementTries(ctx, ch.ID)
		if err != nil {
			t.Fatalf("IncrementTries(%d): %v", want, err)
		}
		if n != want {
			t.Fatalf("tries = %d, want %d", n, want)
		}
	}

	// Consume succeeds exactly once.
	ok, err := store.Consume(ctx, ch.ID)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if !ok {
		t.Fatal("first consume reported false")
	}
	ok, err = store.Consume(ctx, ch.ID)
	if err != nil {
		t.Fatalf("Consume(2): %v", err)
	}
	if ok {
		t.Fatal("second consume reported true")
	}

	if _, err := store.GetByID(ctx, "no-such-challenge"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("missing challenge err = %v", err)
	}
	if _, err := store.IncrementTries(ctx, "no-such-challenge"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("missing increment err = %v", err)
	}
}

func insertTestUser(ctx context.Context, t *testing.T, pool *pgxpool.Pool) int64 {
	t.Helper()

	var userID int64
	err := pool.QueryRow(ctx, `
		INSERT INTO users (username, password_hash, mfa_secret, is_active)
		VALUES ('it-challenge-' || md5(random()::text), 'x', 'x', TRUE)
		RETURNING id
	`).Scan(&userID)
	if err != nil {
		t.Fatalf("insert user: %v", err)
	}

	t.Cleanup(func() {
		_, _ = pool.Exec(ctx, `DELETE FROM challenges WHERE user_id = $1`, userID)
		_, _ = pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, userID)
	})
	return userID
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

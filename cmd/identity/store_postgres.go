package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Seed account created when WG_SEED_DEFAULT_USER is set.
const (
	demoUsername  = "demo"
	demoPassword  = "changeme"
	demoMFASecret = "JBSWY3DPEHPK3PXP"
)

// PostgresStore reads users from the shared pgx pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires the store to an existing pool. The pool lifecycle
// is owned by the caller.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("identity: nil pgx pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// GetByUsername looks a user up by exact username.
func (s *PostgresStore) GetByUsername(ctx context.Context, username string) (User, error) {
	return s.get(ctx, `
		SELECT id, username, password_hash, mfa_secret, is_active
		FROM users
		WHERE username = $1
	`, username)
}

// GetByID looks a user up by primary key.
func (s *PostgresStore) GetByID(ctx context.Context, id int64) (User, error) {
	return s.get(ctx, `
		SELECT id, username, password_hash, mfa_secret, is_active
		FROM users
		WHERE id = $1
	`, id)
}

func (s *PostgresStore) get(ctx context.Context, query string, arg any) (User, error) {
	var u User
	err := s.pool.QueryRow(ctx, query, arg).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.MFASecret, &u.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("identity: get user: %w", err)
	}
	return u, nil
}

// EnsureDemoUser creates the demo account if it does not exist yet and
// reports whether a row was inserted.
func (s *PostgresStore) EnsureDemoUser(ctx context.Context) (bool, error) {
	hash, err := HashPassword(demoPassword)
	if err != nil {
		return false, fmt.Errorf("identity: seed: %w", err)
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO users (username, password_hash, mfa_secret, is_active)
		VALUES ($1, $2, $3, TRUE)
		ON CONFLICT (username) DO NOTHING
	`, demoUsername, hash, demoMFASecret)
	if err != nil {
		return false, fmt.Errorf("identity: seed: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

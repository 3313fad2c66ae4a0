package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wgsd/cmd/identity/ids"
)

// PostgresStore persists challenges in the challenges table.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wires the store to an existing pool.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("challenge: nil pgx pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// Create inserts a fresh challenge for userID expiring after ttl.
func (s *PostgresStore) Create(ctx context.Context, userID int64, typ Type, now time.Time, ttl time.Duration) (Challenge, error) {
	id, err := ids.NewULID(now)
	if err != nil {
		return Challenge{}, fmt.Errorf("challenge: create: %w", err)
	}

	c := Challenge{
		ID:        id,
		UserID:    userID,
		Type:      typ,
		ExpiresAt: now.Add(ttl).UTC(),
		CreatedAt: now.UTC(),
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO challenges (id, user_id, type, tries, consumed, expires_at, created_at)
		VALUES ($1, $2, $3, 0, FALSE, $4, $5)
	`, c.ID, c.UserID, string(c.Type), c.ExpiresAt, c.CreatedAt)
	if err != nil {
		return Challenge{}, fmt.Errorf("challenge: create: %w", err)
	}
	return c, nil
}

// GetByID fetches one challenge.
func (s *PostgresStore) GetByID(ctx context.Context, id string) (Challenge, error) {
	var (
		c   Challenge
		typ string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, user_id, type, tries, consumed, expires_at, created_at
		FROM challenges
		WHERE id = $1
	`, id).Scan(&c.ID, &c.UserID, &typ, &c.Tries, &c.Consumed, &c.ExpiresAt, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Challenge{}, ErrChallengeNotFound
	}
	if err != nil {
		return Challenge{}, fmt.Errorf("challenge: get: %w", err)
	}

	c.Type = Type(typ)
	c.ExpiresAt = c.ExpiresAt.UTC()
	c.CreatedAt = c.CreatedAt.UTC()
	return c, nil
}

// IncrementTries burns one attempt and returns the new count. The update
// is committed even when the caller goes on to reject the request.
func (s *PostgresStore) IncrementTries(ctx context.Context, id string) (int, error) {
	var tries int
	err := s.pool.QueryRow(ctx, `
		UPDATE challenges
		SET tries = tries + 1
		WHERE id = $1
		RETURNING tries
	`, id).Scan(&tries)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrChallengeNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("challenge: increment tries: %w", err)
	}
	return tries, nil
}

// Consume marks the challenge used. It reports false when the challenge
// was already consumed, which keeps success single-shot under races.
func (s *PostgresStore) Consume(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE challenges
		SET consumed = TRUE
		WHERE id = $1 AND NOT consumed
	`, id)
	if err != nil {
		return false, fmt.Errorf("challenge: consume: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Package db embeds the reference schema and applies it at startup.
package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var Schema string

// Migrate applies the embedded schema. Every statement is idempotent,
// so running it on every startup is safe.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("migrate: acquire: %w", err)
	}
	defer conn.Release()

	// Simple query protocol so the multi-statement script runs as one batch.
	if _, err := conn.Conn().PgConn().Exec(ctx, Schema).ReadAll(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

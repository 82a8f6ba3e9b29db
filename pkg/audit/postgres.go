package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const decisionsSchema = `
CREATE TABLE IF NOT EXISTS decisions (
	id BIGSERIAL PRIMARY KEY,
	input_hash TEXT NOT NULL,
	decision TEXT NOT NULL,
	score DOUBLE PRECISION NOT NULL,
	reasons TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// PostgresHistory stores decision history in a PostgreSQL table, for
// deployments where several gateway instances share one history.
type PostgresHistory struct {
	pool *pgxpool.Pool
}

// NewPostgresHistory connects to dsn, verifies the connection, and
// creates the decisions table if it does not exist.
func NewPostgresHistory(ctx context.Context, dsn string) (*PostgresHistory, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, decisionsSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating decisions table: %w", err)
	}
	return &PostgresHistory{pool: pool}, nil
}

// Save inserts one decision row.
func (h *PostgresHistory) Save(ctx context.Context, e Entry) error {
	_, err := h.pool.Exec(ctx, `
		INSERT INTO decisions(input_hash, decision, score, reasons, created_at)
		VALUES($1, $2, $3, $4, $5)`,
		e.InputSHA256, e.Decision, e.Score, e.Reasons, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting decision: %w", err)
	}
	return nil
}

// Recent returns the last limit decisions, most recent first.
func (h *PostgresHistory) Recent(ctx context.Context, limit int) ([]Entry, error) {
	limit = ClampLimit(limit)
	rows, err := h.pool.Query(ctx, `
		SELECT id, input_hash, decision, score, reasons, created_at
		FROM decisions ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying decisions: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.InputSHA256, &e.Decision, &e.Score, &e.Reasons, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning decision row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading decision rows: %w", err)
	}
	return entries, nil
}

// Close releases the connection pool.
func (h *PostgresHistory) Close() error {
	h.pool.Close()
	return nil
}

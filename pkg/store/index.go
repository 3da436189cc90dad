// Postgres audit index for promoted bundles
//
// The index is an optional, queryable record of which (stream, step)
// targets were promoted and signed, and when. It never substitutes for
// the on-disk bundles: replay verification always reads the directory,
// the index only answers "what do we hold" questions cheaply.

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// ErrNotIndexed is returned when a lookup finds no promotion record.
var ErrNotIndexed = errors.New("store: promotion not indexed")

// IndexConfig carries the connection-pool settings for the audit index.
type IndexConfig struct {
	DatabaseURL string
	MaxConns    int
	MinConns    int
	MaxIdleTime time.Duration
	MaxLifetime time.Duration
}

// Index wraps the Postgres connection pool.
type Index struct {
	db     *sql.DB
	logger *log.Logger
}

// PromotionRecord is one indexed promotion.
type PromotionRecord struct {
	StreamID   string
	StepNumber int
	DestDir    string
	PromotedAt time.Time
	Signed     bool
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS promoted_bundles (
    stream_id    TEXT        NOT NULL,
    step_number  INTEGER     NOT NULL,
    dest_dir     TEXT        NOT NULL,
    promoted_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    signed       BOOLEAN     NOT NULL DEFAULT false,
    PRIMARY KEY (stream_id, step_number)
)`

// NewIndex opens the audit index, configures the pool, verifies the
// connection, and ensures the schema exists.
func NewIndex(cfg IndexConfig, logger *log.Logger) (*Index, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("database URL cannot be empty")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[AuditIndex] ", log.LstdFlags)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxIdleTime(cfg.MaxIdleTime)
	db.SetConnMaxLifetime(cfg.MaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	logger.Printf("audit index connected")
	return &Index{db: db, logger: logger}, nil
}

// Close releases the connection pool.
func (i *Index) Close() error {
	return i.db.Close()
}

// RecordPromotion inserts the promotion row. The primary key enforces the
// same once-only discipline the filesystem does.
func (i *Index) RecordPromotion(streamID string, step int, destDir string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := i.db.ExecContext(ctx,
		`INSERT INTO promoted_bundles (stream_id, step_number, dest_dir) VALUES ($1, $2, $3)`,
		streamID, step, destDir)
	return err
}

// MarkSigned flips the signed flag for the promotion whose dest_dir
// matches stepDir.
func (i *Index) MarkSigned(stepDir string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err := i.db.ExecContext(ctx,
		`UPDATE promoted_bundles SET signed = true WHERE dest_dir = $1`, stepDir)
	return err
}

// Lookup returns the promotion record for (streamID, step).
func (i *Index) Lookup(streamID string, step int) (*PromotionRecord, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var rec PromotionRecord
	err := i.db.QueryRowContext(ctx,
		`SELECT stream_id, step_number, dest_dir, promoted_at, signed
		   FROM promoted_bundles WHERE stream_id = $1 AND step_number = $2`,
		streamID, step).
		Scan(&rec.StreamID, &rec.StepNumber, &rec.DestDir, &rec.PromotedAt, &rec.Signed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotIndexed
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

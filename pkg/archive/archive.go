// Package archive keeps a columnar audit trail of sync activity in DuckDB.
// The archive is write-mostly and analytical: run summaries and per-item
// outcomes land in tables a human can query later. It is never on the
// correctness path; callers treat archive failures as warnings.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/google/uuid"

	"github.com/soundprediction/go-rolodex/pkg/types"
)

// DuckDBArchive writes sync runs and item outcomes to DuckDB tables.
type DuckDBArchive struct {
	db *sql.DB
}

// NewDuckDBArchive opens (or creates) the archive database at dbPath and
// installs the tables.
func NewDuckDBArchive(dbPath string) (*DuckDBArchive, error) {
	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB: %w", err)
	}

	archive := &DuckDBArchive{db: db}
	if err := archive.createTables(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return archive, nil
}

func (a *DuckDBArchive) createTables(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sync_runs (
			id VARCHAR PRIMARY KEY,
			connection_id VARCHAR,
			provider VARCHAR,
			created INTEGER,
			updated INTEGER,
			skipped INTEGER,
			error_count INTEGER,
			errors JSON,
			cursor VARCHAR,
			started_at TIMESTAMP,
			finished_at TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sync_runs table: %w", err)
	}

	_, err = a.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS sync_items (
			id VARCHAR PRIMARY KEY,
			connection_id VARCHAR,
			provider VARCHAR,
			external_id VARCHAR,
			outcome VARCHAR,
			message VARCHAR,
			occurred_at TIMESTAMP,
			recorded_at TIMESTAMP DEFAULT current_timestamp
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create sync_items table: %w", err)
	}
	return nil
}

// RecordRun stores one finished run summary.
func (a *DuckDBArchive) RecordRun(ctx context.Context, report *types.SyncReport) error {
	errorsJSON, err := json.Marshal(report.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal item errors: %w", err)
	}

	startedAt := sql.NullTime{}
	if !report.StartedAt.IsZero() {
		startedAt = sql.NullTime{Time: report.StartedAt, Valid: true}
	}
	finishedAt := sql.NullTime{}
	if !report.FinishedAt.IsZero() {
		finishedAt = sql.NullTime{Time: report.FinishedAt, Valid: true}
	}

	_, err = a.db.ExecContext(ctx, `
		INSERT INTO sync_runs (
			id, connection_id, provider, created, updated, skipped,
			error_count, errors, cursor, started_at, finished_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.NewString(),
		report.ConnectionID,
		report.Provider,
		report.Created,
		report.Updated,
		report.Skipped,
		len(report.Errors),
		string(errorsJSON),
		report.Cursor,
		startedAt,
		finishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to write sync run: %w", err)
	}
	return nil
}

// RecordItem stores one per-item outcome.
func (a *DuckDBArchive) RecordItem(ctx context.Context, connectionID, providerName, externalID, outcome, message string, occurredAt time.Time) error {
	at := sql.NullTime{}
	if !occurredAt.IsZero() {
		at = sql.NullTime{Time: occurredAt, Valid: true}
	}

	_, err := a.db.ExecContext(ctx, `
		INSERT INTO sync_items (
			id, connection_id, provider, external_id, outcome, message, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		uuid.NewString(),
		connectionID,
		providerName,
		externalID,
		outcome,
		message,
		at,
	)
	if err != nil {
		return fmt.Errorf("failed to write sync item: %w", err)
	}
	return nil
}

// DB exposes the underlying handle so telemetry can share the database.
func (a *DuckDBArchive) DB() *sql.DB {
	return a.db
}

// Close closes the DuckDB connection.
func (a *DuckDBArchive) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

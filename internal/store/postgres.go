package store

import (
	"context"
	"database/sql"
	"fmt"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ingest_runs (
			id               UUID PRIMARY KEY,
			feed             TEXT NOT NULL,
			direction        TEXT NOT NULL,
			started_at       TIMESTAMPTZ NOT NULL,
			finished_at      TIMESTAMPTZ NOT NULL,
			airports         INTEGER NOT NULL,
			airports_failed  INTEGER NOT NULL,
			records          INTEGER NOT NULL,
			valid            BOOLEAN NOT NULL,
			snapshot_path    TEXT NOT NULL DEFAULT '',
			error            TEXT NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_ingest_runs_feed_started ON ingest_runs (feed, direction, started_at DESC);
	`
	if _, err := p.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("migrate ingest_runs: %w", err)
	}
	return nil
}

func (p *Postgres) SaveRun(ctx context.Context, run Run) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO ingest_runs
			(id, feed, direction, started_at, finished_at, airports, airports_failed, records, valid, snapshot_path, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		run.ID, run.Feed, string(run.Direction), run.StartedAt, run.FinishedAt,
		run.Airports, run.AirportsFailed, run.Records, run.Valid, run.SnapshotPath, run.Error,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

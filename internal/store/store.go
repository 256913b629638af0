package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/backyonatan-alt/flightsnap/internal/model"
)

// Run is the journal entry for one feed and direction.
type Run struct {
	ID             uuid.UUID
	Feed           string
	Direction      model.Direction
	StartedAt      time.Time
	FinishedAt     time.Time
	Airports       int
	AirportsFailed int
	Records        int
	Valid          bool
	SnapshotPath   string
	Error          string
}

// Store is the repository interface for the run journal.
type Store interface {
	// Migrate creates the journal table.
	Migrate(ctx context.Context) error
	// SaveRun records a finished run.
	SaveRun(ctx context.Context, run Run) error
}

package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backyonatan-alt/flightsnap/internal/model"
)

// recorder is a database/sql driver that keeps every Exec and answers with err.
type recorder struct {
	mu    sync.Mutex
	execs []execCall
	err   error
}

type execCall struct {
	query string
	args  []driver.Value
}

func (r *recorder) Open(string) (driver.Conn, error) { return &recorderConn{r: r}, nil }

type recorderConn struct{ r *recorder }

func (c *recorderConn) Prepare(string) (driver.Stmt, error) {
	return nil, errors.New("prepare not supported")
}
func (c *recorderConn) Close() error { return nil }
func (c *recorderConn) Begin() (driver.Tx, error) { return nil, errors.New("tx not supported") }

func (c *recorderConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	values := make([]driver.Value, len(args))
	for i, a := range args {
		values[i] = a.Value
	}
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	c.r.execs = append(c.r.execs, execCall{query: query, args: values})
	if c.r.err != nil {
		return nil, c.r.err
	}
	return driver.RowsAffected(1), nil
}

func openRecorder(t *testing.T, rec *recorder) *Postgres {
	t.Helper()
	db := sql.OpenDB(connector{rec})
	t.Cleanup(func() { db.Close() })
	return NewPostgres(db)
}

type connector struct{ r *recorder }

func (c connector) Connect(context.Context) (driver.Conn, error) { return c.r.Open("") }
func (c connector) Driver() driver.Driver { return c.r }

func TestMigrate(t *testing.T) {
	rec := &recorder{}
	require.NoError(t, openRecorder(t, rec).Migrate(context.Background()))

	require.Len(t, rec.execs, 1)
	assert.Contains(t, rec.execs[0].query, "CREATE TABLE IF NOT EXISTS ingest_runs")
	assert.Contains(t, rec.execs[0].query, "CREATE INDEX IF NOT EXISTS idx_ingest_runs_feed_started")
}

func TestSaveRunArgumentOrder(t *testing.T) {
	rec := &recorder{}
	started := time.Date(2024, time.August, 15, 9, 30, 0, 0, time.UTC)
	run := Run{
		ID:             uuid.MustParse("6f1c0a8e-4b7d-4a55-9d8e-3c2b1a0f9e11"),
		Feed:           "aviationstack",
		Direction:      model.Departures,
		StartedAt:      started,
		FinishedAt:     started.Add(42 * time.Second),
		Airports:       10,
		AirportsFailed: 2,
		Records:        137,
		Valid:          true,
		SnapshotPath:   "/data/raw_data/raw_departures_flights_15082024.json",
		Error:          "",
	}
	require.NoError(t, openRecorder(t, rec).SaveRun(context.Background(), run))

	require.Len(t, rec.execs, 1)
	call := rec.execs[0]
	assert.Contains(t, call.query, "(id, feed, direction, started_at, finished_at, airports, airports_failed, records, valid, snapshot_path, error)")
	assert.Contains(t, call.query, "$11")
	assert.Equal(t, []driver.Value{
		"6f1c0a8e-4b7d-4a55-9d8e-3c2b1a0f9e11",
		"aviationstack",
		"departures",
		started,
		started.Add(42 * time.Second),
		int64(10),
		int64(2),
		int64(137),
		true,
		"/data/raw_data/raw_departures_flights_15082024.json",
		"",
	}, call.args)
}

func TestSaveRunError(t *testing.T) {
	rec := &recorder{err: errors.New("connection reset")}
	id := uuid.New()
	err := openRecorder(t, rec).SaveRun(context.Background(), Run{ID: id, Direction: model.Arrivals})
	assert.ErrorContains(t, err, "insert run "+id.String())
	assert.ErrorContains(t, err, "connection reset")
}

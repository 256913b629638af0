package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/backyonatan-alt/flightsnap/internal/config"
	"github.com/backyonatan-alt/flightsnap/internal/fetcher"
	"github.com/backyonatan-alt/flightsnap/internal/metrics"
	"github.com/backyonatan-alt/flightsnap/internal/model"
	"github.com/backyonatan-alt/flightsnap/internal/notify"
	"github.com/backyonatan-alt/flightsnap/internal/snapshot"
	"github.com/backyonatan-alt/flightsnap/internal/store"
	"github.com/backyonatan-alt/flightsnap/internal/validate"
)

// Publisher announces written snapshots. *notify.Producer satisfies it.
type Publisher interface {
	Publish(ctx context.Context, event notify.SnapshotWritten) error
}

// Pipeline orchestrates one feed: credential -> fetch -> validate -> write -> sinks.
// It keeps no state between runs.
type Pipeline struct {
	feed      string
	fetcher   *fetcher.Fetcher
	writer    *snapshot.Writer
	store     store.Store
	publisher Publisher
	metrics   *metrics.Metrics
	log       *zap.Logger
	now       func() time.Time
}

type Option func(*Pipeline)

func WithStore(s store.Store) Option {
	return func(p *Pipeline) { p.store = s }
}

func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) { p.publisher = pub }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func New(feed string, f *fetcher.Fetcher, w *snapshot.Writer, log *zap.Logger, opts ...Option) *Pipeline {
	if log == nil {
		log = zap.NewNop()
	}
	p := &Pipeline{feed: feed, fetcher: f, writer: w, log: log, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Request carries the per-call collaborators of a run.
type Request struct {
	Direction   model.Direction
	Credentials config.CredentialProvider
	// KeyName is the credential looked up in Credentials.
	KeyName  string
	Airports []string
}

// Report summarizes one direction run.
type Report struct {
	RunID     uuid.UUID
	Feed      string
	Direction model.Direction
	Airports  int
	Failed    int
	Records   int
	Valid     bool
	Snapshot  snapshot.Result
	Outcomes  []fetcher.Outcome
}

// Written reports whether the run produced a snapshot file.
func (r Report) Written() bool {
	return r.Valid && r.Snapshot.OK()
}

// Result is the label used for metrics: written, invalid or failed.
func (r Report) Result() string {
	switch {
	case !r.Valid:
		return "invalid"
	case !r.Snapshot.OK():
		return "failed"
	}
	return "written"
}

// Run executes one direction. The returned error is always a configuration error,
// raised before any request; every other failure is reported in Report and logged.
func (p *Pipeline) Run(ctx context.Context, req Request) (Report, error) {
	started := p.now()
	rep := Report{
		RunID:     uuid.New(),
		Feed:      p.feed,
		Direction: req.Direction,
		Airports:  len(req.Airports),
	}
	log := p.log.With(
		zap.String("run_id", rep.RunID.String()),
		zap.String("feed", p.feed),
		zap.Stringer("direction", req.Direction),
	)

	if req.Credentials == nil {
		return rep, &config.Error{Field: req.KeyName, Err: config.ErrMissingCredential}
	}
	apiKey, err := req.Credentials.APIKey(req.KeyName)
	if err != nil {
		log.Error("configuration error", zap.Error(err))
		return rep, err
	}
	if len(req.Airports) == 0 {
		err := &config.Error{Field: p.feed + ".airports", Err: fmt.Errorf("airport catalog is empty")}
		log.Error("configuration error", zap.Error(err))
		return rep, err
	}

	log.Info("pipeline run starting", zap.Int("airports", len(req.Airports)))

	res, err := p.fetcher.With(log).Fetch(ctx, req.Direction, apiKey, req.Airports)
	if err != nil {
		return rep, &config.Error{Field: p.feed, Err: err}
	}
	rep.Outcomes = res.Outcomes
	rep.Failed = res.Failed()
	if p.metrics != nil {
		p.metrics.ObserveFetch(p.feed, res)
	}

	batch, ok := validate.Records(res.Items)
	rep.Valid = ok
	if ok {
		rep.Records = len(batch)
		rep.Snapshot = p.writer.With(log).Write(batch, req.Direction)
	} else {
		log.Error("invalid data format, expected a list of records; snapshot not written",
			zap.Int("items", len(res.Items)))
	}

	p.finish(ctx, log, rep, started)
	return rep, nil
}

// RunAll runs each direction in order and stops at the first configuration error.
func (p *Pipeline) RunAll(ctx context.Context, req Request, dirs []model.Direction) ([]Report, error) {
	reports := make([]Report, 0, len(dirs))
	for _, d := range dirs {
		req.Direction = d
		rep, err := p.Run(ctx, req)
		if err != nil {
			return reports, err
		}
		reports = append(reports, rep)
	}
	return reports, nil
}

// finish hands the report to the journal and the publisher. Sink failures are logged only.
func (p *Pipeline) finish(ctx context.Context, log *zap.Logger, rep Report, started time.Time) {
	finished := p.now()
	if p.metrics != nil {
		p.metrics.ObserveSnapshot(p.feed, rep.Direction, rep.Result(), finished)
	}

	g, gctx := errgroup.WithContext(ctx)

	if p.store != nil {
		run := store.Run{
			ID:             rep.RunID,
			Feed:           rep.Feed,
			Direction:      rep.Direction,
			StartedAt:      started,
			FinishedAt:     finished,
			Airports:       rep.Airports,
			AirportsFailed: rep.Failed,
			Records:        rep.Records,
			Valid:          rep.Valid,
			SnapshotPath:   rep.Snapshot.Path,
		}
		switch {
		case !rep.Valid:
			run.Error = "invalid data format"
		case rep.Snapshot.Err != nil:
			run.Error = rep.Snapshot.Err.Error()
		}
		g.Go(func() error {
			if err := p.store.SaveRun(gctx, run); err != nil {
				log.Error("failed to record run", zap.Error(err))
			}
			return nil // don't fail the group
		})
	}

	if p.publisher != nil && rep.Written() {
		event := notify.SnapshotWritten{
			RunID:     rep.RunID.String(),
			Feed:      rep.Feed,
			Direction: rep.Direction.String(),
			Path:      rep.Snapshot.Path,
			Records:   rep.Records,
			WrittenAt: finished,
		}
		g.Go(func() error {
			if err := p.publisher.Publish(gctx, event); err != nil {
				log.Error("failed to publish snapshot event", zap.Error(err))
			}
			return nil
		})
	}

	_ = g.Wait()

	log.Info("pipeline run complete",
		zap.String("result", rep.Result()),
		zap.Int("records", rep.Records),
		zap.Int("airports_failed", rep.Failed),
		zap.String("path", rep.Snapshot.Path),
		zap.Duration("elapsed", finished.Sub(started)),
	)
}

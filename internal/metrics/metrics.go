package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/backyonatan-alt/flightsnap/internal/fetcher"
	"github.com/backyonatan-alt/flightsnap/internal/model"
)

// Metrics holds the ingestion counters on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RecordsTotal    *prometheus.CounterVec
	SnapshotsTotal  *prometheus.CounterVec
	LastRun         *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightsnap_requests_total",
				Help: "Flights API requests by feed, direction and outcome",
			},
			[]string{"feed", "direction", "outcome"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "flightsnap_request_duration_seconds",
				Help:    "Flights API request latency in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"feed", "direction"},
		),
		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightsnap_records_total",
				Help: "Flight records fetched by feed and direction",
			},
			[]string{"feed", "direction"},
		),
		SnapshotsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flightsnap_snapshots_total",
				Help: "Snapshot attempts by feed, direction and result (written, invalid, failed)",
			},
			[]string{"feed", "direction", "result"},
		),
		LastRun: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "flightsnap_last_run_timestamp_seconds",
				Help: "Unix time of the last completed run by feed and direction",
			},
			[]string{"feed", "direction"},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// snapshotResults are the values of the snapshots_total result label.
var snapshotResults = []string{"written", "invalid", "failed"}

// Init creates every series of feed at zero, so a failure kind that never
// occurred is exported as 0 rather than missing.
func (m *Metrics) Init(feed string) {
	for _, d := range model.Directions {
		dir := d.String()
		m.RequestsTotal.WithLabelValues(feed, dir, "success")
		for _, k := range fetcher.Kinds {
			m.RequestsTotal.WithLabelValues(feed, dir, string(k))
		}
		m.RecordsTotal.WithLabelValues(feed, dir)
		for _, r := range snapshotResults {
			m.SnapshotsTotal.WithLabelValues(feed, dir, r)
		}
	}
}

// ObserveFetch records one outcome per airport.
func (m *Metrics) ObserveFetch(feed string, res fetcher.Result) {
	dir := res.Direction.String()
	for _, o := range res.Outcomes {
		outcome := "success"
		if o.Err != nil {
			outcome = string(o.Err.Kind)
		}
		m.RequestsTotal.WithLabelValues(feed, dir, outcome).Inc()
		m.RequestDuration.WithLabelValues(feed, dir).Observe(o.Duration.Seconds())
		m.RecordsTotal.WithLabelValues(feed, dir).Add(float64(o.Records))
	}
}

// ObserveSnapshot records the end of a direction run.
func (m *Metrics) ObserveSnapshot(feed string, dir model.Direction, result string, at time.Time) {
	m.SnapshotsTotal.WithLabelValues(feed, dir.String(), result).Inc()
	m.LastRun.WithLabelValues(feed, dir.String()).Set(float64(at.Unix()))
}

// WriteTextfile writes the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/backyonatan-alt/flightsnap/internal/catalog"
	"github.com/backyonatan-alt/flightsnap/internal/config"
	"github.com/backyonatan-alt/flightsnap/internal/fetcher"
	"github.com/backyonatan-alt/flightsnap/internal/logging"
	"github.com/backyonatan-alt/flightsnap/internal/metrics"
	"github.com/backyonatan-alt/flightsnap/internal/model"
	"github.com/backyonatan-alt/flightsnap/internal/notify"
	"github.com/backyonatan-alt/flightsnap/internal/pipeline"
	"github.com/backyonatan-alt/flightsnap/internal/snapshot"
	"github.com/backyonatan-alt/flightsnap/internal/store"
)

const (
	exitOK          = 0
	exitConfig      = 1
	exitNotWritten  = 2
	dbConnectWindow = 10 * time.Second
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type flags struct {
	configPath string
	feed       string
	direction  string
	airports   string
	inspect    string
}

func parseFlags(args []string, stderr io.Writer) (flags, error) {
	var f flags
	fs := flag.NewFlagSet("flightsnap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&f.configPath, "config", "", "path to the YAML config (default $CONFIG_PATH or "+config.DefaultPath+")")
	fs.StringVar(&f.feed, "feed", "", "run only the named feed")
	fs.StringVar(&f.direction, "direction", "", "arrivals, departures or both (default from config)")
	fs.StringVar(&f.airports, "airports", "", "comma separated IATA codes overriding the feed catalog")
	fs.StringVar(&f.inspect, "inspect", "", "print information about a snapshot file and exit")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if fs.NArg() > 0 {
		return f, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return f, nil
}

// directions maps the -direction flag. Empty means the feed's configured list.
func directions(s string) ([]model.Direction, error) {
	switch s {
	case "":
		return nil, nil
	case "both":
		return model.Directions, nil
	}
	d, err := model.ParseDirection(s)
	if err != nil {
		return nil, err
	}
	return []model.Direction{d}, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	f, err := parseFlags(args, stderr)
	if err != nil {
		return exitConfig
	}
	if f.inspect != "" {
		return inspect(f.inspect, stdout, stderr)
	}

	dirOverride, err := directions(f.direction)
	if err != nil {
		fmt.Fprintf(stderr, "invalid -direction: %v\n", err)
		return exitConfig
	}
	var airportOverride catalog.Catalog
	if f.airports != "" {
		if airportOverride, err = catalog.Parse(f.airports); err != nil {
			fmt.Fprintf(stderr, "invalid -airports: %v\n", err)
			return exitConfig
		}
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitConfig
	}
	feeds := cfg.Feeds
	if f.feed != "" {
		feed, ok := cfg.Feed(f.feed)
		if !ok {
			fmt.Fprintf(stderr, "unknown feed %q\n", f.feed)
			return exitConfig
		}
		feeds = []config.Feed{feed}
	}

	logger, closeLog, err := logging.New(logging.Options{
		Env:     cfg.AppEnv,
		File:    cfg.LogFile,
		Level:   cfg.LogLevel,
		Console: stdout,
	})
	if err != nil {
		fmt.Fprintf(stderr, "failed to set up logging: %v\n", err)
		return exitConfig
	}
	defer closeLog()

	// Every selected feed needs its key before anything touches the network.
	if err := checkCredentials(config.EnvCredentials{}, feeds); err != nil {
		logger.Error("configuration error, halting", zap.Error(err))
		return exitConfig
	}

	var opts []pipeline.Option

	if cfg.DatabaseURL != "" {
		journal, closeDB, err := openJournal(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Warn("run journal unavailable, continuing without it", zap.Error(err))
		} else {
			defer closeDB()
			opts = append(opts, pipeline.WithStore(journal))
		}
	}

	if len(cfg.Kafka.Brokers) > 0 {
		producer := notify.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Error("failed to close kafka producer", zap.Error(err))
			}
		}()
		opts = append(opts, pipeline.WithPublisher(producer))
	}

	var m *metrics.Metrics
	if cfg.MetricsTextfile != "" {
		m = metrics.New()
		for _, feed := range feeds {
			m.Init(feed.Name)
		}
		opts = append(opts, pipeline.WithMetrics(m))
	}

	code := exitOK
	for _, feed := range feeds {
		c := runFeed(ctx, logger, feed, dirOverride, airportOverride, opts)
		if c > code {
			code = c
		}
		if code == exitConfig {
			break
		}
	}

	if m != nil {
		if err := m.WriteTextfile(cfg.MetricsTextfile); err != nil {
			logger.Error("failed to write metrics", zap.Error(err))
		}
	}
	return code
}

func runFeed(ctx context.Context, logger *zap.Logger, feed config.Feed, dirs []model.Direction,
	airports catalog.Catalog, opts []pipeline.Option) int {
	log := logger.With(zap.String("feed", feed.Name))

	if dirs == nil {
		var err error
		if dirs, err = feed.DirectionList(); err != nil {
			log.Error("configuration error", zap.Error(err))
			return exitConfig
		}
	}
	if airports == nil {
		airports = feed.Airports
	}

	fet, err := fetcher.New(fetcher.Options{
		Endpoint: feed.Endpoint,
		KeyParam: feed.KeyParam,
		DataKey:  feed.DataKey,
		Timeout:  feed.Timeout,
	}, logger)
	if err != nil {
		log.Error("configuration error", zap.Error(err))
		return exitConfig
	}
	writer := snapshot.NewWriter(feed.OutputDir, logger)
	p := pipeline.New(feed.Name, fet, writer, logger, opts...)

	reports, err := p.RunAll(ctx, pipeline.Request{
		Credentials: config.EnvCredentials{},
		KeyName:     feed.KeyEnv,
		Airports:    airports,
	}, dirs)
	if err != nil {
		var cfgErr *config.Error
		if errors.As(err, &cfgErr) {
			log.Error("configuration error, halting", zap.Error(err))
		} else {
			log.Error("run aborted", zap.Error(err))
		}
		return exitConfig
	}

	for _, rep := range reports {
		if !rep.Written() {
			return exitNotWritten
		}
	}
	return exitOK
}

func checkCredentials(creds config.CredentialProvider, feeds []config.Feed) error {
	for _, feed := range feeds {
		if _, err := creds.APIKey(feed.KeyEnv); err != nil {
			return fmt.Errorf("feed %s: %w", feed.Name, err)
		}
	}
	return nil
}

func openJournal(ctx context.Context, dsn string) (*store.Postgres, func(), error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, dbConnectWindow)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	journal := store.NewPostgres(db)
	if err := journal.Migrate(pingCtx); err != nil {
		db.Close()
		return nil, nil, err
	}
	return journal, func() { db.Close() }, nil
}

func inspect(path string, stdout, stderr io.Writer) int {
	info, err := snapshot.Inspect(path)
	fmt.Fprint(stdout, info)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}
	batch, err := snapshot.Load(path)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitConfig
	}
	fmt.Fprintf(stdout, "Records = %d\n", len(batch))
	return exitOK
}

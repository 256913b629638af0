package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/backyonatan-alt/flightsnap/internal/catalog"
	"github.com/backyonatan-alt/flightsnap/internal/model"
)

// DefaultPath is read when neither -config nor CONFIG_PATH is given. It may be absent.
const DefaultPath = "flightsnap.yaml"

const (
	defaultEndpoint  = "https://api.aviationstack.com/v1/flights"
	defaultKeyEnv    = "m_API_KEY"
	defaultKeyParam  = "access_key"
	defaultDataKey   = "data"
	defaultTimeout   = 30 * time.Second
	defaultOutputDir = "data/raw_data"
	defaultLogFile   = "flight_data_fetch.log"
	defaultTopic     = "flight-snapshots"
)

type Config struct {
	AppEnv          string      `yaml:"app_env"`
	LogFile         string      `yaml:"log_file"`
	LogLevel        string      `yaml:"log_level"`
	OutputDir       string      `yaml:"output_dir"`
	DatabaseURL     string      `yaml:"database_url"`
	MetricsTextfile string      `yaml:"metrics_textfile"`
	Kafka           KafkaConfig `yaml:"kafka"`
	Feeds           []Feed      `yaml:"feeds"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Feed describes one upstream flights API integration.
type Feed struct {
	Name       string        `yaml:"name"`
	Endpoint   string        `yaml:"endpoint"`
	KeyEnv     string        `yaml:"key_env"`
	KeyParam   string        `yaml:"key_param"`
	DataKey    string        `yaml:"data_key"`
	Timeout    time.Duration `yaml:"timeout"`
	Airports   []string      `yaml:"airports"`
	OutputDir  string        `yaml:"output_dir"`
	Directions []string      `yaml:"directions"`
}

// DirectionList returns the feed's directions in configured order.
func (f Feed) DirectionList() ([]model.Direction, error) {
	dirs := make([]model.Direction, 0, len(f.Directions))
	for _, s := range f.Directions {
		d, err := model.ParseDirection(strings.ToLower(strings.TrimSpace(s)))
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, d)
	}
	return dirs, nil
}

// Feed returns the feed with the given name.
func (c *Config) Feed(name string) (Feed, bool) {
	for _, f := range c.Feeds {
		if f.Name == name {
			return f, true
		}
	}
	return Feed{}, false
}

// Default returns the built-in configuration: one aviationstack feed over the Tunisian catalog.
func Default() *Config {
	return &Config{
		AppEnv:    "development",
		LogFile:   defaultLogFile,
		LogLevel:  "info",
		OutputDir: defaultOutputDir,
		Kafka:     KafkaConfig{Topic: defaultTopic},
		Feeds: []Feed{{
			Name:     "aviationstack",
			Endpoint: defaultEndpoint,
			KeyEnv:   defaultKeyEnv,
			KeyParam: defaultKeyParam,
			DataKey:  defaultDataKey,
		}},
	}
}

// Load reads the YAML file at path, falling back to CONFIG_PATH and then DefaultPath,
// and applies environment overrides. A missing DefaultPath is not an error.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		if p := os.Getenv("CONFIG_PATH"); p != "" {
			path, explicit = p, true
		} else {
			path = DefaultPath
		}
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &Error{Field: path, Err: fmt.Errorf("failed to parse config: %w", err)}
		}
	case errors.Is(err, fs.ErrNotExist) && !explicit:
	default:
		return nil, &Error{Field: path, Err: fmt.Errorf("failed to read config: %w", err)}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.fillDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("APP_ENV"); v != "" {
		c.AppEnv = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("OUTPUT_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	}
	if v := os.Getenv("METRICS_TEXTFILE"); v != "" {
		c.MetricsTextfile = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		c.Kafka.Topic = v
	}
	if v := os.Getenv("AIRPORTS"); v != "" {
		airports, err := catalog.Parse(v)
		if err != nil {
			return &Error{Field: "AIRPORTS", Err: err}
		}
		for i := range c.Feeds {
			c.Feeds[i].Airports = airports
		}
	}
	return nil
}

func (c *Config) fillDefaults() {
	if c.OutputDir == "" {
		c.OutputDir = defaultOutputDir
	}
	if c.Kafka.Topic == "" {
		c.Kafka.Topic = defaultTopic
	}
	for i := range c.Feeds {
		f := &c.Feeds[i]
		if f.Endpoint == "" {
			f.Endpoint = defaultEndpoint
		}
		if f.KeyEnv == "" {
			f.KeyEnv = defaultKeyEnv
		}
		if f.KeyParam == "" {
			f.KeyParam = defaultKeyParam
		}
		if f.DataKey == "" {
			f.DataKey = defaultDataKey
		}
		if f.Timeout <= 0 {
			f.Timeout = defaultTimeout
		}
		if len(f.Airports) == 0 {
			f.Airports = catalog.Default()
		}
		if f.OutputDir == "" {
			f.OutputDir = c.OutputDir
		}
		if len(f.Directions) == 0 {
			f.Directions = []string{string(model.Arrivals), string(model.Departures)}
		}
	}
}

// Validate checks feed definitions. Credentials are not checked here; see CredentialProvider.
func (c *Config) Validate() error {
	if len(c.Feeds) == 0 {
		return &Error{Field: "feeds", Err: errors.New("at least one feed is required")}
	}

	seen := make(map[string]bool, len(c.Feeds))
	for i := range c.Feeds {
		f := &c.Feeds[i]
		if f.Name == "" {
			return &Error{Field: fmt.Sprintf("feeds[%d].name", i), Err: errors.New("is required")}
		}
		if seen[f.Name] {
			return &Error{Field: "feeds", Err: fmt.Errorf("duplicate feed %q", f.Name)}
		}
		seen[f.Name] = true

		airports, err := catalog.New(f.Airports)
		if err != nil {
			return &Error{Field: f.Name + ".airports", Err: err}
		}
		f.Airports = airports

		if _, err := f.DirectionList(); err != nil {
			return &Error{Field: f.Name + ".directions", Err: err}
		}
	}
	return nil
}

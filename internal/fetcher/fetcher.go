package fetcher

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Doer sends HTTP requests. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options describe one flights API integration.
type Options struct {
	Endpoint string
	// KeyParam is the query parameter carrying the API key, e.g. "access_key" or "api_key".
	KeyParam string
	// DataKey is the response field holding the flight list, e.g. "data" or "response".
	DataKey string
	// Timeout bounds each request. Zero means no bound.
	Timeout time.Duration
}

// Fetcher queries the flights API once per airport, sequentially and without retries.
type Fetcher struct {
	client Doer
	opts   Options
	log    *zap.Logger
}

type Option func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c Doer) Option {
	return func(f *Fetcher) { f.client = c }
}

func New(opts Options, log *zap.Logger, options ...Option) (*Fetcher, error) {
	if opts.Endpoint == "" {
		return nil, errors.New("fetcher: endpoint is required")
	}
	if opts.KeyParam == "" || opts.DataKey == "" {
		return nil, errors.New("fetcher: key param and data key are required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	f := &Fetcher{
		client: &http.Client{Timeout: opts.Timeout},
		opts:   opts,
		log:    log,
	}
	for _, o := range options {
		o(f)
	}
	return f, nil
}

// With returns a copy of f that logs to log.
func (f *Fetcher) With(log *zap.Logger) *Fetcher {
	c := *f
	c.log = log
	return &c
}

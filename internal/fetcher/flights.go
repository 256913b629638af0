package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/backyonatan-alt/flightsnap/internal/model"
)

const redacted = "REDACTED"

// Outcome is the result of one airport request.
type Outcome struct {
	Airport  string
	Records  int
	Duration time.Duration
	Err      *FetchError
}

// Result is everything one Fetch produced for a direction.
type Result struct {
	Direction model.Direction
	// Items are the raw list elements in catalog order. They are validated by the caller.
	Items    []any
	Outcomes []Outcome
}

// Failed counts airports that contributed no records.
func (r Result) Failed() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Err != nil {
			n++
		}
	}
	return n
}

// Fetch requests every airport in order and accumulates the flight lists.
// Per-airport failures are logged and recorded in Result.Outcomes; only invalid
// arguments are returned as errors, and then no request is made.
func (f *Fetcher) Fetch(ctx context.Context, dir model.Direction, apiKey string, airports []string) (Result, error) {
	if apiKey == "" {
		return Result{}, errors.New("fetch: API key is empty")
	}
	if len(airports) == 0 {
		return Result{}, errors.New("fetch: airport catalog is empty")
	}

	res := Result{Direction: dir, Items: []any{}}
	for _, airport := range airports {
		start := time.Now()
		items, ferr := f.fetchAirport(ctx, dir, apiKey, airport)
		out := Outcome{Airport: airport, Records: len(items), Duration: time.Since(start), Err: ferr}
		res.Outcomes = append(res.Outcomes, out)

		if ferr != nil {
			f.logFailure(dir, ferr)
			continue
		}
		res.Items = append(res.Items, items...)
		f.log.Info("SUCCESS - fetched flight data",
			zap.Stringer("direction", dir),
			zap.String("airport", airport),
			zap.Int("records", len(items)),
			zap.Duration("duration", out.Duration),
		)
	}
	return res, nil
}

func (f *Fetcher) fetchAirport(ctx context.Context, dir model.Direction, apiKey, airport string) ([]any, *FetchError) {
	fail := func(kind Kind, err error) *FetchError {
		return &FetchError{Kind: kind, Airport: airport, Err: err}
	}

	reqURL, safeURL, err := f.buildURL(dir, apiKey, airport)
	if err != nil {
		return nil, fail(KindUnexpected, err)
	}

	if f.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fail(KindUnexpected, fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Accept", "application/json")

	f.log.Debug("fetching flight data",
		zap.Stringer("direction", dir),
		zap.String("airport", airport),
		zap.String("url", safeURL),
	)

	resp, err := f.client.Do(req)
	if err != nil {
		var ue *url.Error
		if errors.As(err, &ue) {
			ue.URL = safeURL
		}
		if isTimeout(err) {
			return nil, fail(KindTimeout, err)
		}
		return nil, fail(KindTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &FetchError{Kind: KindHTTPStatus, Airport: airport, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if isTimeout(err) {
			return nil, fail(KindTimeout, fmt.Errorf("reading body: %w", err))
		}
		return nil, fail(KindMalformed, fmt.Errorf("reading body: %w", err))
	}

	payload, err := decodeJSON(body)
	if err != nil {
		return nil, fail(KindMalformed, fmt.Errorf("parsing response: %w", err))
	}

	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, fail(KindNoData, errors.New("response is not an object"))
	}
	items, ok := obj[f.opts.DataKey].([]any)
	if !ok || len(items) == 0 {
		return nil, fail(KindNoData, fmt.Errorf("no flight list under %q", f.opts.DataKey))
	}
	return items, nil
}

// buildURL returns the request URL and a copy with the API key redacted for logs.
func (f *Fetcher) buildURL(dir model.Direction, apiKey, airport string) (string, string, error) {
	u, err := url.Parse(f.opts.Endpoint)
	if err != nil {
		return "", "", fmt.Errorf("parsing endpoint: %w", err)
	}

	q := u.Query()
	q.Set(dir.AirportParam(), airport)
	q.Set(f.opts.KeyParam, redacted)
	u.RawQuery = q.Encode()
	safe := u.String()

	q.Set(f.opts.KeyParam, apiKey)
	u.RawQuery = q.Encode()
	return u.String(), safe, nil
}

func (f *Fetcher) logFailure(dir model.Direction, ferr *FetchError) {
	fields := []zap.Field{
		zap.Stringer("direction", dir),
		zap.String("airport", ferr.Airport),
		zap.String("kind", string(ferr.Kind)),
	}
	if ferr.StatusCode != 0 {
		fields = append(fields, zap.Int("status", ferr.StatusCode))
	}
	if ferr.Err != nil {
		fields = append(fields, zap.Error(ferr.Err))
	}

	if ferr.Kind.Critical() {
		fields = append(fields, zap.String("severity", "critical"))
		f.log.Error("FAILED - no valid flight data", fields...)
		return
	}
	f.log.Error("fetch error", fields...)
}

// decodeJSON decodes a single JSON value, keeping numbers as json.Number.
func decodeJSON(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

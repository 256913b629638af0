package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/backyonatan-alt/flightsnap/internal/model"
)

func flightsFor(airport string, n int) map[string]any {
	data := make([]map[string]any, n)
	for i := range data {
		data[i] = map[string]any{"flight": fmt.Sprintf("%s-%d", airport, i), "arr_iata": airport}
	}
	return map[string]any{"pagination": map[string]any{"count": n}, "data": data}
}

func newFetcher(t *testing.T, srv *httptest.Server, log *zap.Logger) *Fetcher {
	t.Helper()
	f, err := New(Options{
		Endpoint: srv.URL + "/v1/flights",
		KeyParam: "access_key",
		DataKey:  "data",
		Timeout:  2 * time.Second,
	}, log)
	require.NoError(t, err)
	return f
}

func observed() (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.InfoLevel)
	return zap.New(core), logs
}

func TestFetchAccumulatesInCatalogOrder(t *testing.T) {
	counts := map[string]int{"TUN": 3, "DJE": 1, "MIR": 2}
	var (
		mu    sync.Mutex
		order []string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/flights", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("access_key"))
		assert.Empty(t, r.URL.Query().Get("dep_iata"))
		airport := r.URL.Query().Get("arr_iata")
		mu.Lock()
		order = append(order, airport)
		mu.Unlock()
		json.NewEncoder(w).Encode(flightsFor(airport, counts[airport]))
	}))
	defer srv.Close()

	log, logs := observed()
	res, err := newFetcher(t, srv, log).Fetch(context.Background(), model.Arrivals, "secret", []string{"TUN", "DJE", "MIR"})
	require.NoError(t, err)

	mu.Lock()
	assert.Equal(t, []string{"TUN", "DJE", "MIR"}, order)
	mu.Unlock()
	require.Len(t, res.Items, 6)
	assert.Equal(t, "TUN-0", res.Items[0].(map[string]any)["flight"])
	assert.Equal(t, "DJE-0", res.Items[3].(map[string]any)["flight"])
	assert.Equal(t, "MIR-1", res.Items[5].(map[string]any)["flight"])
	assert.Equal(t, 0, res.Failed())
	assert.Equal(t, 3, logs.FilterMessage("SUCCESS - fetched flight data").Len())
}

func TestFetchDeparturesUsesDepParam(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("arr_iata"))
		json.NewEncoder(w).Encode(flightsFor(r.URL.Query().Get("dep_iata"), 1))
	}))
	defer srv.Close()

	res, err := newFetcher(t, srv, nil).Fetch(context.Background(), model.Departures, "k", []string{"SFA"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, "SFA-0", res.Items[0].(map[string]any)["flight"])
}

func TestFetchOneAirportServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		airport := r.URL.Query().Get("arr_iata")
		if airport == "DJE" {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(flightsFor(airport, 2))
	}))
	defer srv.Close()

	log, logs := observed()
	res, err := newFetcher(t, srv, log).Fetch(context.Background(), model.Arrivals, "k", []string{"TUN", "DJE"})
	require.NoError(t, err)

	require.Len(t, res.Items, 2)
	for _, item := range res.Items {
		assert.True(t, strings.HasPrefix(item.(map[string]any)["flight"].(string), "TUN"))
	}

	require.Equal(t, 2, logs.Len())
	entries := logs.All()
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "DJE", entries[1].ContextMap()["airport"])
	assert.Equal(t, int64(500), entries[1].ContextMap()["status"])

	require.Len(t, res.Outcomes, 2)
	assert.Nil(t, res.Outcomes[0].Err)
	require.NotNil(t, res.Outcomes[1].Err)
	assert.Equal(t, KindHTTPStatus, res.Outcomes[1].Err.Kind)
	assert.Equal(t, 500, res.Outcomes[1].Err.StatusCode)
	assert.Equal(t, 1, res.Failed())
}

func TestFetchFailureKinds(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		kind     Kind
		critical bool
	}{
		{
			name:    "not found",
			handler: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNotFound) },
			kind:    KindHTTPStatus,
		},
		{
			name:    "invalid json",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"data": [`)) },
			kind:    KindMalformed,
		},
		{
			name:    "trailing garbage",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"data": [{"a":1}]} x`)) },
			kind:    KindMalformed,
		},
		{
			name:     "missing data key",
			handler:  func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"error": {"code": "usage_limit_reached"}}`)) },
			kind:     KindNoData,
			critical: true,
		},
		{
			name:     "empty list",
			handler:  func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"data": []}`)) },
			kind:     KindNoData,
			critical: true,
		},
		{
			name:     "data not a list",
			handler:  func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"data": {"flight": "TU1"}}`)) },
			kind:     KindNoData,
			critical: true,
		},
		{
			name:     "body is a list",
			handler:  func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[{"flight": "TU1"}]`)) },
			kind:     KindNoData,
			critical: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			log, logs := observed()
			res, err := newFetcher(t, srv, log).Fetch(context.Background(), model.Arrivals, "k", []string{"TUN"})
			require.NoError(t, err)
			assert.Empty(t, res.Items)
			require.Len(t, res.Outcomes, 1)
			require.NotNil(t, res.Outcomes[0].Err)
			assert.Equal(t, tt.kind, res.Outcomes[0].Err.Kind)

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			assert.Equal(t, zapcore.ErrorLevel, entry.Level)
			if tt.critical {
				assert.Equal(t, "critical", entry.ContextMap()["severity"])
			} else {
				assert.NotContains(t, entry.ContextMap(), "severity")
			}
		})
	}
}

func TestFetchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	f, err := New(Options{Endpoint: srv.URL, KeyParam: "access_key", DataKey: "data", Timeout: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	res, err := f.Fetch(context.Background(), model.Arrivals, "k", []string{"TUN"})
	require.NoError(t, err)
	require.NotNil(t, res.Outcomes[0].Err)
	assert.Equal(t, KindTimeout, res.Outcomes[0].Err.Kind)
}

func TestFetchTransportErrorRedactsKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	endpoint := srv.URL
	srv.Close()

	f, err := New(Options{Endpoint: endpoint, KeyParam: "access_key", DataKey: "data", Timeout: time.Second}, nil)
	require.NoError(t, err)

	res, err := f.Fetch(context.Background(), model.Arrivals, "top-secret", []string{"TUN", "DJE"})
	require.NoError(t, err)
	require.Len(t, res.Outcomes, 2)
	for _, o := range res.Outcomes {
		require.NotNil(t, o.Err)
		assert.Equal(t, KindTransport, o.Err.Kind)
		assert.NotContains(t, o.Err.Error(), "top-secret")
		assert.Contains(t, o.Err.Error(), redacted)
	}
}

type countingDoer struct {
	calls atomic.Int32
	err   error
}

func (c *countingDoer) Do(*http.Request) (*http.Response, error) {
	c.calls.Add(1)
	return nil, c.err
}

func TestFetchDoerErrorContinues(t *testing.T) {
	doer := &countingDoer{err: errors.New("boom")}
	f, err := New(Options{Endpoint: "https://flights.test/v1", KeyParam: "api_key", DataKey: "response"}, nil, WithHTTPClient(doer))
	require.NoError(t, err)

	res, err := f.Fetch(context.Background(), model.Arrivals, "k", []string{"TUN", "MIR", "NBE"})
	require.NoError(t, err)
	assert.Equal(t, int32(3), doer.calls.Load())
	assert.Equal(t, 3, res.Failed())
	assert.Empty(t, res.Items)
}

func TestFetchRejectsBadArgumentsWithoutRequests(t *testing.T) {
	doer := &countingDoer{}
	f, err := New(Options{Endpoint: "https://flights.test/v1", KeyParam: "api_key", DataKey: "response"}, nil, WithHTTPClient(doer))
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), model.Arrivals, "", []string{"TUN"})
	assert.Error(t, err)
	_, err = f.Fetch(context.Background(), model.Arrivals, "k", nil)
	assert.Error(t, err)
	assert.Equal(t, int32(0), doer.calls.Load())
}

func TestFetchResponseKeyVariant(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "k", r.URL.Query().Get("api_key"))
		w.Write([]byte(`{"request": {}, "response": [{"flight_iata": "TU712", "delayed": 12345678901234567}]}`))
	}))
	defer srv.Close()

	f, err := New(Options{Endpoint: srv.URL, KeyParam: "api_key", DataKey: "response"}, nil)
	require.NoError(t, err)

	res, err := f.Fetch(context.Background(), model.Arrivals, "k", []string{"TUN"})
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	rec := res.Items[0].(map[string]any)
	assert.Equal(t, json.Number("12345678901234567"), rec["delayed"])
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(Options{KeyParam: "a", DataKey: "b"}, nil)
	assert.Error(t, err)
	_, err = New(Options{Endpoint: "http://x"}, nil)
	assert.Error(t, err)
}

func TestFetchErrorMessage(t *testing.T) {
	assert.Equal(t, "TUN: http_status: unexpected status 503",
		(&FetchError{Kind: KindHTTPStatus, Airport: "TUN", StatusCode: 503}).Error())

	inner := errors.New("eof")
	ferr := &FetchError{Kind: KindMalformed, Airport: "DJE", Err: inner}
	assert.Equal(t, "DJE: malformed: eof", ferr.Error())
	assert.ErrorIs(t, ferr, inner)
	assert.True(t, KindNoData.Critical())
	assert.False(t, KindTimeout.Critical())
}

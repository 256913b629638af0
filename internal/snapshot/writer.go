package snapshot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/backyonatan-alt/flightsnap/internal/model"
)

// FileName is unique per direction and calendar day: raw_{direction}_flights_{DDMMYYYY}.json.
func FileName(dir model.Direction, day time.Time) string {
	return fmt.Sprintf("raw_%s_flights_%s.%s", dir, day.Format("02012006"), Format)
}

// EnsureDir resolves dir to an absolute path and creates it, with parents, if absent.
func EnsureDir(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", abs, err)
	}
	return abs, nil
}

// Result reports the outcome of one Write.
type Result struct {
	Path    string
	Records int
	Bytes   int
	Err     error
}

func (r Result) OK() bool {
	return r.Err == nil
}

// Writer persists batches under one output directory.
type Writer struct {
	dir string
	now func() time.Time
	log *zap.Logger
}

type Option func(*Writer)

// WithClock sets the clock used for the date in file names.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

func NewWriter(dir string, log *zap.Logger, opts ...Option) *Writer {
	if log == nil {
		log = zap.NewNop()
	}
	w := &Writer{dir: dir, now: time.Now, log: log}
	for _, o := range opts {
		o(w)
	}
	return w
}

// With returns a copy of w that logs to log.
func (w *Writer) With(log *zap.Logger) *Writer {
	c := *w
	c.log = log
	return &c
}

// Write serializes batch as 4-space indented JSON, replacing any snapshot of the same day.
// Failures are logged and returned in Result.Err.
func (w *Writer) Write(batch model.FlightBatch, dir model.Direction) Result {
	res := Result{Records: len(batch)}

	abs, err := EnsureDir(w.dir)
	if err != nil {
		return w.fail(res, err)
	}
	res.Path = filepath.Join(abs, FileName(dir, w.now()))

	data, err := Encode(batch)
	if err != nil {
		return w.fail(res, err)
	}
	if err := writeFileAtomic(res.Path, data); err != nil {
		return w.fail(res, err)
	}
	res.Bytes = len(data)

	w.log.Info("flight data saved",
		zap.Stringer("direction", dir),
		zap.String("path", res.Path),
		zap.Int("records", res.Records),
	)
	return res
}

func (w *Writer) fail(res Result, err error) Result {
	res.Err = fmt.Errorf("saving flight data: %w", err)
	w.log.Error("error saving flight data", zap.String("path", res.Path), zap.Error(err))
	return res
}

// Encode renders a batch the way snapshots are stored. A nil batch encodes as [].
func Encode(batch model.FlightBatch) ([]byte, error) {
	if batch == nil {
		batch = model.FlightBatch{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(batch); err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

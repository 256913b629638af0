package snapshot

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/backyonatan-alt/flightsnap/internal/model"
	"github.com/backyonatan-alt/flightsnap/internal/validate"
)

// Format is the only snapshot file format.
const Format = "json"

var (
	ErrNotFound = errors.New("snapshot file not found")
	ErrFormat   = errors.New("snapshot file format must be " + Format)
	ErrInvalid  = errors.New("snapshot is not a list of records")
)

// FileInfo describes a snapshot file on disk.
type FileInfo struct {
	Name   string
	Format string
	Dir    string
	Exists bool
}

func (fi FileInfo) String() string {
	return fmt.Sprintf("Filename = %s\nFormat = %s\nDirectory = %s\nFile exists = %t\n",
		fi.Name, fi.Format, fi.Dir, fi.Exists)
}

// Inspect checks that path is an existing regular file with a .json extension.
func Inspect(path string) (FileInfo, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileInfo{}, fmt.Errorf("resolving %s: %w", path, err)
	}

	fi := FileInfo{
		Name:   filepath.Base(abs),
		Format: Format,
		Dir:    filepath.Dir(abs),
	}
	st, err := os.Stat(abs)
	fi.Exists = err == nil && st.Mode().IsRegular()

	if !fi.Exists {
		return fi, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if ext := strings.TrimPrefix(filepath.Ext(abs), "."); !strings.EqualFold(ext, Format) {
		return fi, fmt.Errorf("%w: %s", ErrFormat, path)
	}
	return fi, nil
}

// Load inspects and decodes a snapshot file.
func Load(path string) (model.FlightBatch, error) {
	if _, err := Inspect(path); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("parsing snapshot: %w", err)
	}

	batch, ok := validate.Records(v)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, path)
	}
	return batch, nil
}

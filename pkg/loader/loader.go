// Package loader turns recorded sensor traces into replay input for the
// VM. A replay buffer is consumed one byte per SENSE instruction; each
// byte is the packed form of a ByteSil.
//
// Tabular traces (CSV, JSON, Parquet) are read into a dataframe-go
// DataFrame and one column is converted to bytes. Any other file is used
// verbatim.
package loader

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	dataframe "github.com/rocketlaunchr/dataframe-go"
)

var (
	ErrEmptyTrace        = errors.New("empty trace")
	ErrInvalidFormat     = errors.New("invalid trace format")
	ErrNoColumn          = errors.New("no such column")
	ErrUnsupportedColumn = errors.New("column cannot be replayed")
	ErrValueRange        = errors.New("value out of byte range")
)

// Format identifies a trace file format.
type Format uint8

const (
	FormatRaw Format = iota
	FormatCSV
	FormatJSON
	FormatParquet
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	case FormatParquet:
		return "parquet"
	default:
		return "raw"
	}
}

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV
	case ".json":
		return FormatJSON
	case ".parquet", ".pq":
		return FormatParquet
	default:
		return FormatRaw
	}
}

// Load reads a tabular trace. Raw files have no table form.
func Load(ctx context.Context, path string) (*dataframe.DataFrame, error) {
	switch DetectFormat(path) {
	case FormatCSV:
		return LoadCSV(ctx, path)
	case FormatJSON:
		return LoadJSON(ctx, path)
	case FormatParquet:
		return LoadParquet(ctx, path)
	default:
		return nil, fmt.Errorf("%w: %s is not a table", ErrInvalidFormat, filepath.Base(path))
	}
}

// ReadReplay returns the replay bytes stored in path. Tables are
// converted with opts; raw files are returned as they are.
func ReadReplay(ctx context.Context, path string, opts ReplayOptions) ([]byte, error) {
	if DetectFormat(path) == FormatRaw {
		return os.ReadFile(path)
	}
	df, err := Load(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", filepath.Base(path), err)
	}
	return Replay(df, opts)
}

package writer

import (
	"strings"

	"github.com/rxtech-lab/argo-history/internal/types"
	"github.com/rxtech-lab/argo-history/pkg/errors"
)

// MarketDataWriter defines the interface for writing market data to a destination.
type MarketDataWriter interface {
	// Initialize sets up the writer, potentially creating tables or files.
	Initialize() error
	// Write persists a single market data point.
	Write(data types.MarketData) error
	// Finalize completes the writing process (e.g., commits transactions, exports files).
	Finalize() (outputPath string, err error)
	// Close releases any resources held by the writer.
	Close() error
	// GetOutputPath returns the configured output file path.
	GetOutputPath() string
}

// Format names an output format.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatDuckDB  Format = "duckdb"
	FormatParquet Format = "parquet"
)

// Formats lists the supported output formats; the first is the default.
var Formats = []Format{FormatCSV, FormatDuckDB, FormatParquet}

// ParseFormat parses a format name. An empty name selects CSV.
func ParseFormat(name string) (Format, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return FormatCSV, nil
	}

	for _, f := range Formats {
		if string(f) == name {
			return f, nil
		}
	}

	return "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported writer %q (use csv, duckdb or parquet)", name)
}

// Extension returns the file extension without the dot.
func (f Format) Extension() string {
	return string(f)
}

// Options configures writers created by New.
type Options struct {
	// ZoneLabeled writes CSV datetimes with their UTC offset.
	ZoneLabeled bool
}

// New creates the writer for format at outputPath.
func New(format Format, outputPath string, opts Options) (MarketDataWriter, error) {
	switch format {
	case FormatCSV:
		return NewCSVWriter(outputPath, opts.ZoneLabeled), nil
	case FormatDuckDB:
		return NewDuckDBWriter(outputPath), nil
	case FormatParquet:
		return NewParquetWriter(outputPath), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidParameter, "unsupported writer %q", string(format))
	}
}

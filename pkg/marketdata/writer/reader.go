package writer

import (
	"database/sql"
	"math"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/rxtech-lab/argo-history/internal/types"
	"github.com/rxtech-lab/argo-history/pkg/errors"
)

// storedColumns are the columns DuckDB and parquet outputs hold besides the row id.
var storedColumns = []string{"time", "symbol", "open", "high", "low", "close", "volume"}

// ReadTable reads any output written by this package, choosing the format from the file
// extension. DuckDB and parquet files store instants without a zone label, so their
// tables are never ZoneLabeled.
func ReadTable(path string) (*Table, error) {
	format, err := ParseFormat(strings.TrimPrefix(filepath.Ext(path), "."))
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatDuckDB:
		bars, err := ReadDuckDB(path)
		if err != nil {
			return nil, err
		}

		return &Table{Columns: storedColumns, Bars: bars}, nil
	case FormatParquet:
		bars, err := ReadParquet(path)
		if err != nil {
			return nil, err
		}

		return &Table{Columns: storedColumns, Bars: bars}, nil
	default:
		return ReadCSV(path)
	}
}

// ReadDuckDB reads the market_data table of a DuckDB file in time order.
func ReadDuckDB(path string) ([]types.MarketData, error) {
	db, err := sql.Open("duckdb", path+"?access_mode=read_only")
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataNotFound, err, "failed to open %s", path)
	}
	defer db.Close()

	query, _, err := sq.Select("id", "time", "symbol", "open", "high", "low", "close", "volume").
		From("market_data").
		OrderBy("time").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to build query", err)
	}

	rows, err := db.Query(query)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "failed to query %s", path)
	}
	defer rows.Close()

	var data []types.MarketData

	for rows.Next() {
		var (
			bar           types.MarketData
			ts            time.Time
			o, h, l, c, v sql.NullFloat64
		)

		if err := rows.Scan(&bar.Id, &ts, &bar.Symbol, &o, &h, &l, &c, &v); err != nil {
			return nil, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to scan row", err)
		}

		bar.Time = ts.UTC()
		bar.Open = nullToNaN(o)
		bar.High = nullToNaN(h)
		bar.Low = nullToNaN(l)
		bar.Close = nullToNaN(c)
		bar.Volume = nullToNaN(v)

		data = append(data, bar)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to read rows", err)
	}

	if data == nil {
		data = []types.MarketData{}
	}

	return data, nil
}

func nullToNaN(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}

	return v.Float64
}

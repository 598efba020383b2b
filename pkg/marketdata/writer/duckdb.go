package writer

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/marcboeker/go-duckdb"

	"github.com/rxtech-lab/argo-history/internal/types"
	"github.com/rxtech-lab/argo-history/pkg/errors"
)

// marketDataColumns is the column order of the market_data table.
var marketDataColumns = []string{"id", "time", "symbol", "open", "high", "low", "close", "volume"}

// DuckDBWriter buffers bars in an in-memory DuckDB table and, on Finalize, copies them
// ordered by time into a DuckDB database file at outputPath.
type DuckDBWriter struct {
	db         *sql.DB
	tx         *sql.Tx
	stmt       *sql.Stmt
	outputPath string
}

// NewDuckDBWriter creates a new DuckDBWriter.
func NewDuckDBWriter(outputPath string) MarketDataWriter {
	return &DuckDBWriter{
		outputPath: outputPath,
	}
}

// Initialize opens an in-memory database, creates the market_data table, begins a
// transaction and prepares the insert statement.
func (w *DuckDBWriter) Initialize() (err error) {
	w.db, err = sql.Open("duckdb", ":memory:")
	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to open DuckDB connection", err)
	}

	_, err = w.db.Exec(`
		CREATE TABLE IF NOT EXISTS market_data (
			id TEXT,
			time TIMESTAMPTZ,
			symbol TEXT,
			open DOUBLE,
			high DOUBLE,
			low DOUBLE,
			close DOUBLE,
			volume DOUBLE
		)
	`)
	if err != nil {
		w.closeDB()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to create table", err)
	}

	w.tx, err = w.db.Begin()
	if err != nil {
		w.closeDB()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to begin transaction", err)
	}

	placeholders := make([]any, len(marketDataColumns))
	for i := range placeholders {
		placeholders[i] = sq.Expr("?")
	}

	query, _, err := sq.Insert("market_data").Columns(marketDataColumns...).Values(placeholders...).ToSql()
	if err != nil {
		w.rollback()
		w.closeDB()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to build insert statement", err)
	}

	w.stmt, err = w.tx.Prepare(query)
	if err != nil {
		w.rollback()
		w.closeDB()

		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to prepare statement", err)
	}

	return nil
}

// Write persists a single market data point using the prepared statement within the transaction.
func (w *DuckDBWriter) Write(data types.MarketData) error {
	if w.stmt == nil {
		return errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized or statement is nil")
	}

	id := data.Id
	if id == "" {
		id = uuid.New().String()
	}

	_, err := w.stmt.Exec(
		id,
		data.Time,
		data.Symbol,
		data.Open,
		data.High,
		data.Low,
		data.Close,
		data.Volume,
	)
	if err != nil {
		// Don't rollback here, let Finalize handle it or allow further writes
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to insert data", err)
	}

	return nil
}

// Finalize commits the transaction and copies the table into the database file.
// An existing file at outputPath is replaced.
func (w *DuckDBWriter) Finalize() (outputPath string, err error) {
	if w.tx == nil {
		return "", errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized or transaction is nil")
	}

	if w.stmt != nil {
		_ = w.stmt.Close()
		w.stmt = nil
	}

	if err = w.tx.Commit(); err != nil {
		w.rollback()

		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to commit transaction", err)
	}

	w.tx = nil

	if dir := filepath.Dir(w.outputPath); dir != "" {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to create output directory", err)
		}
	}

	if err = os.Remove(w.outputPath); err != nil && !os.IsNotExist(err) {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to replace existing database", err)
	}

	_, err = w.db.Exec(fmt.Sprintf(`ATTACH '%s' AS export_db`, escapeLiteral(w.outputPath)))
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to export to DuckDB file", err)
	}

	export, _, err := sq.Select(marketDataColumns...).From("market_data").OrderBy("time").ToSql()
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to build export query", err)
	}

	_, err = w.db.Exec(`CREATE TABLE export_db.market_data AS ` + export)
	if err != nil {
		_, _ = w.db.Exec(`DETACH export_db`)

		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to export to DuckDB file", err)
	}

	if _, err = w.db.Exec(`DETACH export_db`); err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to detach DuckDB file", err)
	}

	return w.outputPath, nil
}

// Close cleans up resources used by the writer, including closing the statement
// and the database connection. An unfinished transaction is rolled back.
func (w *DuckDBWriter) Close() error {
	var closeErrors []error

	if w.stmt != nil {
		if err := w.stmt.Close(); err != nil {
			closeErrors = append(closeErrors, fmt.Errorf("failed to close statement: %w", err))
		}

		w.stmt = nil
	}

	w.rollback()

	if w.db != nil {
		if err := w.db.Close(); err != nil {
			closeErrors = append(closeErrors, fmt.Errorf("failed to close db connection: %w", err))
		}

		w.db = nil
	}

	if len(closeErrors) > 0 {
		// Combine errors into a single error message
		errMsg := "errors occurred during close:"
		for _, e := range closeErrors {
			errMsg += fmt.Sprintf("\n- %v", e)
		}

		return errors.New(errors.ErrCodeMarketDataWriteFailed, errMsg)
	}

	return nil
}

func (w *DuckDBWriter) GetOutputPath() string {
	return w.outputPath
}

func (w *DuckDBWriter) rollback() {
	if w.tx != nil {
		_ = w.tx.Rollback()
		w.tx = nil
	}
}

func (w *DuckDBWriter) closeDB() {
	if w.db != nil {
		_ = w.db.Close()
		w.db = nil
	}
}

func escapeLiteral(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

package writer

import (
	"encoding/csv"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/rxtech-lab/argo-history/internal/types"
	"github.com/rxtech-lab/argo-history/pkg/errors"
)

const (
	// NaiveTimeLayout is used for tables without timezone information.
	NaiveTimeLayout = "2006-01-02 15:04:05"
	// ZonedTimeLayout is used once a table is labeled with a timezone.
	ZonedTimeLayout = "2006-01-02 15:04:05-07:00"
)

// CSVHeader is the column order written by CSVWriter.
var CSVHeader = []string{"datetime", "open", "high", "low", "close", "volume"}

// CSVWriter writes bars as CSV rows. Rows are streamed to the file as they are written.
type CSVWriter struct {
	outputPath  string
	zoneLabeled bool
	file        *os.File
	csv         *csv.Writer
	finalized   bool
}

// NewCSVWriter creates a CSV writer. With zoneLabeled the datetime column carries the UTC
// offset of each bar's location.
func NewCSVWriter(outputPath string, zoneLabeled bool) MarketDataWriter {
	return &CSVWriter{
		outputPath:  outputPath,
		zoneLabeled: zoneLabeled,
	}
}

// Initialize creates the output file, its parent directory and the header row.
func (w *CSVWriter) Initialize() error {
	if dir := filepath.Dir(w.outputPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to create output directory", err)
		}
	}

	f, err := os.Create(w.outputPath)
	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to create csv file", err)
	}

	w.file = f
	w.csv = csv.NewWriter(f)
	w.finalized = false

	if err := w.csv.Write(CSVHeader); err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to write csv header", err)
	}

	return nil
}

func (w *CSVWriter) Write(data types.MarketData) error {
	if w.csv == nil {
		return errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized")
	}

	if w.finalized {
		return errors.New(errors.ErrCodeMarketDataWriteFailed, "writer already finalized")
	}

	layout := NaiveTimeLayout
	if w.zoneLabeled {
		layout = ZonedTimeLayout
	}

	err := w.csv.Write([]string{
		data.Time.Format(layout),
		formatFloat(data.Open),
		formatFloat(data.High),
		formatFloat(data.Low),
		formatFloat(data.Close),
		formatFloat(data.Volume),
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to write csv row", err)
	}

	return nil
}

// Finalize flushes buffered rows and returns the output path.
func (w *CSVWriter) Finalize() (string, error) {
	if w.csv == nil {
		return "", errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized")
	}

	w.csv.Flush()
	if err := w.csv.Error(); err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to flush csv file", err)
	}

	w.finalized = true

	return w.outputPath, nil
}

func (w *CSVWriter) Close() error {
	if w.file == nil {
		return nil
	}

	if w.csv != nil && !w.finalized {
		w.csv.Flush()
	}

	err := w.file.Close()
	w.file = nil
	w.csv = nil

	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to close csv file", err)
	}

	return nil
}

func (w *CSVWriter) GetOutputPath() string {
	return w.outputPath
}

// formatFloat writes NaN as an empty cell.
func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return ""
	}

	return strconv.FormatFloat(f, 'f', -1, 64)
}

// Table is a bar table read back from disk.
type Table struct {
	Columns []string
	Bars    []types.MarketData
	// ZoneLabeled is true when the datetime column carries UTC offsets.
	ZoneLabeled bool

	// records holds the raw CSV rows so that WriteCSV can keep every column.
	records    [][]string
	timeColumn int
}

// ReadCSV reads a bar CSV. The datetime column is required; missing price or volume
// columns and empty cells read as NaN. Naive datetimes are interpreted as UTC wall clocks.
// Columns other than the OHLCV set and symbol are not parsed but are kept for WriteCSV.
func ReadCSV(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeDataNotFound, err, "failed to open %s", path)
	}
	defer f.Close()

	return readCSV(f)
}

func readCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeMarketDataParseFailed, "failed to read csv header", err)
	}

	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(name)] = i
	}

	timeCol, ok := index["datetime"]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeMarketDataParseFailed, "csv has no datetime column (columns: %s)", strings.Join(header, ","))
	}

	symbolCol, hasSymbol := index["symbol"]

	table := &Table{
		Columns:    slices.Clone(header),
		Bars:       []types.MarketData{},
		timeColumn: timeCol,
	}

	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}

		line++

		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "failed to read csv line %d", line)
		}

		if timeCol >= len(record) {
			return nil, errors.Newf(errors.ErrCodeMarketDataParseFailed, "line %d has no datetime value", line)
		}

		t, zoned, err := parseCSVTime(strings.TrimSpace(record[timeCol]))
		if err != nil {
			return nil, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "invalid datetime on line %d", line)
		}

		if zoned {
			table.ZoneLabeled = true
		}

		bar := types.MarketData{
			Time:   t,
			Open:   cell(record, index, "open"),
			High:   cell(record, index, "high"),
			Low:    cell(record, index, "low"),
			Close:  cell(record, index, "close"),
			Volume: cell(record, index, "volume"),
		}

		if hasSymbol && symbolCol < len(record) {
			bar.Symbol = record[symbolCol]
		}

		table.Bars = append(table.Bars, bar)
		table.records = append(table.records, record)
	}

	return table, nil
}

// WriteCSV writes the table to path. A table read by ReadCSV keeps its columns and cells,
// with only the datetime column rewritten from Bars, which must still be in the order they
// were read. Other tables are written with CSVHeader. The whole table is in memory, so path
// may be the file it was read from.
func (t *Table) WriteCSV(path string, zoneLabeled bool) (err error) {
	if t.records == nil {
		return t.writeBars(path, zoneLabeled)
	}

	if len(t.records) != len(t.Bars) {
		return errors.Newf(errors.ErrCodeMarketDataWriteFailed, "table has %d rows but %d bars", len(t.records), len(t.Bars))
	}

	layout := NaiveTimeLayout
	if zoneLabeled {
		layout = ZonedTimeLayout
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to create csv file", err)
	}

	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to close csv file", cerr)
		}
	}()

	w := csv.NewWriter(f)
	if err := w.Write(t.Columns); err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to write csv header", err)
	}

	for i, record := range t.records {
		row := slices.Clone(record)
		row[t.timeColumn] = t.Bars[i].Time.Format(layout)

		if err := w.Write(row); err != nil {
			return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to write csv row", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to flush csv file", err)
	}

	return nil
}

func (t *Table) writeBars(path string, zoneLabeled bool) (err error) {
	w := NewCSVWriter(path, zoneLabeled)
	if err := w.Initialize(); err != nil {
		return err
	}

	defer func() {
		if cerr := w.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for _, bar := range t.Bars {
		if err := w.Write(bar); err != nil {
			return err
		}
	}

	_, err = w.Finalize()

	return err
}

var zonedLayouts = []string{ZonedTimeLayout, time.RFC3339, "2006-01-02 15:04:05Z07:00"}

var naiveLayouts = []string{NaiveTimeLayout, "2006-01-02T15:04:05", "2006-01-02"}

// parseCSVTime accepts the layouts written by CSVWriter plus RFC 3339 and bare dates.
func parseCSVTime(value string) (time.Time, bool, error) {
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true, nil
		}
	}

	var lastErr error
	for _, layout := range naiveLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, false, nil
		}

		lastErr = err
	}

	return time.Time{}, false, lastErr
}

func cell(record []string, index map[string]int, column string) float64 {
	i, ok := index[column]
	if !ok || i >= len(record) {
		return math.NaN()
	}

	value := strings.TrimSpace(record[i])
	if value == "" {
		return math.NaN()
	}

	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return math.NaN()
	}

	return f
}

package writer

import (
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/rxtech-lab/argo-history/internal/types"
	"github.com/rxtech-lab/argo-history/pkg/errors"
)

// BarRecord is the Parquet schema written by ParquetWriter.
type BarRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open      float64 `parquet:"open"`
	High      float64 `parquet:"high"`
	Low       float64 `parquet:"low"`
	Close     float64 `parquet:"close"`
	Volume    float64 `parquet:"volume"`
}

// ParquetWriter collects bars in memory and writes a single Parquet file on Finalize.
type ParquetWriter struct {
	outputPath  string
	records     []BarRecord
	initialized bool
}

func NewParquetWriter(outputPath string) MarketDataWriter {
	return &ParquetWriter{outputPath: outputPath}
}

func (w *ParquetWriter) Initialize() error {
	w.records = w.records[:0]
	w.initialized = true

	return nil
}

func (w *ParquetWriter) Write(data types.MarketData) error {
	if !w.initialized {
		return errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized")
	}

	w.records = append(w.records, BarRecord{
		Symbol:    data.Symbol,
		Timestamp: data.Time.UnixMilli(),
		Open:      data.Open,
		High:      data.High,
		Low:       data.Low,
		Close:     data.Close,
		Volume:    data.Volume,
	})

	return nil
}

func (w *ParquetWriter) Finalize() (string, error) {
	if !w.initialized {
		return "", errors.New(errors.ErrCodeMarketDataWriteFailed, "writer not initialized")
	}

	if err := os.MkdirAll(filepath.Dir(w.outputPath), 0o755); err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to create output directory", err)
	}

	if err := parquet.WriteFile(w.outputPath, w.records); err != nil {
		return "", errors.Wrap(errors.ErrCodeMarketDataWriteFailed, "failed to write parquet file", err)
	}

	return w.outputPath, nil
}

func (w *ParquetWriter) Close() error {
	w.records = nil
	w.initialized = false

	return nil
}

func (w *ParquetWriter) GetOutputPath() string {
	return w.outputPath
}

// ReadParquet reads a file written by ParquetWriter. Timestamps are returned in UTC.
func ReadParquet(path string) ([]types.MarketData, error) {
	records, err := parquet.ReadFile[BarRecord](path)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeMarketDataParseFailed, err, "failed to read %s", path)
	}

	data := make([]types.MarketData, 0, len(records))
	for _, r := range records {
		data = append(data, types.MarketData{
			Symbol: r.Symbol,
			Time:   time.UnixMilli(r.Timestamp).UTC(),
			Open:   r.Open,
			High:   r.High,
			Low:    r.Low,
			Close:  r.Close,
			Volume: r.Volume,
		})
	}

	return data, nil
}

package writer

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/argo-history/internal/types"
	"github.com/rxtech-lab/argo-history/pkg/errors"
)

type CSVWriterTestSuite struct {
	suite.Suite
	tempDir string
}

func TestCSVWriterSuite(t *testing.T) {
	suite.Run(t, new(CSVWriterTestSuite))
}

func (suite *CSVWriterTestSuite) SetupTest() {
	suite.tempDir = suite.T().TempDir()
}

func (suite *CSVWriterTestSuite) writeAll(w MarketDataWriter, bars []types.MarketData) string {
	suite.Require().NoError(w.Initialize())

	for _, bar := range bars {
		suite.Require().NoError(w.Write(bar))
	}

	path, err := w.Finalize()
	suite.Require().NoError(err)
	suite.Require().NoError(w.Close())

	return path
}

func (suite *CSVWriterTestSuite) TestNaiveOutput() {
	bars := []types.MarketData{
		{Time: time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
		{Time: time.Date(2025, 7, 16, 0, 5, 0, 0, time.UTC), Open: 1.5, High: 2.25, Low: 1, Close: 2, Volume: 0},
	}

	path := suite.writeAll(NewCSVWriter(filepath.Join(suite.tempDir, "out", "naive.csv"), false), bars)

	content, err := os.ReadFile(path)
	suite.Require().NoError(err)

	expected := "datetime,open,high,low,close,volume\n" +
		"2025-07-16 00:00:00,1,2,0.5,1.5,100\n" +
		"2025-07-16 00:05:00,1.5,2.25,1,2,0\n"
	suite.Equal(expected, string(content))
}

func (suite *CSVWriterTestSuite) TestZoneLabeledOutput() {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	suite.Require().NoError(err)

	bars := []types.MarketData{
		{Time: time.Date(2025, 7, 16, 0, 0, 0, 0, loc), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
		{Time: time.Date(2025, 7, 16, 3, 0, 0, 0, time.UTC), Open: 1, High: 1, Low: 1, Close: 1, Volume: 1},
	}

	path := suite.writeAll(NewCSVWriter(filepath.Join(suite.tempDir, "zoned.csv"), true), bars)

	content, err := os.ReadFile(path)
	suite.Require().NoError(err)

	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	suite.Require().Len(lines, 3)
	suite.True(strings.HasPrefix(lines[1], "2025-07-16 00:00:00-03:00,"))
	suite.True(strings.HasPrefix(lines[2], "2025-07-16 03:00:00+00:00,"))
}

func (suite *CSVWriterTestSuite) TestNaNWrittenAsEmptyCell() {
	bars := []types.MarketData{
		{Time: time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC), Open: math.NaN(), High: 2, Low: 1, Close: 1, Volume: math.NaN()},
	}

	path := suite.writeAll(NewCSVWriter(filepath.Join(suite.tempDir, "nan.csv"), false), bars)

	content, err := os.ReadFile(path)
	suite.Require().NoError(err)
	suite.Contains(string(content), "2025-07-16 00:00:00,,2,1,1,\n")
}

func (suite *CSVWriterTestSuite) TestRoundTrip() {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	suite.Require().NoError(err)

	start := time.Date(2025, 7, 16, 0, 0, 0, 0, loc)
	bars := make([]types.MarketData, 0, 10)
	for i := 0; i < 10; i++ {
		bars = append(bars, types.MarketData{
			Time:   start.Add(time.Duration(i) * 5 * time.Minute),
			Open:   100 + float64(i),
			High:   101 + float64(i),
			Low:    99 + float64(i),
			Close:  100.5 + float64(i),
			Volume: 1000 * float64(i),
		})
	}

	path := suite.writeAll(NewCSVWriter(filepath.Join(suite.tempDir, "roundtrip.csv"), true), bars)

	table, err := ReadCSV(path)
	suite.Require().NoError(err)
	suite.True(table.ZoneLabeled)
	suite.Equal(CSVHeader, table.Columns)
	suite.Require().Len(table.Bars, len(bars))

	for i, bar := range table.Bars {
		suite.True(bars[i].Time.Equal(bar.Time))
		_, offset := bar.Time.Zone()
		suite.Equal(-3*3600, offset)
		suite.Equal(bars[i].Open, bar.Open)
		suite.Equal(bars[i].Close, bar.Close)
		suite.Equal(bars[i].Volume, bar.Volume)
	}
}

func (suite *CSVWriterTestSuite) TestReadCSVNaive() {
	input := "datetime,symbol,open,high,low,close,volume\n" +
		"2025-07-16 00:00:00,CRYPTOCAP:BTC.D,61.5,61.7,61.4,61.6,\n" +
		"2025-07-16 00:05:00,CRYPTOCAP:BTC.D,61.6,61.8,61.5,61.7,12\n"

	table, err := readCSV(strings.NewReader(input))
	suite.Require().NoError(err)
	suite.False(table.ZoneLabeled)
	suite.Equal([]string{"datetime", "symbol", "open", "high", "low", "close", "volume"}, table.Columns)
	suite.Require().Len(table.Bars, 2)

	suite.Equal(time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC), table.Bars[0].Time)
	suite.Equal("CRYPTOCAP:BTC.D", table.Bars[0].Symbol)
	suite.True(math.IsNaN(table.Bars[0].Volume))
	suite.Equal(12.0, table.Bars[1].Volume)
}

func (suite *CSVWriterTestSuite) TestReadCSVMissingColumns() {
	input := "datetime,close\n2025-07-16,10\n"

	table, err := readCSV(strings.NewReader(input))
	suite.Require().NoError(err)
	suite.Require().Len(table.Bars, 1)
	suite.Equal(10.0, table.Bars[0].Close)
	suite.True(math.IsNaN(table.Bars[0].Open))
	suite.Equal(time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC), table.Bars[0].Time)
}

func (suite *CSVWriterTestSuite) TestReadCSVErrors() {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty file", input: ""},
		{name: "no datetime column", input: "time,open\n2025-07-16 00:00:00,1\n"},
		{name: "invalid datetime", input: "datetime,open\nyesterday,1\n"},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			_, err := readCSV(strings.NewReader(tc.input))
			suite.Error(err)
			suite.True(errors.HasCode(err, errors.ErrCodeMarketDataParseFailed))
		})
	}
}

func (suite *CSVWriterTestSuite) TestReadCSVMissingFile() {
	_, err := ReadCSV(filepath.Join(suite.tempDir, "missing.csv"))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeDataNotFound))
}

func (suite *CSVWriterTestSuite) TestWriteLifecycleErrors() {
	w := NewCSVWriter(filepath.Join(suite.tempDir, "lifecycle.csv"), false)

	err := w.Write(types.MarketData{})
	suite.Error(err)
	suite.Contains(err.Error(), "not initialized")

	_, err = w.Finalize()
	suite.Error(err)

	suite.NoError(w.Close())

	suite.Require().NoError(w.Initialize())
	_, err = w.Finalize()
	suite.Require().NoError(err)

	err = w.Write(types.MarketData{})
	suite.Error(err)
	suite.Contains(err.Error(), "already finalized")

	suite.NoError(w.Close())
	suite.NoError(w.Close())
}

func (suite *CSVWriterTestSuite) TestInitializeFailsOnDirectoryPath() {
	w := NewCSVWriter(suite.tempDir, false)

	err := w.Initialize()
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeMarketDataWriteFailed))
}

func (suite *CSVWriterTestSuite) TestWriteCSVKeepsExtraColumns() {
	path := filepath.Join(suite.tempDir, "extra.csv")
	content := "symbol,datetime,open,high,low,close,volume,note\n" +
		"BTCUSDT,2025-07-16 00:00:00,1,2,0.5,1.5,100,first\n" +
		"BTCUSDT,2025-07-16 00:05:00,1.5,2.25,1,2,,\n"
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0o644))

	table, err := ReadCSV(path)
	suite.Require().NoError(err)

	loc, err := time.LoadLocation("America/New_York")
	suite.Require().NoError(err)

	for i := range table.Bars {
		table.Bars[i].Time = table.Bars[i].Time.In(loc)
	}

	output := filepath.Join(suite.tempDir, "extra_fixed.csv")
	suite.Require().NoError(table.WriteCSV(output, true))

	written, err := os.ReadFile(output)
	suite.Require().NoError(err)

	lines := strings.Split(strings.TrimSpace(string(written)), "\n")
	suite.Equal([]string{
		"symbol,datetime,open,high,low,close,volume,note",
		"BTCUSDT,2025-07-15 20:00:00-04:00,1,2,0.5,1.5,100,first",
		"BTCUSDT,2025-07-15 20:05:00-04:00,1.5,2.25,1,2,,",
	}, lines)
}

func (suite *CSVWriterTestSuite) TestWriteCSVWithoutRecords() {
	table := &Table{Bars: []types.MarketData{
		{Time: time.Date(2025, 7, 16, 0, 0, 0, 0, time.UTC), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 100},
	}}

	path := filepath.Join(suite.tempDir, "plain.csv")
	suite.Require().NoError(table.WriteCSV(path, false))

	written, err := os.ReadFile(path)
	suite.Require().NoError(err)
	suite.True(strings.HasPrefix(string(written), strings.Join(CSVHeader, ",")+"\n"))
	suite.Contains(string(written), "2025-07-16 00:00:00,1,2,0.5,1.5,100")
}

func (suite *CSVWriterTestSuite) TestWriteCSVRowMismatch() {
	path := filepath.Join(suite.tempDir, "rows.csv")
	suite.Require().NoError(os.WriteFile(path, []byte("datetime,close\n2025-07-16 00:00:00,1\n"), 0o644))

	table, err := ReadCSV(path)
	suite.Require().NoError(err)

	table.Bars = nil
	err = table.WriteCSV(filepath.Join(suite.tempDir, "out.csv"), false)
	suite.Error(err)
	suite.Equal(errors.ErrCodeMarketDataWriteFailed, errors.GetCode(err))
}

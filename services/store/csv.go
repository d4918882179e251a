package store

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"backsim/services/engine"
)

// ReadCandlesCSV loads candles from a headerless CSV file with columns
// open_time_ms,open,high,low,close,volume. Trailing columns are ignored so
// raw exchange kline dumps load as-is.
func ReadCandlesCSV(path string) ([]engine.Candle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candle csv: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read candle csv: %w", err)
	}

	var out []engine.Candle
	for i, row := range rows {
		if len(row) < 6 {
			return nil, fmt.Errorf("candle csv row %d: want at least 6 columns, got %d", i+1, len(row))
		}
		c, err := parseCandleRow(row)
		if err != nil {
			// First row may be a header.
			if i == 0 {
				continue
			}
			return nil, fmt.Errorf("candle csv row %d: %w", i+1, err)
		}
		out = append(out, c)
	}
	return out, nil
}

// WriteCandlesCSV writes candles in the format ReadCandlesCSV accepts.
func WriteCandlesCSV(path string, candles []engine.Candle) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create candle csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, c := range candles {
		row := []string{
			strconv.FormatInt(c.OpenTime, 10),
			strconv.FormatFloat(c.Open, 'g', -1, 64),
			strconv.FormatFloat(c.High, 'g', -1, 64),
			strconv.FormatFloat(c.Low, 'g', -1, 64),
			strconv.FormatFloat(c.Close, 'g', -1, 64),
			strconv.FormatFloat(c.Volume, 'g', -1, 64),
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write candle csv: %w", err)
		}
	}
	w.Flush()
	return w.Error()
}

func parseCandleRow(row []string) (engine.Candle, error) {
	var c engine.Candle
	var err error
	if c.OpenTime, err = strconv.ParseInt(row[0], 10, 64); err != nil {
		return c, fmt.Errorf("open_time: %w", err)
	}
	fields := []*float64{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume}
	for i, dst := range fields {
		if *dst, err = strconv.ParseFloat(row[i+1], 64); err != nil {
			return c, fmt.Errorf("column %d: %w", i+2, err)
		}
	}
	return c, nil
}

package market

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"stockalert-go/internal/signal"
)

var csvHeader = []string{"date", "open", "high", "low", "close", "volume"}

// LoadCSVDir builds a MemoryStore from one <TICKER>.csv file per symbol.
// When universe is non-empty only the named tickers are loaded and a missing file is an error.
func LoadCSVDir(dir string, universe []string) (*MemoryStore, error) {
	files := make(map[string]string)
	if len(universe) > 0 {
		for _, t := range universe {
			t = strings.ToUpper(strings.TrimSpace(t))
			files[t] = filepath.Join(dir, t+".csv")
		}
	} else {
		matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
		if err != nil {
			return nil, fmt.Errorf("glob history: %w", err)
		}
		for _, m := range matches {
			t := strings.ToUpper(strings.TrimSuffix(filepath.Base(m), filepath.Ext(m)))
			files[t] = m
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no history files in %s", dir)
	}

	series := make(map[string][]signal.Bar, len(files))
	for ticker, path := range files {
		bars, err := readCSVFile(path)
		if err != nil {
			return nil, &DataError{Ticker: ticker, Err: err}
		}
		series[ticker] = bars
	}
	return NewMemoryStore(series)
}

func readCSVFile(path string) ([]signal.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses date,open,high,low,close,volume rows. A header row is optional.
func ReadCSV(r io.Reader) ([]signal.Bar, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(csvHeader)
	reader.TrimLeadingSpace = true

	var bars []signal.Bar
	for line := 1; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if line == 1 && strings.EqualFold(rec[0], csvHeader[0]) {
			continue
		}
		bar, err := parseRow(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseRow(rec []string) (signal.Bar, error) {
	date, err := signal.ParseDay(rec[0])
	if err != nil {
		return signal.Bar{}, err
	}
	var nums [5]float64
	for i := range nums {
		v, err := strconv.ParseFloat(strings.TrimSpace(rec[i+1]), 64)
		if err != nil {
			return signal.Bar{}, fmt.Errorf("parse %s: %w", csvHeader[i+1], err)
		}
		nums[i] = v
	}
	return signal.Bar{Date: date, Open: nums[0], High: nums[1], Low: nums[2], Close: nums[3], Volume: nums[4]}, nil
}

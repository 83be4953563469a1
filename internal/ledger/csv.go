package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"stockalert-go/internal/signal"
)

var csvColumns = []string{
	"ticker", "strategy", "signal_date", "entry_date", "entry_price", "exit_date", "exit_price",
	"exit_reason", "r_multiple", "pnl", "shares", "holding_days", "outcome", "score", "detail",
}

// WriteCSV exports results to path, replacing any existing file.
func WriteCSV(results []TradeResult, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create csv dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()
	if err := EncodeCSV(f, results); err != nil {
		return err
	}
	return f.Close()
}

// EncodeCSV writes a header row and one row per result.
func EncodeCSV(out io.Writer, results []TradeResult) error {
	w := csv.NewWriter(out)
	_ = w.Write(csvColumns)
	for _, r := range results {
		_ = w.Write([]string{
			r.Ticker, r.Strategy, formatDate(r.SignalDate), formatDate(r.EntryDate), formatF(r.EntryPrice),
			formatDate(r.ExitDate), formatF(r.ExitPrice), string(r.ExitReason), formatF(r.RMultiple),
			formatF(r.PnL), strconv.Itoa(r.Shares), strconv.Itoa(r.HoldingDays), string(r.Outcome),
			formatF(r.Score), r.Detail,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

func formatF(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(signal.DateLayout)
}

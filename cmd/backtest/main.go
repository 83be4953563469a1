// Binary backtest replays the walk-forward simulation over local price history.
package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"stockalert-go/internal/config"
	"stockalert-go/internal/engine"
	"stockalert-go/internal/ledger"
	"stockalert-go/internal/market"
	"stockalert-go/internal/metrics"
	"stockalert-go/internal/strategy"
	"stockalert-go/internal/tracker"
	"stockalert-go/internal/util"
)

var (
	configPath  string
	metricsAddr string
	logLevel    string
	logFormat   string
	dataDir     string
	startDate   string
	endDate     string
	csvOut      string
	persist     bool
)

var rootCmd = &cobra.Command{
	Use:   "backtest",
	Short: "Walk-forward swing trading backtester",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the walk-forward simulation and print a summary",
	Long: `Walk every scheduled scan date in order, rank the day's candidates,
simulate admitted trades against forward bars and print the ledger summary.

Examples:
  backtest run --config configs/backtest.yaml
  backtest run --config configs/backtest.yaml --start 2022-01-03 --end 2023-12-29
  backtest run --config configs/backtest.yaml --metrics-addr :9102 --csv out/trades.csv`,
	RunE: runBacktest,
}

func init() {
	rootCmd.AddCommand(runCmd)

	f := runCmd.Flags()
	f.StringVar(&configPath, "config", "configs/backtest.yaml", "Path to the YAML configuration")
	f.StringVar(&metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address")
	f.StringVar(&logLevel, "log-level", "", "Override app.log_level")
	f.StringVar(&logFormat, "log-format", "", "Override app.log_format (json|console|auto)")
	f.StringVar(&dataDir, "data", "", "Override data.dir")
	f.StringVar(&startDate, "start", "", "Override backtest.start (YYYY-MM-DD)")
	f.StringVar(&endDate, "end", "", "Override backtest.end (YYYY-MM-DD)")
	f.StringVar(&csvOut, "csv", "", "Override ledger.csv_path")
	f.BoolVar(&persist, "persist", false, "Book positions in the configured tracker backend instead of memory")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runBacktest(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	applyFlags(cfg)

	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	if addr := firstNonEmpty(metricsAddr, cfg.App.MetricsAddr); addr != "" {
		srv := metrics.Serve(addr)
		defer srv.Close()
		log.Info().Str("addr", addr).Msg("metrics up")
	}

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	index := strings.ToUpper(strings.TrimSpace(cfg.Filters.RegimeIndex))
	files := cfg.Backtest.Universe
	if index != "" && len(files) > 0 {
		files = append(append([]string(nil), files...), index)
	}
	store, err := market.LoadCSVDir(cfg.Data.Dir, files)
	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	tickers, err := scanTickers(ctx, store, index)
	if err != nil {
		return err
	}
	provider := strategy.NewUniverse(store, cfg.StrategyTable(), log, strategy.WithTickers(tickers))

	trackerCfg := cfg.Tracker
	if !persist {
		trackerCfg.Backend = "memory"
	}
	book, release, err := tracker.New(ctx, trackerCfg, log)
	if err != nil {
		return fmt.Errorf("open tracker: %w", err)
	}
	defer func() {
		if err := release(); err != nil {
			log.Warn().Err(err).Msg("tracker release failed")
		}
	}()

	runID := uuid.NewString()
	var sinks []ledger.Recorder
	if cfg.Ledger.JSONLPath != "" {
		rec, err := ledger.NewJSONLRecorder(cfg.Ledger.JSONLPath, runID, log)
		if err != nil {
			return fmt.Errorf("open jsonl ledger: %w", err)
		}
		defer rec.Close()
		sinks = append(sinks, rec)
	}

	eng, err := engine.New(*cfg, store, provider, log,
		engine.WithTracker(book),
		engine.WithLedger(ledger.NewLedger(0, sinks...)),
		engine.WithRunID(runID),
	)
	if err != nil {
		return err
	}
	report, err := eng.Run(ctx)
	if err != nil {
		return fmt.Errorf("run backtest: %w", err)
	}

	if cfg.Ledger.CSVPath != "" {
		if err := ledger.WriteCSV(report.Results, cfg.Ledger.CSVPath); err != nil {
			return fmt.Errorf("write csv ledger: %w", err)
		}
		log.Info().Str("path", cfg.Ledger.CSVPath).Msg("csv ledger written")
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d scan dates, %d skipped at capacity\n", report.RunID, len(report.ScanDates), len(report.Skipped))
	if err := ledger.Summarize(report.Results).Render(out); err != nil {
		return err
	}
	acct := report.Account
	fmt.Fprintf(out, "\ncapital %.2f  realized %.2f  equity %.2f  trades %d\n",
		acct.StartingCapital, acct.RealizedPnL, acct.Equity, acct.Trades)
	return nil
}

func applyFlags(cfg *config.Config) {
	if logLevel != "" {
		cfg.App.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.App.LogFormat = logFormat
	}
	if dataDir != "" {
		cfg.Data.Dir = dataDir
	}
	if startDate != "" {
		cfg.Backtest.Start = startDate
	}
	if endDate != "" {
		cfg.Backtest.End = endDate
	}
	if csvOut != "" {
		cfg.Ledger.CSVPath = csvOut
	}
}

// scanTickers lists every loaded ticker except the regime index.
func scanTickers(ctx context.Context, store market.Store, index string) ([]string, error) {
	all, err := store.Tickers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tickers: %w", err)
	}
	out := all[:0]
	for _, t := range all {
		if t != index {
			out = append(out, t)
		}
	}
	return out, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Binary positions inspects and edits the persisted position book.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stockalert-go/internal/config"
	"stockalert-go/internal/signal"
	"stockalert-go/internal/tracker"
	"stockalert-go/internal/util"
)

var (
	configPath string
	openOnly   bool

	ticker      string
	strategyArg string
	dateArg     string
	entryPrice  float64
	stopPrice   float64
	targetPrice float64
)

var rootCmd = &cobra.Command{
	Use:   "positions",
	Short: "Manage the persisted position book",
	Long: `Inspect and edit positions held by the configured tracker backend
(file, postgres or redis). Stops can only be raised.`,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked positions",
	RunE:  runList,
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a new open position",
	Example: `  positions add --ticker AAPL --strategy "EMA Crossover" --date 2024-03-04 \
    --entry 172.5 --stop 165.1 --target 187.3`,
	RunE: runAdd,
}

var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Record the exit date of an open position",
	RunE:  runClose,
}

var raiseStopCmd = &cobra.Command{
	Use:   "raise-stop",
	Short: "Raise the stop of a position open on --date",
	RunE:  runRaiseStop,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/backtest.yaml", "Path to the YAML configuration")
	rootCmd.AddCommand(listCmd, addCmd, closeCmd, raiseStopCmd)

	listCmd.Flags().BoolVar(&openOnly, "open", false, "Only show positions without an exit date")

	addCmd.Flags().StringVar(&ticker, "ticker", "", "Ticker symbol")
	addCmd.Flags().StringVar(&strategyArg, "strategy", "", "Strategy name")
	addCmd.Flags().StringVar(&dateArg, "date", "", "Entry date (YYYY-MM-DD)")
	addCmd.Flags().Float64Var(&entryPrice, "entry", 0, "Entry price")
	addCmd.Flags().Float64Var(&stopPrice, "stop", 0, "Initial stop price")
	addCmd.Flags().Float64Var(&targetPrice, "target", 0, "Target price")

	closeCmd.Flags().StringVar(&ticker, "ticker", "", "Ticker symbol")
	closeCmd.Flags().StringVar(&dateArg, "date", "", "Exit date (YYYY-MM-DD)")

	raiseStopCmd.Flags().StringVar(&ticker, "ticker", "", "Ticker symbol")
	raiseStopCmd.Flags().StringVar(&dateArg, "date", "", "Date the position is open on (YYYY-MM-DD)")
	raiseStopCmd.Flags().Float64Var(&stopPrice, "stop", 0, "New stop price")

	for _, c := range []*cobra.Command{addCmd, closeCmd, raiseStopCmd} {
		_ = c.MarkFlagRequired("ticker")
		_ = c.MarkFlagRequired("date")
	}
	_ = addCmd.MarkFlagRequired("entry")
	_ = addCmd.MarkFlagRequired("stop")
	_ = raiseStopCmd.MarkFlagRequired("stop")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// withTracker opens the configured backend, runs fn and releases the store.
func withTracker(fn func(ctx context.Context, t tracker.Tracker) error) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := util.NewLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	if cfg.Tracker.Backend == "" || cfg.Tracker.Backend == "memory" {
		log.Warn().Msg("memory tracker selected; changes will not persist")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	t, release, err := tracker.New(ctx, cfg.Tracker, log)
	if err != nil {
		return fmt.Errorf("open tracker: %w", err)
	}
	defer closeQuietly(release, log)
	return fn(ctx, t)
}

func closeQuietly(release func() error, log zerolog.Logger) {
	if err := release(); err != nil {
		log.Warn().Err(err).Msg("tracker release failed")
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	return withTracker(func(ctx context.Context, t tracker.Tracker) error {
		positions, err := t.Positions(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TICKER\tSTRATEGY\tENTRY DATE\tENTRY\tSTOP\tTARGET\tEXIT DATE")
		for _, p := range positions {
			if openOnly && p.Closed() {
				continue
			}
			exit := "-"
			if p.Closed() {
				exit = p.ExitDate.Format(signal.DateLayout)
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\t%.2f\t%.2f\t%s\n",
				p.Ticker, p.Strategy, p.EntryDate.Format(signal.DateLayout),
				p.EntryPrice, p.StopPrice, p.TargetPrice, exit)
		}
		return w.Flush()
	})
}

func runAdd(cmd *cobra.Command, _ []string) error {
	entryDate, err := signal.ParseDay(dateArg)
	if err != nil {
		return err
	}
	pos := tracker.Position{
		Ticker:      ticker,
		Strategy:    strategyArg,
		EntryDate:   entryDate,
		EntryPrice:  entryPrice,
		StopPrice:   stopPrice,
		TargetPrice: targetPrice,
	}
	return withTracker(func(ctx context.Context, t tracker.Tracker) error {
		if err := t.Register(ctx, pos); err != nil {
			return fmt.Errorf("register %s: %w", ticker, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "registered %s on %s\n", ticker, dateArg)
		return nil
	})
}

func runClose(cmd *cobra.Command, _ []string) error {
	exitDate, err := signal.ParseDay(dateArg)
	if err != nil {
		return err
	}
	return withTracker(func(ctx context.Context, t tracker.Tracker) error {
		if err := t.Close(ctx, ticker, exitDate); err != nil {
			return fmt.Errorf("close %s: %w", ticker, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "closed %s on %s\n", ticker, dateArg)
		return nil
	})
}

func runRaiseStop(cmd *cobra.Command, _ []string) error {
	asOf, err := signal.ParseDay(dateArg)
	if err != nil {
		return err
	}
	return withTracker(func(ctx context.Context, t tracker.Tracker) error {
		if err := t.RaiseStop(ctx, ticker, asOf, stopPrice); err != nil {
			return fmt.Errorf("raise stop %s: %w", ticker, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "stop for %s raised to %.2f\n", ticker, stopPrice)
		return nil
	})
}

// quantumfolio runs Black-Litterman optimizations from the command line.
//
// Main CLI entrypoint using cobra command framework.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/quantumfolio/internal/config"
	"github.com/aristath/quantumfolio/internal/di"
	"github.com/aristath/quantumfolio/internal/modules/optimization"
	"github.com/aristath/quantumfolio/internal/version"
	"github.com/aristath/quantumfolio/pkg/logger"
)

// Global state set up by the root command
var (
	cfg *config.Config
	log zerolog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "quantumfolio",
	Short: "Black-Litterman portfolio optimization and risk engine",
	Long: `quantumfolio blends market-implied equilibrium returns with investor views,
solves the max-Sharpe long-only portfolio, sweeps the efficient frontier and
reports parametric VaR and CVaR.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		level, _ := cmd.Flags().GetString("log-level")
		if level == "" {
			level = cfg.LogLevel
		}
		// Logs go to stderr so stdout stays parseable
		log = logger.New(logger.Config{Level: level, Pretty: true, Output: os.Stderr})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(backupCmd)
}

// --- Version Command ---

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "quantumfolio %s\n", version.Version)
		fmt.Fprintf(cmd.OutOrStdout(), "  commit:  %s\n", version.Commit)
		fmt.Fprintf(cmd.OutOrStdout(), "  built:   %s\n", version.BuildDate)
	},
}

// --- Run Command ---

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run an optimization",
	Long: `Run an optimization described by a JSON run configuration.

Returns come from a CSV file when --returns is given, otherwise they are built
from the local price history over start_date..end_date, downloading missing
symbols first.

Examples:
  quantumfolio run --config run.json
  quantumfolio run --config run.json --returns returns.csv --output json
  quantumfolio run --config run.json --chart frontier.png`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		returnsPath, _ := cmd.Flags().GetString("returns")
		output, _ := cmd.Flags().GetString("output")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		chartPath, _ := cmd.Flags().GetString("chart")

		render, err := rendererFor(output)
		if err != nil {
			return err
		}

		runCfg, err := config.LoadRunConfig(configPath)
		if err != nil {
			return err
		}

		var series *optimization.ReturnSeries
		if returnsPath != "" {
			rs, err := readReturnsFile(returnsPath)
			if err != nil {
				return err
			}
			series = &rs
		}

		container, err := di.Wire(cfg, log)
		if err != nil {
			return err
		}
		defer container.Close()

		ctx, cancel := commandContext(timeout)
		defer cancel()

		result, err := container.RunService.Execute(ctx, runCfg, series)
		if err != nil {
			return err
		}
		if chartPath != "" {
			if err := writeFrontierChart(chartPath, result); err != nil {
				return err
			}
			log.Info().Str("path", chartPath).Msg("Frontier chart written")
		}
		return render(cmd.OutOrStdout(), result)
	},
}

func init() {
	runCmd.Flags().String("config", "", "run configuration file (JSON)")
	runCmd.Flags().String("returns", "", "CSV of periodic returns, one column per asset")
	runCmd.Flags().String("output", "table", "output format (table, json)")
	runCmd.Flags().String("chart", "", "write the efficient frontier as a PNG to this path")
	runCmd.Flags().Duration("timeout", 5*time.Minute, "abort the run after this long")
	_ = runCmd.MarkFlagRequired("config")
}

// --- Sync Command ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Download daily prices into the local history",
	Long: `Download daily prices from Yahoo Finance into the local history.

Symbols and dates come from a run configuration or from flags.

Examples:
  quantumfolio sync --config run.json
  quantumfolio sync --symbols AAPL,MSFT --start 2023-01-01 --end 2023-12-31`,
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")
		symbolList, _ := cmd.Flags().GetString("symbols")
		startFlag, _ := cmd.Flags().GetString("start")
		endFlag, _ := cmd.Flags().GetString("end")

		symbols, start, end, err := syncTargets(configPath, symbolList, startFlag, endFlag)
		if err != nil {
			return err
		}

		container, err := di.Wire(cfg, log)
		if err != nil {
			return err
		}
		defer container.Close()

		ctx, cancel := commandContext(10 * time.Minute)
		defer cancel()

		report, err := container.SyncService.SyncPrices(ctx, symbols, start, end)
		if err != nil {
			return err
		}
		return renderSyncReport(cmd.OutOrStdout(), report)
	},
}

func init() {
	syncCmd.Flags().String("config", "", "run configuration file providing assets and dates")
	syncCmd.Flags().String("symbols", "", "comma-separated symbols")
	syncCmd.Flags().String("start", "", "first date (YYYY-MM-DD)")
	syncCmd.Flags().String("end", "", "last date (YYYY-MM-DD)")
}

// syncTargets resolves symbols and dates, letting flags override the config
func syncTargets(configPath, symbolList, startFlag, endFlag string) ([]string, time.Time, time.Time, error) {
	var (
		symbols    []string
		start, end time.Time
	)
	if configPath != "" {
		runCfg, err := config.LoadRunConfig(configPath)
		if err != nil {
			return nil, start, end, err
		}
		symbols = runCfg.Assets
		if start, end, err = runCfg.DateRange(); err != nil {
			return nil, start, end, err
		}
	}

	if symbolList != "" {
		symbols = nil
		for _, s := range strings.Split(symbolList, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, strings.ToUpper(s))
			}
		}
	}
	var err error
	if startFlag != "" {
		if start, err = time.Parse(config.DateLayout, startFlag); err != nil {
			return nil, start, end, fmt.Errorf("invalid --start: %w", err)
		}
	}
	if endFlag != "" {
		if end, err = time.Parse(config.DateLayout, endFlag); err != nil {
			return nil, start, end, fmt.Errorf("invalid --end: %w", err)
		}
	}

	if len(symbols) == 0 {
		return nil, start, end, fmt.Errorf("no symbols: use --config or --symbols")
	}
	if start.IsZero() || end.IsZero() {
		return nil, start, end, fmt.Errorf("start and end dates are required")
	}
	return symbols, start, end, nil
}

// --- Runs Command ---

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect stored runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		container, err := di.Wire(cfg, log)
		if err != nil {
			return err
		}
		defer container.Close()

		runs, err := container.RunRepo.List(limit)
		if err != nil {
			return err
		}
		return renderRunList(cmd.OutOrStdout(), runs)
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show a stored run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		render, err := rendererFor(output)
		if err != nil {
			return err
		}

		container, err := di.Wire(cfg, log)
		if err != nil {
			return err
		}
		defer container.Close()

		result, err := container.RunRepo.Get(args[0])
		if err != nil {
			return err
		}
		return render(cmd.OutOrStdout(), result)
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs")
	runsShowCmd.Flags().String("output", "table", "output format (table, json)")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

// --- Backup Command ---

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Upload a database backup to R2 and rotate old ones",
	RunE: func(cmd *cobra.Command, args []string) error {
		container, err := di.Wire(cfg, log)
		if err != nil {
			return err
		}
		defer container.Close()

		if container.BackupService == nil {
			return fmt.Errorf("archive is not configured: set QF_ARCHIVE_* variables")
		}

		ctx, cancel := commandContext(10 * time.Minute)
		defer cancel()

		key, err := container.BackupService.CreateAndUploadBackup(ctx)
		if err != nil {
			return err
		}
		deleted, err := container.BackupService.RotateOldBackups(ctx, cfg.Archive.RetentionDays)
		if err != nil {
			log.Warn().Err(err).Msg("Backup rotation failed")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "uploaded %s (%d old backups removed)\n", key, deleted)
		return nil
	},
}

// commandContext is cancelled on SIGINT/SIGTERM or after timeout
func commandContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func readReturnsFile(path string) (optimization.ReturnSeries, error) {
	f, err := os.Open(path)
	if err != nil {
		return optimization.ReturnSeries{}, fmt.Errorf("failed to open returns file: %w", err)
	}
	defer f.Close()
	return optimization.ReadReturnsCSV(f)
}

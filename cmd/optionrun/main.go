package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/optionrun/internal/application"
)

const (
	appName = "OptionRun"
	version = "v1.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     "optionrun",
		Short:   "Risk-controlled short-dated options trading agent",
		Version: version,
		Long: `OptionRun automates the lifecycle of short-dated option positions:
it selects a contract from the chain, sizes and submits the order, enforces
volatility and time-based risk limits, and force-liquidates before session close.`,
	}

	var configPath string
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/optionrun.yaml", "Path to YAML configuration")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the trading loop against the configured feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrading(cmd.Context(), configPath, false)
		},
	}

	paperCmd := &cobra.Command{
		Use:   "paper",
		Short: "Run the trading loop with paper execution",
		Long:  "Identical loop and risk controls, but orders fill against the in-memory paper adapter.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrading(cmd.Context(), configPath, true)
		},
	}

	checkCmd := &cobra.Command{
		Use:   "check-config",
		Short: "Load and validate configuration, then print the effective values",
		RunE: func(cmd *cobra.Command, args []string) error {
			return checkConfig(configPath)
		},
	}

	rootCmd.AddCommand(runCmd, paperCmd, checkCmd)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func checkConfig(path string) error {
	cfg, err := application.Load(path)
	if err != nil {
		return err
	}
	fmt.Printf("%s configuration OK\n", appName)
	fmt.Printf("  session:     %s-%s (force close %s, %s)\n",
		cfg.Session.MarketOpen, cfg.Session.MarketClose, cfg.Session.ForceClose, cfg.Session.Timezone)
	fmt.Printf("  vix band:    [%.1f, %.1f]\n", cfg.Risk.MinVIX, cfg.Risk.MaxVIX)
	fmt.Printf("  underlyings: %v\n", cfg.Trading.Underlyings)
	fmt.Printf("  execution:   %d retries @ %s, poll %s x%d\n",
		cfg.Execution.RetryCount, cfg.Execution.RetryDelay, cfg.Execution.PollInterval, cfg.Execution.PollAttempts)
	return nil
}

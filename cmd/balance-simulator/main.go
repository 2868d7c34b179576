// Command balance-simulator runs concurrent debit and credit actors against one account and
// reports whether the final balance and version account for every committed mutation.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/AntonStoeckl/occ-balance-simulator-go/accountstore/sqlengine"
	"github.com/AntonStoeckl/occ-balance-simulator-go/config"
	"github.com/AntonStoeckl/occ-balance-simulator-go/mutation"
	"github.com/AntonStoeckl/occ-balance-simulator-go/simulation"
)

// errRunInconsistent is returned when actors failed or the account does not match the committed mutations.
var errRunInconsistent = errors.New("simulation run is inconsistent")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "balance-simulator: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	cfg, err := config.ParseConfig(flag.NewFlagSet("balance-simulator", flag.ExitOnError), args)
	if err != nil {
		return err
	}

	logger := newLogger(cfg, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetry, err := setupTelemetry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer telemetry.shutdown(logger)

	store, closeStore, err := openStore(ctx, cfg, telemetry)
	if err != nil {
		return err
	}
	defer closeStore()

	if cfg.SeedAccount {
		if err = seedAccount(ctx, store, cfg); err != nil {
			return err
		}
	}

	cache, err := newCache(cfg, telemetry)
	if err != nil {
		return err
	}

	backoff, err := newBackoff(cfg)
	if err != nil {
		return err
	}

	mutator, err := mutation.NewMutator(store, telemetry.mutatorOptions(cfg, cache, backoff)...)
	if err != nil {
		return fmt.Errorf("create mutator: %w", err)
	}

	runner, err := simulation.NewRunner(
		mutator,
		settingsFrom(cfg),
		simulation.WithReader(store),
		simulation.WithLogger(telemetry.logger),
	)
	if err != nil {
		return fmt.Errorf("create runner: %w", err)
	}

	report, err := runner.Run(ctx)
	if err != nil {
		return fmt.Errorf("run simulation: %w", err)
	}

	if err = writeReport(stdout, cfg.OutputFormat, report); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	if report.Failures > 0 || !report.Consistent() {
		return errors.Join(
			errRunInconsistent,
			fmt.Errorf("%d failed actors, consistent=%t", report.Failures, report.Consistent()),
		)
	}

	return nil
}

func newLogger(cfg config.Config, w io.Writer) *slog.Logger {
	options := &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}

	if cfg.LogFormat == config.FormatJSON {
		return slog.New(slog.NewJSONHandler(w, options))
	}

	return slog.New(slog.NewTextHandler(w, options))
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func settingsFrom(cfg config.Config) simulation.Settings {
	return simulation.Settings{
		AccountID:        cfg.AccountID,
		ActorCount:       cfg.ActorCount,
		InitialMagnitude: cfg.InitialMagnitude,
		GrowthMin:        cfg.GrowthMin,
		GrowthMax:        cfg.GrowthMax,
	}
}

func seedAccount(ctx context.Context, store *sqlengine.Store, cfg config.Config) error {
	if err := store.CreateTable(ctx); err != nil {
		return fmt.Errorf("create accounts table: %w", err)
	}

	if err := store.SeedAccount(ctx, cfg.AccountID, cfg.InitialBalance, 0); err != nil {
		return fmt.Errorf("seed account %d: %w", cfg.AccountID, err)
	}

	return nil
}

func writeReport(w io.Writer, format string, report simulation.Report) error {
	if format == config.FormatJSON {
		return report.WriteJSON(w)
	}

	return report.WriteText(w)
}

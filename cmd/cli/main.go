package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	postgresRepo "github.com/tillworks/opsledger/internal/adapter/repository/postgres"
	"github.com/tillworks/opsledger/internal/domain"
	"github.com/tillworks/opsledger/internal/infrastructure/config"
	"github.com/tillworks/opsledger/internal/infrastructure/logger"
	"github.com/tillworks/opsledger/internal/infrastructure/postgres"
)

var migrationsPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "opsledger",
		Short: "opsledger admin tool",
		Long:  `Administrative commands for the opsledger service: migrations and ledger verification.`,
	}

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations",
	}
	migrateCmd.PersistentFlags().StringVar(&migrationsPath, "path", "migrations", "Path to migration files")

	migrateUpCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
			return postgres.MigrateUp(cfg.DatabaseURL, migrationsPath, log)
		},
	}

	migrateDownCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back the last migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			log := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
			return postgres.MigrateDown(cfg.DatabaseURL, migrationsPath, log)
		},
	}

	migrateCmd.AddCommand(migrateUpCmd, migrateDownCmd)

	accountCmd := &cobra.Command{
		Use:   "account",
		Short: "Account operations",
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <account-id>",
		Short: "Verify that replaying an account's events reproduces its snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return verifyAccount(cmd.Context(), args[0])
		},
	}

	accountCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(migrateCmd, accountCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// verifyAccount folds the account's full event stream from scratch and
// compares the result byte for byte against the stored snapshot.
func verifyAccount(ctx context.Context, accountID string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL, 2, 1, cfg.DatabaseTimeout)
	if err != nil {
		return err
	}
	defer pool.Close()

	events := postgresRepo.NewEventRepository(pool)
	snapshots := postgresRepo.NewSnapshotRepository(pool)

	records, err := events.ListByAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("account %s has no events", accountID)
	}

	replayed, err := domain.ReplayAccount(records)
	if err != nil {
		return err
	}

	replayedBytes, err := json.Marshal(replayed)
	if err != nil {
		return err
	}

	snap, err := snapshots.Get(ctx, domain.SnapshotKindAccount, accountID)
	if err != nil {
		return err
	}

	if snap.Version != replayed.Version {
		return fmt.Errorf("version mismatch: snapshot %d, replay %d", snap.Version, replayed.Version)
	}
	if !bytes.Equal(normalizeJSON(snap.State), normalizeJSON(replayedBytes)) {
		return fmt.Errorf("state mismatch: snapshot and replay of %d events differ", len(records))
	}

	fmt.Printf("account %s verified: %d events, version %d, balance %s\n",
		accountID, len(records), replayed.Version, replayed.Balance)
	return nil
}

// normalizeJSON re-encodes a JSON document so key order and whitespace do
// not affect the comparison. jsonb storage does not preserve either.
func normalizeJSON(raw []byte) []byte {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return raw
	}
	out, err := json.Marshal(v)
	if err != nil {
		return raw
	}
	return out
}

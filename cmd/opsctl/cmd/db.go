package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	refreshtoken "opsdash/internal/auth/store/refresh-token"
	"opsdash/internal/platform/config"
	"opsdash/internal/platform/database"
	"opsdash/migrations"
)

var errNoDatabase = errors.New("DATABASE_URL is required")

func openPool(ctx context.Context) (*database.Pool, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	pool, err := database.New(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, errNoDatabase
	}
	return pool, nil
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the embedded schema to DATABASE_URL",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		pool, err := openPool(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		applied, err := migrations.Apply(cmd.Context(), pool.DB())
		if err != nil {
			return err
		}
		for _, name := range applied {
			fmt.Fprintln(cmd.OutOrStdout(), "applied", name)
		}
		return nil
	},
}

var sweepRefreshCmd = &cobra.Command{
	Use:   "sweep-refresh",
	Short: "Delete refresh ledger rows that are past expiry",
	Long: `Runs one sweep of the refresh ledger, the same work the server's
background sweeper does on REFRESH_SWEEP_INTERVAL.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		pool, err := openPool(cmd.Context())
		if err != nil {
			return err
		}
		defer pool.Close()

		n, err := refreshtoken.NewPostgres(pool.DB()).RevokeAllExpired(cmd.Context(), time.Now())
		if err != nil {
			return fmt.Errorf("sweep refresh ledger: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired refresh tokens\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepRefreshCmd)
}

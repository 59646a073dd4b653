package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coverline/coverline/db"
	"github.com/coverline/coverline/internal/database"
	"github.com/coverline/coverline/internal/insurance"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load the starter plan catalog and sales agents",
	Long: `Seed runs pending migrations then inserts the starter insurance plans
and sales agents. Tables that already contain rows are left untouched,
so seeding a populated database is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSeed(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

func runSeed(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger()
	connURL := cfg.PostgresURL()

	if err := db.Migrate(connURL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, cleanup, err := database.NewPool(ctx, connURL)
	if err != nil {
		return err
	}
	defer cleanup()

	if err := insurance.Seed(ctx, pool, logger); err != nil {
		return fmt.Errorf("seeding: %w", err)
	}

	logger.Info("seed complete")
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"auction_scout/migrations"
)

var migrateDown bool

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "drop the schema instead")
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate [--down]",
	Short: "Creates the database schema.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := connectDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		apply := migrations.Up
		if migrateDown {
			apply = migrations.Down
		}

		applied, err := apply(cmd.Context(), db)
		if err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
		logger.Info("migrations applied", "migrations", applied, "down", migrateDown)
		return nil
	},
}

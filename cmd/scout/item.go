package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"auction_scout/internal/service"
	"auction_scout/internal/storage/postgres"
)

func init() {
	itemCmd.AddCommand(itemCorrectBidCmd)
	rootCmd.AddCommand(itemCmd)
}

var itemCmd = &cobra.Command{
	Use:   "item",
	Short: "Administers stored items.",
}

var itemCorrectBidCmd = &cobra.Command{
	Use:   "correct-bid <auction-id> <amount>",
	Short: "Overwrites an item's current bid, lower values included. No bid history is written.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		bid, err := decimal.NewFromString(args[1])
		if err != nil {
			return fmt.Errorf("invalid amount %q", args[1])
		}

		db, err := connectDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		reconciler := service.NewReconciler(postgres.NewItemStore(db), postgres.NewBidHistoryStore(db), logger)
		_, err = reconciler.CorrectBid(cmd.Context(), args[0], bid)
		return err
	},
}

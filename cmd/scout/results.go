package main

import (
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"auction_scout/internal/report"
	"auction_scout/internal/storage/postgres"
)

var (
	resultsMinMargin float64
	resultsLimit     int
	resultsCSV       bool

	historyCSV bool

	sessionsLimit int
)

func init() {
	resultsCmd.Flags().Float64Var(&resultsMinMargin, "min-margin", -1, "only items whose margin is at least this percentage")
	resultsCmd.Flags().IntVar(&resultsLimit, "limit", 50, "maximum rows, 0 for all")
	resultsCmd.Flags().BoolVar(&resultsCSV, "csv", false, "write CSV instead of a table")

	historyCmd.Flags().BoolVar(&historyCSV, "csv", false, "write CSV instead of a table")

	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "number of sessions")

	rootCmd.AddCommand(resultsCmd, historyCmd, sessionsCmd)
}

func outputFormat(csv bool) report.Format {
	if csv {
		return report.FormatCSV
	}
	return report.FormatTable
}

var resultsCmd = &cobra.Command{
	Use:   "results [--min-margin <pct>] [--limit <n>] [--csv]",
	Short: "Lists active items by their latest profit margin, best first.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := connectDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		filter := postgres.RankedFilter{Limit: resultsLimit}
		if resultsMinMargin >= 0 {
			filter.MinMargin = decimal.NewNullDecimal(decimal.NewFromFloat(resultsMinMargin).Div(decimal.NewFromInt(100)))
		}

		ranked, err := postgres.NewProfitAnalysisStore(db).Ranked(cmd.Context(), filter)
		if err != nil {
			return fmt.Errorf("list ranked items: %w", err)
		}

		report.Ranked(os.Stdout, ranked, outputFormat(resultsCSV))
		return nil
	},
}

var historyCmd = &cobra.Command{
	Use:   "history <auction-id> [--csv]",
	Short: "Prints the recorded bid history of an auction.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := connectDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		entries, err := postgres.NewBidHistoryStore(db).ListByAuction(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("list bid history: %w", err)
		}
		if len(entries) == 0 {
			return fmt.Errorf("no bid history for auction %s", args[0])
		}

		report.BidHistory(os.Stdout, entries, outputFormat(historyCSV))
		return nil
	},
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions [--limit <n>]",
	Short: "Lists recent scrape sessions.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := connectDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		sessions, err := postgres.NewSessionStore(db).Recent(cmd.Context(), sessionsLimit)
		if err != nil {
			return fmt.Errorf("list sessions: %w", err)
		}

		report.Sessions(os.Stdout, sessions, report.FormatTable)
		return nil
	},
}

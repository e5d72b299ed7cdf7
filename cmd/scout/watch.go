package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"auction_scout/internal/domain"
	"auction_scout/internal/report"
	"auction_scout/internal/storage/postgres"
)

var (
	watchCategory  string
	watchMinProfit float64
	watchMaxBid    float64
	watchAll       bool
)

func init() {
	watchAddCmd.Flags().StringVar(&watchCategory, "category", "", "only match listings in this category")
	watchAddCmd.Flags().Float64Var(&watchMinProfit, "min-profit", domain.DefaultMinProfitThreshold, "alert threshold as a margin percentage")
	watchAddCmd.Flags().Float64Var(&watchMaxBid, "max-bid", 0, "only match listings bid at or below this amount")

	watchListCmd.Flags().BoolVar(&watchAll, "all", false, "include disabled rules")

	watchCmd.AddCommand(watchAddCmd, watchListCmd, watchEnableCmd, watchDisableCmd, watchSeedCmd)
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manages watchlist rules.",
}

var watchAddCmd = &cobra.Command{
	Use:   "add <keyword> [--category <c>] [--min-profit <pct>] [--max-bid <amount>]",
	Short: "Adds a watch rule.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyword := strings.TrimSpace(args[0])
		if keyword == "" {
			return fmt.Errorf("keyword must not be empty")
		}
		if watchMinProfit < 0 || watchMaxBid < 0 {
			return fmt.Errorf("thresholds must not be negative")
		}

		rule := domain.NewWatchRule(keyword)
		rule.MinProfitThreshold = decimal.NewFromFloat(watchMinProfit)
		if watchCategory != "" {
			rule.Category = &watchCategory
		}
		if cmd.Flags().Changed("max-bid") {
			rule.MaxBidAmount = decimal.NewNullDecimal(decimal.NewFromFloat(watchMaxBid))
		}

		db, err := connectDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		id, err := postgres.NewWatchlistStore(db).Add(cmd.Context(), &rule)
		if err != nil {
			return fmt.Errorf("add watch rule: %w", err)
		}
		logger.Info("watch rule added", "watch_id", id, "keyword", keyword)
		return nil
	},
}

var watchListCmd = &cobra.Command{
	Use:   "list [--all]",
	Short: "Lists watch rules in evaluation order.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := connectDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		store := postgres.NewWatchlistStore(db)
		var rules []domain.WatchRule
		if watchAll {
			rules, err = store.List(cmd.Context())
		} else {
			rules, err = store.ListActive(cmd.Context())
		}
		if err != nil {
			return fmt.Errorf("list watch rules: %w", err)
		}

		report.WatchRules(os.Stdout, rules, report.FormatTable)
		return nil
	},
}

var watchEnableCmd = &cobra.Command{
	Use:   "enable <watch-id>",
	Short: "Re-enables a watch rule.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setWatchActive(cmd, args[0], true)
	},
}

var watchDisableCmd = &cobra.Command{
	Use:   "disable <watch-id>",
	Short: "Disables a watch rule without deleting it.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return setWatchActive(cmd, args[0], false)
	},
}

func setWatchActive(cmd *cobra.Command, arg string, active bool) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid watch id %q", arg)
	}

	db, err := connectDB(cmd.Context())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.NewWatchlistStore(db).SetActive(cmd.Context(), id, active); err != nil {
		return fmt.Errorf("update watch rule %d: %w", id, err)
	}
	logger.Info("watch rule updated", "watch_id", id, "active", active)
	return nil
}

var watchSeedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Adds the configured seed keywords that are not on the watchlist yet.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := connectDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		added, err := postgres.NewWatchlistStore(db).Seed(cmd.Context(), cfg.Watch.SeedKeywords)
		if err != nil {
			return fmt.Errorf("seed watchlist: %w", err)
		}
		logger.Info("watchlist seeded", "added", len(added), "keywords", added)
		return nil
	},
}

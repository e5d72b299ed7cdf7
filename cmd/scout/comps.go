package main

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"auction_scout/internal/domain"
	"auction_scout/internal/storage/postgres"
)

var (
	compPlatform   string
	compURL        string
	compDate       string
	compConfidence float64
)

func init() {
	compsAddCmd.Flags().StringVar(&compPlatform, "platform", "ebay", "resale platform of the sale")
	compsAddCmd.Flags().StringVar(&compURL, "url", "", "listing url of the sale")
	compsAddCmd.Flags().StringVar(&compDate, "date", "", "sale date, YYYY-MM-DD")
	compsAddCmd.Flags().Float64Var(&compConfidence, "confidence", 0.8, "how comparable the sale is, 0 to 1")

	compsCmd.AddCommand(compsAddCmd)
	rootCmd.AddCommand(compsCmd)
}

var compsCmd = &cobra.Command{
	Use:   "comps",
	Short: "Manages comparable sales used for valuation.",
}

var compsAddCmd = &cobra.Command{
	Use:   "add <auction-id> <sale-price>",
	Short: "Records a comparable sale for an item.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		price, err := decimal.NewFromString(args[1])
		if err != nil || price.IsNegative() {
			return fmt.Errorf("invalid sale price %q", args[1])
		}
		if compConfidence < 0 || compConfidence > 1 {
			return fmt.Errorf("confidence must be between 0 and 1")
		}

		sale := domain.ComparableSale{
			Platform:        compPlatform,
			SalePrice:       price.Round(2),
			ListingURL:      compURL,
			ConfidenceScore: compConfidence,
			CreatedAt:       time.Now(),
		}
		if compDate != "" {
			date, err := time.Parse(time.DateOnly, compDate)
			if err != nil {
				return fmt.Errorf("invalid sale date: %w", err)
			}
			sale.SaleDate = &date
		}

		db, err := connectDB(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		item, err := postgres.NewItemStore(db).GetByAuctionID(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("get item: %w", err)
		}
		if item == nil {
			return fmt.Errorf("auction %s: %w", args[0], domain.ErrNotFound)
		}
		sale.ItemID = item.ID

		id, err := postgres.NewComparableSaleStore(db).Add(cmd.Context(), &sale)
		if err != nil {
			return fmt.Errorf("add comparable sale: %w", err)
		}
		logger.Info("comparable sale added", "sale_id", id, "auction_id", args[0], "price", sale.SalePrice.StringFixed(2))
		return nil
	},
}

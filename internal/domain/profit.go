package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Recommendation string

const (
	RecommendSkip      Recommendation = "skip"
	RecommendBid       Recommendation = "bid"
	RecommendStrongBuy Recommendation = "strong buy"
)

// Valuation is an estimated resale value and how much to trust it.
type Valuation struct {
	Value      decimal.Decimal
	Confidence float64
	Source     string
}

type ProfitAnalysis struct {
	ID              int64               `db:"analysis_id"`
	ItemID          int64               `db:"item_id"`
	EstimatedValue  decimal.Decimal     `db:"estimated_value"`
	CurrentBid      decimal.Decimal     `db:"current_bid"`
	NetProceeds     decimal.Decimal     `db:"-"`
	PotentialProfit decimal.Decimal     `db:"potential_profit"`
	ProfitMargin    decimal.NullDecimal `db:"profit_margin"`
	ConfidenceScore float64             `db:"confidence_score"`
	Recommendation  Recommendation      `db:"recommendation"`
	AnalysisDate    time.Time           `db:"analysis_date"`
}

// Actionable reports whether the recommendation is to place a bid.
func (p ProfitAnalysis) Actionable() bool {
	return p.Recommendation == RecommendBid || p.Recommendation == RecommendStrongBuy
}

// ComparableSale is an observed sale price for an item on a resale platform.
type ComparableSale struct {
	ID              int64           `db:"sale_id"`
	ItemID          int64           `db:"item_id"`
	Platform        string          `db:"platform"`
	SalePrice       decimal.Decimal `db:"sale_price"`
	SaleDate        *time.Time      `db:"sale_date"`
	ListingURL      string          `db:"listing_url"`
	ConfidenceScore float64         `db:"confidence_score"`
	CreatedAt       time.Time       `db:"created_at"`
}

// RankedItem is one row of the recommendation review: an active item with its latest analysis.
type RankedItem struct {
	ItemID          int64               `db:"item_id"`
	AuctionID       string              `db:"auction_id"`
	Title           string              `db:"title"`
	AuctionURL      string              `db:"auction_url"`
	AuctionEnd      time.Time           `db:"auction_end"`
	CurrentBid      decimal.Decimal     `db:"current_bid"`
	EstimatedValue  decimal.Decimal     `db:"estimated_value"`
	PotentialProfit decimal.Decimal     `db:"potential_profit"`
	ProfitMargin    decimal.NullDecimal `db:"profit_margin"`
	ConfidenceScore float64             `db:"confidence_score"`
	Recommendation  Recommendation      `db:"recommendation"`
	AnalysisDate    time.Time           `db:"analysis_date"`
}

type AlertKind string

const (
	// AlertMatch is raised when a flagged listing is estimated worth a bid.
	AlertMatch AlertKind = "match"
	// AlertUrgent is raised for a profitable item close to its auction end.
	AlertUrgent AlertKind = "urgent"
)

// Alert announces an item worth bidding on.
type Alert struct {
	Kind     AlertKind
	Item     Item
	Analysis ProfitAnalysis
	Keywords []string
}

// NewUrgentAlert builds an urgent alert from a ranked row.
func NewUrgentAlert(r RankedItem) *Alert {
	return &Alert{
		Kind: AlertUrgent,
		Item: Item{
			ID:         r.ItemID,
			AuctionID:  r.AuctionID,
			Title:      r.Title,
			AuctionURL: r.AuctionURL,
			AuctionEnd: r.AuctionEnd,
			CurrentBid: r.CurrentBid,
			IsActive:   true,
		},
		Analysis: ProfitAnalysis{
			ItemID:          r.ItemID,
			EstimatedValue:  r.EstimatedValue,
			CurrentBid:      r.CurrentBid,
			PotentialProfit: r.PotentialProfit,
			ProfitMargin:    r.ProfitMargin,
			ConfidenceScore: r.ConfidenceScore,
			Recommendation:  r.Recommendation,
			AnalysisDate:    r.AnalysisDate,
		},
	}
}

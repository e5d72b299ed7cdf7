package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMinProfitThreshold is the percent margin a new watch rule asks for.
const DefaultMinProfitThreshold = 50.0

type WatchRule struct {
	ID                 int64               `db:"watch_id"`
	Keyword            string              `db:"keyword"`
	Category           *string             `db:"category"`
	MinProfitThreshold decimal.Decimal     `db:"min_profit_threshold"`
	MaxBidAmount       decimal.NullDecimal `db:"max_bid_amount"`
	IsActive           bool                `db:"is_active"`
	CreatedAt          time.Time           `db:"created_at"`
}

func NewWatchRule(keyword string) WatchRule {
	return WatchRule{
		Keyword:            keyword,
		MinProfitThreshold: decimal.NewFromFloat(DefaultMinProfitThreshold),
		IsActive:           true,
	}
}

// MatchResult is the matcher's verdict for one listing.
type MatchResult struct {
	MatchedRules []WatchRule
	IsRedFlagged bool
	RedFlags     []string
}

// Flagged reports whether the listing counts as a positive watchlist hit.
func (m MatchResult) Flagged() bool {
	return !m.IsRedFlagged && len(m.MatchedRules) > 0
}

// Keywords lists the keywords of the matched rules in match order.
func (m MatchResult) Keywords() []string {
	out := make([]string, 0, len(m.MatchedRules))
	for _, r := range m.MatchedRules {
		out = append(out, r.Keyword)
	}
	return out
}

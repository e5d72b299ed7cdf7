package valuation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/shopspring/decimal"

	"auction_scout/internal/domain"
)

const (
	SourceHeuristic   = "heuristic"
	SourceComparables = "comparables"
)

// Heuristic values a listing as a multiple of its current bid, never below Floor.
// Its confidence is a fixed low score.
type Heuristic struct {
	Multiplier decimal.Decimal
	Floor      decimal.Decimal
	Confidence float64
}

func DefaultHeuristic() Heuristic {
	return Heuristic{
		Multiplier: decimal.RequireFromString("2.5"),
		Floor:      decimal.Zero,
		Confidence: 0.1,
	}
}

func (h Heuristic) Value(_ context.Context, _ int64, rec domain.ListingRecord) (domain.Valuation, error) {
	return domain.Valuation{
		Value:      decimal.Max(rec.CurrentBid.Mul(h.Multiplier), h.Floor).Round(moneyPlaces),
		Confidence: h.Confidence,
		Source:     SourceHeuristic,
	}, nil
}

type SaleLister interface {
	ListByItem(ctx context.Context, itemID int64) ([]domain.ComparableSale, error)
}

type fallbackValuer interface {
	Value(ctx context.Context, itemID int64, rec domain.ListingRecord) (domain.Valuation, error)
}

type cachedValuation struct {
	valuation domain.Valuation
	timestamp time.Time
}

// Comparables values an item at the median of its recorded comparable sales and
// falls back to another valuer when none exist. Results are cached per item.
type Comparables struct {
	sales       SaleLister
	fallback    fallbackValuer
	cache       *lru.Cache
	cacheExpiry time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

func NewComparables(sales SaleLister, fallback fallbackValuer, cacheSize int, cacheExpiry time.Duration, logger *slog.Logger) (*Comparables, error) {
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create valuation cache: %w", err)
	}
	return &Comparables{
		sales:       sales,
		fallback:    fallback,
		cache:       cache,
		cacheExpiry: cacheExpiry,
		logger:      logger,
		now:         time.Now,
	}, nil
}

func (c *Comparables) Value(ctx context.Context, itemID int64, rec domain.ListingRecord) (domain.Valuation, error) {
	if cached, ok := c.cache.Get(itemID); ok {
		if v, ok := cached.(cachedValuation); ok && c.now().Sub(v.timestamp) < c.cacheExpiry {
			return v.valuation, nil
		}
	}

	sales, err := c.sales.ListByItem(ctx, itemID)
	if err != nil {
		return domain.Valuation{}, fmt.Errorf("list comparable sales: %w", err)
	}

	if len(sales) == 0 {
		return c.fallback.Value(ctx, itemID, rec)
	}

	v := valueFromSales(sales)
	c.cache.Add(itemID, cachedValuation{valuation: v, timestamp: c.now()})

	c.logger.Debug("valued from comparable sales",
		"item_id", itemID,
		"sales", len(sales),
		"value", v.Value.StringFixed(moneyPlaces),
	)

	return v, nil
}

func valueFromSales(sales []domain.ComparableSale) domain.Valuation {
	prices := make([]decimal.Decimal, 0, len(sales))
	var confidence float64
	for _, s := range sales {
		prices = append(prices, s.SalePrice)
		confidence += s.ConfidenceScore
	}
	slices.SortFunc(prices, func(a, b decimal.Decimal) int { return a.Cmp(b) })

	var median decimal.Decimal
	mid := len(prices) / 2
	if len(prices)%2 == 1 {
		median = prices[mid]
	} else {
		median = prices[mid-1].Add(prices[mid]).Div(decimal.NewFromInt(2))
	}

	return domain.Valuation{
		Value:      median.Round(moneyPlaces),
		Confidence: clamp(confidence/float64(len(sales)), 0, 1),
		Source:     SourceComparables,
	}
}

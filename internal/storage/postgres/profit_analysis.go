package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"auction_scout/internal/domain"
)

type ProfitAnalysisStore struct {
	db *sqlx.DB
}

func NewProfitAnalysisStore(db *sqlx.DB) *ProfitAnalysisStore {
	return &ProfitAnalysisStore{db: db}
}

func (s *ProfitAnalysisStore) Insert(ctx context.Context, a *domain.ProfitAnalysis) (int64, error) {
	query := `
		INSERT INTO profit_analysis (item_id, estimated_value, current_bid, potential_profit,
			profit_margin, confidence_score, recommendation, analysis_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING analysis_id
	`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		a.ItemID,
		a.EstimatedValue,
		a.CurrentBid,
		a.PotentialProfit,
		a.ProfitMargin,
		a.ConfidenceScore,
		a.Recommendation,
		a.AnalysisDate,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// LatestByItem returns the most recent analysis of an item, or ErrNotFound.
func (s *ProfitAnalysisStore) LatestByItem(ctx context.Context, itemID int64) (*domain.ProfitAnalysis, error) {
	query := `
		SELECT analysis_id, item_id, estimated_value, current_bid, potential_profit,
			profit_margin, confidence_score, recommendation, analysis_date
		FROM profit_analysis
		WHERE item_id = $1
		ORDER BY analysis_date DESC, analysis_id DESC
		LIMIT 1
	`

	var a domain.ProfitAnalysis
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &a, query, itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// latestAnalysisQuery joins every item to its most recent analysis.
const latestAnalysisQuery = `
	SELECT i.item_id, i.auction_id, i.title, i.auction_url, i.auction_end, i.current_bid,
		p.estimated_value, p.potential_profit, p.profit_margin, p.confidence_score,
		p.recommendation, p.analysis_date
	FROM items i
	JOIN LATERAL (
		SELECT *
		FROM profit_analysis pa
		WHERE pa.item_id = i.item_id
		ORDER BY pa.analysis_date DESC, pa.analysis_id DESC
		LIMIT 1
	) p ON true
`

// RankedFilter narrows the recommendation review.
type RankedFilter struct {
	// MinMargin drops items whose margin is below it, or absent, when valid.
	MinMargin decimal.NullDecimal
	// Limit of zero means no limit.
	Limit int
}

// Ranked lists active items with their latest analysis, best margin first.
// Items without a computable margin sort last.
func (s *ProfitAnalysisStore) Ranked(ctx context.Context, filter RankedFilter) ([]domain.RankedItem, error) {
	query := latestAnalysisQuery + `
		WHERE i.is_active
	`

	var args []any
	if filter.MinMargin.Valid {
		args = append(args, filter.MinMargin.Decimal)
		query += fmt.Sprintf(" AND p.profit_margin >= $%d", len(args))
	}
	query += " ORDER BY p.profit_margin DESC NULLS LAST, i.auction_end"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	var ranked []domain.RankedItem
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &ranked, query, args...); err != nil {
		return nil, err
	}
	return ranked, nil
}

// EndingSoon lists active items ending in (from, until] whose latest analysis
// recommends a bid with a margin of at least minMargin, soonest first.
func (s *ProfitAnalysisStore) EndingSoon(ctx context.Context, from, until time.Time, minMargin decimal.Decimal) ([]domain.RankedItem, error) {
	query := latestAnalysisQuery + `
		WHERE i.is_active
			AND i.auction_end > $1 AND i.auction_end <= $2
			AND p.recommendation IN ($3, $4)
			AND p.profit_margin >= $5
		ORDER BY i.auction_end, i.item_id
	`

	var items []domain.RankedItem
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &items, query,
		from, until, domain.RecommendBid, domain.RecommendStrongBuy, minMargin)
	if err != nil {
		return nil, err
	}
	return items, nil
}

package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"auction_scout/internal/domain"
)

type WatchlistStore struct {
	db *sqlx.DB
}

func NewWatchlistStore(db *sqlx.DB) *WatchlistStore {
	return &WatchlistStore{db: db}
}

const watchColumns = `watch_id, keyword, category, min_profit_threshold, max_bid_amount, is_active, created_at`

// ListActive returns active rules in creation order.
func (s *WatchlistStore) ListActive(ctx context.Context) ([]domain.WatchRule, error) {
	query := `SELECT ` + watchColumns + ` FROM watchlist WHERE is_active ORDER BY created_at, watch_id`

	var rules []domain.WatchRule
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rules, query); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *WatchlistStore) List(ctx context.Context) ([]domain.WatchRule, error) {
	query := `SELECT ` + watchColumns + ` FROM watchlist ORDER BY created_at, watch_id`

	var rules []domain.WatchRule
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rules, query); err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *WatchlistStore) Add(ctx context.Context, rule *domain.WatchRule) (int64, error) {
	query := `
		INSERT INTO watchlist (keyword, category, min_profit_threshold, max_bid_amount, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING watch_id
	`

	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = time.Now()
	}

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		rule.Keyword,
		rule.Category,
		rule.MinProfitThreshold,
		rule.MaxBidAmount,
		rule.IsActive,
		rule.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	rule.ID = id
	return id, nil
}

func (s *WatchlistStore) SetActive(ctx context.Context, watchID int64, active bool) error {
	query := `UPDATE watchlist SET is_active = $2 WHERE watch_id = $1`
	return execOne(ctx, GetExecutor(ctx, s.db), query, watchID, active)
}

// Seed adds a default rule for every keyword not already on the watchlist.
// Keywords compare case-insensitively. It returns the keywords added.
func (s *WatchlistStore) Seed(ctx context.Context, keywords []string) ([]string, error) {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		lowered = append(lowered, strings.ToLower(strings.TrimSpace(kw)))
	}

	var existing []string
	query := `SELECT lower(keyword) FROM watchlist WHERE lower(keyword) = ANY($1)`
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &existing, query, pq.Array(lowered)); err != nil {
		return nil, fmt.Errorf("list existing keywords: %w", err)
	}

	seen := make(map[string]struct{}, len(existing))
	for _, kw := range existing {
		seen[kw] = struct{}{}
	}

	var added []string
	now := time.Now()
	for i, kw := range keywords {
		if lowered[i] == "" {
			continue
		}
		if _, ok := seen[lowered[i]]; ok {
			continue
		}
		seen[lowered[i]] = struct{}{}

		rule := domain.NewWatchRule(strings.TrimSpace(kw))
		rule.CreatedAt = now.Add(time.Duration(i) * time.Microsecond)
		if _, err := s.Add(ctx, &rule); err != nil {
			return added, fmt.Errorf("add keyword %q: %w", kw, err)
		}
		added = append(added, rule.Keyword)
	}
	return added, nil
}

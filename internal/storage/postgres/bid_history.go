package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"auction_scout/internal/domain"
)

type BidHistoryStore struct {
	db *sqlx.DB
}

func NewBidHistoryStore(db *sqlx.DB) *BidHistoryStore {
	return &BidHistoryStore{db: db}
}

func (s *BidHistoryStore) Append(ctx context.Context, entry *domain.BidHistoryEntry) error {
	query := `
		INSERT INTO bid_history (item_id, bid_amount, recorded_at, bid_count)
		VALUES ($1, $2, $3, $4)
		RETURNING history_id
	`

	return GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		entry.ItemID,
		entry.BidAmount,
		entry.RecordedAt,
		entry.BidCount,
	).Scan(&entry.ID)
}

// ListByAuction returns an item's bid observations, oldest first.
func (s *BidHistoryStore) ListByAuction(ctx context.Context, auctionID string) ([]domain.BidHistoryEntry, error) {
	query := `
		SELECT h.history_id, h.item_id, h.bid_amount, h.recorded_at, h.bid_count
		FROM bid_history h
		JOIN items i ON i.item_id = h.item_id
		WHERE i.auction_id = $1
		ORDER BY h.recorded_at, h.history_id
	`

	var entries []domain.BidHistoryEntry
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &entries, query, auctionID); err != nil {
		return nil, err
	}
	return entries, nil
}

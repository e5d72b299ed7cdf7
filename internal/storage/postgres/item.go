package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"auction_scout/internal/domain"
)

type ItemStore struct {
	db *sqlx.DB
}

func NewItemStore(db *sqlx.DB) *ItemStore {
	return &ItemStore{db: db}
}

const itemColumns = `item_id, auction_id, title, description, category, condition, brand, model,
	current_bid, auction_end, auction_url, is_active, created_at, updated_at`

// GetByAuctionID returns nil, nil when no item has the auction id.
func (s *ItemStore) GetByAuctionID(ctx context.Context, auctionID string) (*domain.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM items WHERE auction_id = $1`

	var item domain.Item
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &item, query, auctionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *ItemStore) Create(ctx context.Context, item *domain.Item) (int64, error) {
	query := `
		INSERT INTO items (auction_id, title, description, category, condition, brand, model,
			current_bid, auction_end, auction_url, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING item_id
	`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		item.AuctionID,
		item.Title,
		item.Description,
		item.Category,
		item.Condition,
		item.Brand,
		item.Model,
		item.CurrentBid,
		item.AuctionEnd,
		item.AuctionURL,
		item.IsActive,
		item.CreatedAt,
		item.UpdatedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (s *ItemStore) UpdateBid(ctx context.Context, itemID int64, bid decimal.Decimal, updatedAt time.Time) error {
	query := `UPDATE items SET current_bid = $2, updated_at = $3 WHERE item_id = $1`
	return execOne(ctx, GetExecutor(ctx, s.db), query, itemID, bid, updatedAt)
}

func (s *ItemStore) Deactivate(ctx context.Context, itemID int64, updatedAt time.Time) error {
	query := `UPDATE items SET is_active = false, updated_at = $2 WHERE item_id = $1`
	return execOne(ctx, GetExecutor(ctx, s.db), query, itemID, updatedAt)
}

// DeactivateExpired marks every active item whose auction has ended as inactive.
func (s *ItemStore) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	query := `UPDATE items SET is_active = false, updated_at = $1 WHERE is_active AND auction_end <= $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// execOne runs a statement that must touch exactly one row.
func execOne(ctx context.Context, ex sqlx.ExtContext, query string, args ...any) error {
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

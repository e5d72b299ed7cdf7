package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"auction_scout/internal/domain"
)

type ComparableSaleStore struct {
	db *sqlx.DB
}

func NewComparableSaleStore(db *sqlx.DB) *ComparableSaleStore {
	return &ComparableSaleStore{db: db}
}

func (s *ComparableSaleStore) ListByItem(ctx context.Context, itemID int64) ([]domain.ComparableSale, error) {
	query := `
		SELECT sale_id, item_id, platform, sale_price, sale_date, listing_url, confidence_score, created_at
		FROM comparable_sales
		WHERE item_id = $1
		ORDER BY created_at, sale_id
	`

	var sales []domain.ComparableSale
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &sales, query, itemID); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *ComparableSaleStore) Add(ctx context.Context, sale *domain.ComparableSale) (int64, error) {
	query := `
		INSERT INTO comparable_sales (item_id, platform, sale_price, sale_date, listing_url, confidence_score, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING sale_id
	`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		sale.ItemID,
		sale.Platform,
		sale.SalePrice,
		sale.SaleDate,
		sale.ListingURL,
		sale.ConfidenceScore,
		sale.CreatedAt,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	sale.ID = id
	return id, nil
}

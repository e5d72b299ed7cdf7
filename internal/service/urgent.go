package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"auction_scout/internal/domain"
)

// UrgentService finds profitable items whose auctions end soon and announces
// them, most urgent first.
type UrgentService struct {
	store     UrgentStore
	publisher Publisher
	within    time.Duration
	minMargin decimal.Decimal
	logger    *slog.Logger
	now       func() time.Time
}

// NewUrgentService reports items ending within the given window whose margin,
// as a percentage, is at least minPercentage. A nil publisher only logs.
func NewUrgentService(store UrgentStore, publisher Publisher, within time.Duration, minPercentage float64, logger *slog.Logger) *UrgentService {
	return &UrgentService{
		store:     store,
		publisher: publisher,
		within:    within,
		minMargin: decimal.NewFromFloat(minPercentage).Div(hundred),
		logger:    logger.With("component", "urgent"),
		now:       time.Now,
	}
}

// Check lists the urgent items and publishes an alert for each. Publishing
// continues past individual failures.
func (s *UrgentService) Check(ctx context.Context) ([]domain.RankedItem, error) {
	now := s.now()
	items, err := s.store.EndingSoon(ctx, now, now.Add(s.within), s.minMargin)
	if err != nil {
		return nil, &domain.StoreError{Op: "list urgent items", Err: err}
	}

	if len(items) == 0 {
		s.logger.Info("no urgent items found", "within", s.within)
		return nil, nil
	}

	first := items[0]
	s.logger.Info("found urgent items",
		"count", len(items),
		"most_urgent", first.AuctionID,
		"ends_in", first.AuctionEnd.Sub(now).Round(time.Minute),
	)

	if s.publisher == nil {
		return items, nil
	}

	var failed int
	var lastErr error
	for _, item := range items {
		if err := s.publisher.Publish(ctx, domain.NewUrgentAlert(item)); err != nil {
			failed++
			lastErr = err
			s.logger.Error("failed to publish urgent alert", "auction_id", item.AuctionID, "error", err)
		}
	}
	if failed > 0 {
		return items, fmt.Errorf("publish %d of %d urgent alerts: %w", failed, len(items), lastErr)
	}
	return items, nil
}

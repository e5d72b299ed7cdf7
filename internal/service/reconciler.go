package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"auction_scout/internal/domain"
)

// Reconciler merges parsed listings into stored items. It is the only writer of
// bid history, so the non-decreasing bid rule is enforced here.
type Reconciler struct {
	items   ItemStore
	history BidHistoryStore
	logger  *slog.Logger
	now     func() time.Time
}

func NewReconciler(items ItemStore, history BidHistoryStore, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		items:   items,
		history: history,
		logger:  logger,
		now:     time.Now,
	}
}

// Reconcile creates, updates or deactivates the item for rec. Callers wrap it in
// a transaction, store failures come back as *domain.StoreError and are not retried.
func (r *Reconciler) Reconcile(ctx context.Context, rec domain.ListingRecord) (domain.ReconcileResult, error) {
	now := r.now()

	existing, err := r.items.GetByAuctionID(ctx, rec.AuctionID)
	if err != nil {
		return domain.ReconcileResult{}, &domain.StoreError{Op: "get item", Err: err}
	}

	if existing == nil {
		return r.create(ctx, rec, now)
	}

	result := domain.ReconcileResult{ItemID: existing.ID, Kind: domain.ChangeUnchanged}

	switch rec.CurrentBid.Cmp(existing.CurrentBid) {
	case 1:
		if err := r.items.UpdateBid(ctx, existing.ID, rec.CurrentBid, now); err != nil {
			return domain.ReconcileResult{}, &domain.StoreError{Op: "update bid", Err: err}
		}
		if err := r.appendHistory(ctx, existing.ID, rec, now); err != nil {
			return domain.ReconcileResult{}, err
		}
		result.Kind = domain.ChangeBidUpdated
		result.BidChanged = true
	case -1:
		r.logger.Warn("ignoring lower bid",
			"auction_id", rec.AuctionID,
			"stored_bid", existing.CurrentBid.StringFixed(2),
			"observed_bid", rec.CurrentBid.StringFixed(2),
		)
	}

	if existing.IsActive && (!rec.IsActive || rec.Ended(now)) {
		if err := r.items.Deactivate(ctx, existing.ID, now); err != nil {
			return domain.ReconcileResult{}, &domain.StoreError{Op: "deactivate item", Err: err}
		}
		result.Kind = domain.ChangeDeactivated
	}

	return result, nil
}

func (r *Reconciler) create(ctx context.Context, rec domain.ListingRecord, now time.Time) (domain.ReconcileResult, error) {
	item := domain.NewItem(rec, now)

	id, err := r.items.Create(ctx, item)
	if err != nil {
		return domain.ReconcileResult{}, &domain.StoreError{Op: "create item", Err: err}
	}

	if err := r.appendHistory(ctx, id, rec, now); err != nil {
		return domain.ReconcileResult{}, err
	}

	return domain.ReconcileResult{ItemID: id, Kind: domain.ChangeCreated, BidChanged: true}, nil
}

func (r *Reconciler) appendHistory(ctx context.Context, itemID int64, rec domain.ListingRecord, now time.Time) error {
	entry := &domain.BidHistoryEntry{
		ItemID:     itemID,
		BidAmount:  rec.CurrentBid,
		RecordedAt: now,
		BidCount:   rec.BidCount,
	}
	if err := r.history.Append(ctx, entry); err != nil {
		return &domain.StoreError{Op: "append bid history", Err: err}
	}
	return nil
}

// CorrectBid overwrites an item's stored bid, including lowering it. It is the
// explicit correction path and leaves bid history untouched.
func (r *Reconciler) CorrectBid(ctx context.Context, auctionID string, bid decimal.Decimal) (*domain.Item, error) {
	if bid.IsNegative() {
		return nil, fmt.Errorf("bid must not be negative: %s", bid)
	}

	item, err := r.items.GetByAuctionID(ctx, auctionID)
	if err != nil {
		return nil, &domain.StoreError{Op: "get item", Err: err}
	}
	if item == nil {
		return nil, fmt.Errorf("auction %s: %w", auctionID, domain.ErrNotFound)
	}

	now := r.now()
	if err := r.items.UpdateBid(ctx, item.ID, bid, now); err != nil {
		return nil, &domain.StoreError{Op: "update bid", Err: err}
	}

	r.logger.Info("bid corrected",
		"auction_id", auctionID,
		"from", item.CurrentBid.StringFixed(2),
		"to", bid.StringFixed(2),
	)

	item.CurrentBid = bid
	item.UpdatedAt = now
	return item, nil
}

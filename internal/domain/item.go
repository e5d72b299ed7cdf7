package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ID          int64           `db:"item_id"`
	AuctionID   string          `db:"auction_id"`
	Title       string          `db:"title"`
	Description string          `db:"description"`
	Category    string          `db:"category"`
	Condition   string          `db:"condition"`
	Brand       string          `db:"brand"`
	Model       string          `db:"model"`
	CurrentBid  decimal.Decimal `db:"current_bid"`
	AuctionEnd  time.Time       `db:"auction_end"`
	AuctionURL  string          `db:"auction_url"`
	IsActive    bool            `db:"is_active"`
	CreatedAt   time.Time       `db:"created_at"`
	UpdatedAt   time.Time       `db:"updated_at"`
}

// NewItem builds the durable projection of a freshly seen listing.
// A listing first seen after its end time is stored inactive.
func NewItem(rec ListingRecord, now time.Time) *Item {
	return &Item{
		AuctionID:   rec.AuctionID,
		Title:       rec.Title,
		Description: rec.Description,
		Category:    rec.Category,
		Condition:   rec.Condition,
		Brand:       rec.Brand,
		Model:       rec.Model,
		CurrentBid:  rec.CurrentBid,
		AuctionEnd:  rec.AuctionEnd,
		AuctionURL:  rec.AuctionURL,
		IsActive:    rec.IsActive && !rec.Ended(now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// BidHistoryEntry is an immutable observation of an item's bid.
type BidHistoryEntry struct {
	ID         int64           `db:"history_id"`
	ItemID     int64           `db:"item_id"`
	BidAmount  decimal.Decimal `db:"bid_amount"`
	RecordedAt time.Time       `db:"recorded_at"`
	BidCount   *int            `db:"bid_count"`
}

// ChangeKind classifies what a reconcile call did to an item.
type ChangeKind int

const (
	ChangeUnchanged ChangeKind = iota
	ChangeCreated
	ChangeBidUpdated
	ChangeDeactivated
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeCreated:
		return "created"
	case ChangeBidUpdated:
		return "bid_updated"
	case ChangeDeactivated:
		return "deactivated"
	default:
		return "unchanged"
	}
}

// ReconcileResult reports the outcome of merging one listing into the store.
// BidChanged is set whenever a history entry was appended, including when
// the returned Kind is ChangeDeactivated or ChangeCreated.
type ReconcileResult struct {
	ItemID     int64
	Kind       ChangeKind
	BidChanged bool
}

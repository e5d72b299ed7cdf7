package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"iter"
	"time"

	"github.com/shopspring/decimal"

	"auction_scout/internal/domain"
)

type ItemStore interface {
	// GetByAuctionID returns nil without error when no item has the auction id.
	GetByAuctionID(ctx context.Context, auctionID string) (*domain.Item, error)
	Create(ctx context.Context, item *domain.Item) (int64, error)
	UpdateBid(ctx context.Context, itemID int64, bid decimal.Decimal, updatedAt time.Time) error
	Deactivate(ctx context.Context, itemID int64, updatedAt time.Time) error
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

type BidHistoryStore interface {
	Append(ctx context.Context, entry *domain.BidHistoryEntry) error
}

type ProfitAnalysisStore interface {
	Insert(ctx context.Context, analysis *domain.ProfitAnalysis) (int64, error)
}

type UrgentStore interface {
	// EndingSoon lists active items ending in (from, until] whose latest
	// analysis is actionable with a margin of at least minMargin, soonest first.
	EndingSoon(ctx context.Context, from, until time.Time, minMargin decimal.Decimal) ([]domain.RankedItem, error)
}

type WatchlistStore interface {
	ListActive(ctx context.Context) ([]domain.WatchRule, error)
}

type SessionStore interface {
	Create(ctx context.Context, session *domain.ScrapeSession) (int64, error)
	UpdateCounters(ctx context.Context, sessionID int64, found, flagged int) error
	// Close finalizes an open session. It fails with *domain.InvalidStateError
	// when the session is already closed.
	Close(ctx context.Context, session *domain.ScrapeSession) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Source interface {
	ID() string
	Name() string
	// FetchPage returns domain.ErrNoMorePages past the last page and a
	// *domain.FetchFailure when a page could not be retrieved.
	FetchPage(ctx context.Context, number int) (*domain.RawPage, error)
}

type PageParser interface {
	Parse(page *domain.RawPage) (iter.Seq2[domain.ListingRecord, error], error)
}

type Governor interface {
	AwaitNextSlot(ctx context.Context) error
}

type Valuer interface {
	Value(ctx context.Context, itemID int64, rec domain.ListingRecord) (domain.Valuation, error)
}

type Publisher interface {
	Publish(ctx context.Context, alert *domain.Alert) error
	Close() error
}

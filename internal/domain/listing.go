package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// RawPage is one listing page as delivered by a source.
type RawPage struct {
	URL       string
	Number    int
	Content   string
	FetchedAt time.Time
}

// ListingRecord is a normalized auction listing parsed from a page.
type ListingRecord struct {
	AuctionID   string
	Title       string
	Description string
	Category    string
	Condition   string
	Brand       string
	Model       string
	CurrentBid  decimal.Decimal
	BidCount    *int
	AuctionEnd  time.Time
	AuctionURL  string
	IsActive    bool
}

// Text returns the title and description joined, the haystack used for keyword matching.
func (r ListingRecord) Text() string {
	if r.Description == "" {
		return r.Title
	}
	return strings.Join([]string{r.Title, r.Description}, " ")
}

// Ended reports whether the auction end time is at or before now.
func (r ListingRecord) Ended(now time.Time) bool {
	return !r.AuctionEnd.After(now)
}

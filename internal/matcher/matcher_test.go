package matcher

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction_scout/internal/domain"
	"auction_scout/internal/testutil"
)

var created = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func rule(id int64, keyword string, opts ...func(*domain.WatchRule)) domain.WatchRule {
	r := domain.NewWatchRule(keyword)
	r.ID = id
	r.CreatedAt = created.Add(time.Duration(id) * time.Minute)
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

func withCategory(c string) func(*domain.WatchRule) {
	return func(r *domain.WatchRule) { r.Category = testutil.Ptr(c) }
}

func withMaxBid(v string) func(*domain.WatchRule) {
	return func(r *domain.WatchRule) {
		r.MaxBidAmount = decimal.NewNullDecimal(decimal.RequireFromString(v))
	}
}

func inactive(r *domain.WatchRule) { r.IsActive = false }

func listing(title, description string) domain.ListingRecord {
	return domain.ListingRecord{
		AuctionID:   "1",
		Title:       title,
		Description: description,
		Category:    "Jewelry",
		CurrentBid:  decimal.RequireFromString("40.00"),
	}
}

func TestEvaluate(t *testing.T) {
	m := New([]string{"replica", "damaged", "broken"})

	tests := []struct {
		name         string
		record       domain.ListingRecord
		rules        []domain.WatchRule
		wantKeywords []string
		wantRedFlag  bool
	}{
		{
			name:         "case insensitive keyword in title",
			record:       listing("Sterling SILVER Tray", ""),
			rules:        []domain.WatchRule{rule(1, "sterling silver")},
			wantKeywords: []string{"sterling silver"},
		},
		{
			name:         "keyword in description",
			record:       listing("Serving Tray", "marked sterling silver on base"),
			rules:        []domain.WatchRule{rule(1, "Sterling Silver")},
			wantKeywords: []string{"Sterling Silver"},
		},
		{
			name:         "multiple rules in creation order",
			record:       listing("Vintage turquoise and sterling silver ring", ""),
			rules:        []domain.WatchRule{rule(3, "turquoise"), rule(1, "sterling silver"), rule(2, "gold")},
			wantKeywords: []string{"sterling silver", "turquoise"},
		},
		{
			name:   "inactive rule ignored",
			record: listing("Sterling Silver Tray", ""),
			rules:  []domain.WatchRule{rule(1, "sterling silver", inactive)},
		},
		{
			name:         "category must match",
			record:       listing("Sterling Silver Tray", ""),
			rules:        []domain.WatchRule{rule(1, "sterling silver", withCategory("Coins")), rule(2, "tray", withCategory("jewelry"))},
			wantKeywords: []string{"tray"},
		},
		{
			name:         "bid ceiling",
			record:       listing("Sterling Silver Tray", ""),
			rules:        []domain.WatchRule{rule(1, "sterling silver", withMaxBid("39.99")), rule(2, "tray", withMaxBid("40.00"))},
			wantKeywords: []string{"tray"},
		},
		{
			name:        "red flag vetoes keyword hit",
			record:      listing("Replica Sterling Silver Tray", ""),
			rules:       []domain.WatchRule{rule(1, "sterling silver")},
			wantRedFlag: true,
		},
		{
			name:        "red flag in description",
			record:      listing("Sterling Silver Tray", "handle is broken"),
			rules:       []domain.WatchRule{rule(1, "sterling silver")},
			wantRedFlag: true,
		},
		{
			name:   "empty keyword never matches",
			record: listing("Sterling Silver Tray", ""),
			rules:  []domain.WatchRule{rule(1, "  ")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.Evaluate(tt.record, tt.rules)

			assert.Equal(t, tt.wantRedFlag, got.IsRedFlagged)
			assert.Equal(t, len(tt.wantKeywords) > 0, got.Flagged())
			if len(tt.wantKeywords) == 0 {
				assert.Empty(t, got.MatchedRules)
				return
			}
			assert.Equal(t, tt.wantKeywords, got.Keywords())
		})
	}
}

func TestEvaluate_ReportsRedFlagTerms(t *testing.T) {
	m := New([]string{" Replica ", "damaged", ""})

	got := m.Evaluate(listing("Replica watch, damaged strap", ""), nil)

	require.True(t, got.IsRedFlagged)
	assert.Equal(t, []string{"replica", "damaged"}, got.RedFlags)
	assert.False(t, got.Flagged())
}

func TestEvaluate_DoesNotMutateRules(t *testing.T) {
	m := New(nil)
	rules := []domain.WatchRule{rule(2, "tray"), rule(1, "silver")}

	m.Evaluate(listing("Silver Tray", ""), rules)

	assert.Equal(t, int64(2), rules[0].ID)
	assert.Equal(t, int64(1), rules[1].ID)
}

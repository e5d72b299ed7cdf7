package parser

import (
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auction_scout/internal/domain"
	"auction_scout/internal/testutil"
)

const listingPage = `<html><body>
<div class="lot-list">
  <div class="lot-item" data-lot-id="1001">
    <a href="/item/1001"><h3 class="lot-title">Sterling  Silver
      Tray</h3></a>
    <p class="lot-description">Heavy tray, excellent condition</p>
    <span class="current-bid">$40.00</span>
    <span class="bid-count">3 bids</span>
    <span class="end-time">Ends in 2 days</span>
  </div>
  <div class="lot-item">
    <a href="/item/1002"><h3 class="lot-title">Lot #7 - Brass Lamp</h3></a>
    <span class="end-time">Ends in 1 day</span>
  </div>
  <div class="lot-item closed">
    <a href="https://example.com/lots/1003"><h3 class="lot-title">Vintage Camera</h3></a>
    <span class="current-bid">$1,250.5</span>
    <span class="end-time">2026-10-01 18:00:00</span>
  </div>
</div>
</body></html>`

func collect(seq iter.Seq2[domain.ListingRecord, error]) ([]domain.ListingRecord, []*Warning) {
	var (
		records  []domain.ListingRecord
		warnings []*Warning
	)
	for rec, err := range seq {
		var w *Warning
		if errors.As(err, &w) {
			warnings = append(warnings, w)
			continue
		}
		records = append(records, rec)
	}
	return records, warnings
}

func losAngeles(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Los_Angeles")
	require.NoError(t, err)
	return loc
}

func TestParse_Listings(t *testing.T) {
	loc := losAngeles(t)
	fetchedAt := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	p := New(WithLocation(loc))

	page := &domain.RawPage{
		URL:       "https://example.com/auctions?page=1",
		Number:    1,
		Content:   listingPage,
		FetchedAt: fetchedAt,
	}

	seq, err := p.Parse(page)
	require.NoError(t, err)
	got, warnings := collect(seq)

	want := []domain.ListingRecord{
		{
			AuctionID:   "1001",
			Title:       "Sterling Silver Tray",
			Description: "Heavy tray, excellent condition",
			Condition:   "like new",
			CurrentBid:  decimal.RequireFromString("40.00"),
			BidCount:    testutil.Ptr(3),
			AuctionEnd:  fetchedAt.Add(48 * time.Hour).In(loc),
			AuctionURL:  "https://example.com/item/1001",
			IsActive:    true,
		},
		{
			AuctionID:  "1003",
			Title:      "Vintage Camera",
			Condition:  "unknown",
			CurrentBid: decimal.RequireFromString("1250.50"),
			AuctionEnd: time.Date(2026, 10, 1, 18, 0, 0, 0, loc),
			AuctionURL: "https://example.com/lots/1003",
			IsActive:   false,
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}

	require.Len(t, warnings, 1)
	assert.Equal(t, 1, warnings[0].Index)
	assert.Equal(t, "1002", warnings[0].AuctionID)
	assert.Equal(t, []string{"current_bid"}, warnings[0].Missing)
	assert.Equal(t, page.URL, warnings[0].URL)
}

func TestParse_IsDeterministic(t *testing.T) {
	p := New(WithLocation(losAngeles(t)))
	page := &domain.RawPage{
		URL:       "https://example.com/auctions?page=1",
		Content:   listingPage,
		FetchedAt: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
	}

	first, err := p.Parse(page)
	require.NoError(t, err)
	second, err := p.Parse(page)
	require.NoError(t, err)

	firstRecords, firstWarnings := collect(first)
	secondRecords, secondWarnings := collect(second)
	assert.Len(t, secondWarnings, len(firstWarnings))
	if diff := cmp.Diff(firstRecords, secondRecords); diff != "" {
		t.Errorf("repeated Parse() differs (-first +second):\n%s", diff)
	}
}

func TestParse_StopsWhenConsumerStops(t *testing.T) {
	p := New()
	seq, err := p.Parse(&domain.RawPage{
		URL:       "https://example.com/auctions",
		Content:   listingPage,
		FetchedAt: time.Now(),
	})
	require.NoError(t, err)

	var n int
	for _, err := range seq {
		require.NoError(t, err)
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestParse_EmptyContainer(t *testing.T) {
	p := New()
	seq, err := p.Parse(&domain.RawPage{
		URL:       "https://example.com/auctions?page=9",
		Content:   `<html><body><div class="lot-list"></div></body></html>`,
		FetchedAt: time.Now(),
	})
	require.NoError(t, err)
	records, warnings := collect(seq)
	assert.Empty(t, records)
	assert.Empty(t, warnings)
}

func TestParse_UnrecognizedStructure(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "maintenance page", content: `<html><body><p>Down for maintenance</p></body></html>`},
		{name: "empty body", content: "   "},
	}

	p := New()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Parse(&domain.RawPage{
				URL:       "https://example.com/auctions",
				Content:   tt.content,
				FetchedAt: time.Now(),
			})
			var parseErr *domain.ParseError
			require.True(t, errors.As(err, &parseErr), "expected ParseError, got %v", err)
			assert.Equal(t, "https://example.com/auctions", parseErr.URL)
		})
	}
}

func TestParse_CustomSelectors(t *testing.T) {
	content := `<ul id="catalog">
  <li class="entry" data-id="A-77">
    <span class="name">Griswold Skillet No. 8</span>
    <span class="amount">USD 65</span>
    <span class="deadline">10/20/2026 6:30 PM</span>
  </li>
</ul>`
	sel := DefaultSelectors().Override(Selectors{
		Container: "#catalog",
		Listing:   ".entry",
		Title:     ".name",
		Bid:       ".amount",
		EndTime:   ".deadline",
	})
	loc := losAngeles(t)
	p := New(WithSelectors(sel), WithLocation(loc))

	seq, err := p.Parse(&domain.RawPage{
		URL:       "https://example.com/catalog",
		Content:   content,
		FetchedAt: time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	got, warnings := collect(seq)
	require.Empty(t, warnings)
	require.Len(t, got, 1)
	assert.Equal(t, "A-77", got[0].AuctionID)
	assert.Equal(t, "Griswold Skillet No. 8", got[0].Title)
	assert.True(t, got[0].CurrentBid.Equal(decimal.NewFromInt(65)))
	assert.True(t, got[0].AuctionEnd.Equal(time.Date(2026, 10, 20, 18, 30, 0, 0, loc)))
	assert.True(t, got[0].IsActive)
}

func TestParseEndTime(t *testing.T) {
	loc := losAngeles(t)
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, loc)

	tests := []struct {
		raw       string
		want      time.Time
		wantEnded bool
		wantErr   bool
	}{
		{raw: "Ends in 2 days", want: now.Add(48 * time.Hour)},
		{raw: "2d 4h 30m", want: now.Add(52*time.Hour + 30*time.Minute)},
		{raw: "Time left: 3 hours", want: now.Add(3 * time.Hour)},
		{raw: "1 day and 2 hours left", want: now.Add(26 * time.Hour)},
		{raw: "10/20/2026 6:30 PM", want: time.Date(2026, 10, 20, 18, 30, 0, 0, loc)},
		{raw: "2026-10-20 18:30:00", want: time.Date(2026, 10, 20, 18, 30, 0, 0, loc)},
		{raw: "October 20, 2026 at 6:30 PM", want: time.Date(2026, 10, 20, 18, 30, 0, 0, loc)},
		{raw: "2026-10-20T18:30:00Z", want: time.Date(2026, 10, 20, 18, 30, 0, 0, time.UTC)},
		{raw: "Ended", want: now, wantEnded: true},
		{raw: "soon", wantErr: true},
		{raw: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, ended, err := ParseEndTime(tt.raw, now, loc)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.Equal(t, tt.wantEnded, ended)
		})
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		wantErr bool
	}{
		{raw: "$40.00", want: "40"},
		{raw: "$1,234.567", want: "1234.57"},
		{raw: "USD 15", want: "15"},
		{raw: "Current bid: $0", want: "0"},
		{raw: "no bids yet", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseAmount(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)), "got %s", got)
		})
	}
}

func TestInferCondition(t *testing.T) {
	tests := map[string]string{
		"Brand new in box":          "new",
		"Excellent condition":       "like new",
		"Some wear and tear":        "fair",
		"Gently used, works great":  "good",
		"For parts only":            "poor",
		"Renewal of a classic item": "unknown",
		"Random text":               "unknown",
	}

	for text, want := range tests {
		t.Run(text, func(t *testing.T) {
			assert.Equal(t, want, InferCondition(text))
		})
	}
}

func TestExtractAuctionID(t *testing.T) {
	tests := map[string]string{
		"https://example.com/item/12345":          "12345",
		"https://example.com/auction/9/lot/44":    "44",
		"https://example.com/view?id=777":         "777",
		"https://example.com/silver-tray-321.html": "321",
		"https://example.com/catalog/555/":        "555",
		"https://example.com/about":               "",
	}

	for raw, want := range tests {
		t.Run(raw, func(t *testing.T) {
			assert.Equal(t, want, ExtractAuctionID(raw))
		})
	}
}

func TestExtractAuctionIDIgnoresNumericSlugs(t *testing.T) {
	for _, raw := range []string{
		"https://example.com/catalog/vintage-leica-camera-1958",
		"https://example.com/catalog/ford-pickup-truck-1958/",
	} {
		assert.Empty(t, ExtractAuctionID(raw), raw)
	}
	assert.Equal(t, "88", ExtractAuctionID("https://example.com/oak-desk-88.htm?ref=list"))
}

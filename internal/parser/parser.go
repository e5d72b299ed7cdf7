// Package parser turns rendered auction listing pages into normalized listing records.
package parser

import (
	"fmt"
	"iter"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"auction_scout/internal/domain"
)

const maxTitleLen = 200

// Selectors locate listing fields inside a page. Each may hold a comma separated
// selector group; the first matching element wins.
type Selectors struct {
	Container   string
	Listing     string
	Title       string
	Description string
	Category    string
	Condition   string
	Brand       string
	Model       string
	Bid         string
	BidCount    string
	EndTime     string
	Link        string
	Closed      string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Container:   ".lot-list, .auction-items, .items-grid, #lots",
		Listing:     ".lot-item, .auction-item, .lot",
		Title:       ".lot-title, .item-title, h2, h3, h4",
		Description: ".lot-description, .item-description, .description",
		Category:    ".lot-category, .category",
		Condition:   ".lot-condition, .condition",
		Brand:       ".lot-brand, .brand",
		Model:       ".lot-model, .model",
		Bid:         ".current-bid, .bid-amount, .price",
		BidCount:    ".bid-count, .bids",
		EndTime:     ".end-time, .time-left, .closes",
		Link:        "a[href]",
		Closed:      ".closed, .ended, .sold",
	}
}

// Override returns s with every non-empty field of o applied on top.
func (s Selectors) Override(o Selectors) Selectors {
	pick := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	pick(&s.Container, o.Container)
	pick(&s.Listing, o.Listing)
	pick(&s.Title, o.Title)
	pick(&s.Description, o.Description)
	pick(&s.Category, o.Category)
	pick(&s.Condition, o.Condition)
	pick(&s.Brand, o.Brand)
	pick(&s.Model, o.Model)
	pick(&s.Bid, o.Bid)
	pick(&s.BidCount, o.BidCount)
	pick(&s.EndTime, o.EndTime)
	pick(&s.Link, o.Link)
	pick(&s.Closed, o.Closed)
	return s
}

// Warning describes a listing block that could not be normalized.
type Warning struct {
	URL       string
	Index     int
	AuctionID string
	Missing   []string
	Err       error
}

func (w *Warning) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "listing %d on %s", w.Index, w.URL)
	if w.AuctionID != "" {
		fmt.Fprintf(&b, " (%s)", w.AuctionID)
	}
	if len(w.Missing) > 0 {
		fmt.Fprintf(&b, ": missing %s", strings.Join(w.Missing, ", "))
	}
	if w.Err != nil {
		fmt.Fprintf(&b, ": %v", w.Err)
	}
	return b.String()
}

type Parser struct {
	sel Selectors
	loc *time.Location
}

type Option func(*Parser)

func WithSelectors(sel Selectors) Option {
	return func(p *Parser) { p.sel = sel }
}

// WithLocation sets the timezone end times are normalized into.
func WithLocation(loc *time.Location) Option {
	return func(p *Parser) { p.loc = loc }
}

func New(opts ...Option) *Parser {
	p := &Parser{
		sel: DefaultSelectors(),
		loc: time.UTC,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse returns the listings found on page in document order. A block that
// cannot be normalized is yielded as a *Warning error in its place and the
// sequence continues. The result depends only on the page, relative end times
// are resolved against page.FetchedAt.
func (p *Parser) Parse(page *domain.RawPage) (iter.Seq2[domain.ListingRecord, error], error) {
	if page == nil || strings.TrimSpace(page.Content) == "" {
		return nil, &domain.ParseError{URL: pageURL(page), Reason: "empty page"}
	}
	if page.FetchedAt.IsZero() {
		return nil, &domain.ParseError{URL: page.URL, Reason: "page has no fetch time"}
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page.Content))
	if err != nil {
		return nil, &domain.ParseError{URL: page.URL, Reason: "read html", Err: err}
	}

	blocks := doc.Find(p.sel.Listing)
	if blocks.Length() == 0 && doc.Find(p.sel.Container).Length() == 0 {
		return nil, &domain.ParseError{URL: page.URL, Reason: "no listing container found"}
	}

	base, err := url.Parse(page.URL)
	if err != nil {
		return nil, &domain.ParseError{URL: page.URL, Reason: "invalid page url", Err: err}
	}
	now := page.FetchedAt.In(p.loc)

	return func(yield func(domain.ListingRecord, error) bool) {
		for i := range blocks.Length() {
			rec, warn := p.parseBlock(blocks.Eq(i), base, now)
			if warn != nil {
				warn.URL = page.URL
				warn.Index = i
				if !yield(domain.ListingRecord{}, warn) {
					return
				}
				continue
			}
			if !yield(rec, nil) {
				return
			}
		}
	}, nil
}

func (p *Parser) parseBlock(block *goquery.Selection, base *url.URL, now time.Time) (domain.ListingRecord, *Warning) {
	f := p.extract(block, base)

	var missing []string
	for _, req := range []struct {
		name string
		v    optional
	}{
		{"auction_id", f.auctionID},
		{"title", f.title},
		{"current_bid", f.bid},
		{"auction_end", f.endTime},
	} {
		if !req.v.ok {
			missing = append(missing, req.name)
		}
	}
	if len(missing) > 0 {
		return domain.ListingRecord{}, &Warning{AuctionID: f.auctionID.value, Missing: missing}
	}

	bid, err := ParseAmount(f.bid.value)
	if err != nil {
		return domain.ListingRecord{}, &Warning{AuctionID: f.auctionID.value, Err: err}
	}

	end, ended, err := ParseEndTime(f.endTime.value, now, p.loc)
	if err != nil {
		return domain.ListingRecord{}, &Warning{AuctionID: f.auctionID.value, Err: err}
	}

	rec := domain.ListingRecord{
		AuctionID:   f.auctionID.value,
		Title:       truncate(f.title.value, maxTitleLen),
		Description: f.description.value,
		Category:    f.category.value,
		Condition:   f.condition.value,
		Brand:       f.brand.value,
		Model:       f.model.value,
		CurrentBid:  bid,
		AuctionEnd:  end,
		AuctionURL:  f.link.value,
		IsActive:    !f.closed && !ended,
	}
	if !f.condition.ok {
		rec.Condition = InferCondition(rec.Text())
	}
	if f.bidCount.ok {
		if n, ok := ParseBidCount(f.bidCount.value); ok {
			rec.BidCount = &n
		}
	}

	return rec, nil
}

func pageURL(page *domain.RawPage) string {
	if page == nil {
		return ""
	}
	return page.URL
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}

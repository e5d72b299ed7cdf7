package parser

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/shopspring/decimal"
)

var (
	whitespacePattern = regexp.MustCompile(`\s+`)
	amountPattern     = regexp.MustCompile(`\d[\d,]*(?:\.\d+)?`)
	dollarPattern     = regexp.MustCompile(`\$\s*\d[\d,]*(?:\.\d+)?`)
	bidCountPattern   = regexp.MustCompile(`(?i)(\d+)\s*bids?\b`)
	endPhrasePattern  = regexp.MustCompile(`(?i)\b(?:ends?|closes?|closing)\b[:\s]+(?:in\s+)?([^,;|\n$]+)`)
	lotNumberPattern  = regexp.MustCompile(`(?i)\blot\s*#?\s*(\d+)\b`)
	digitsPattern     = regexp.MustCompile(`^\d+$`)
)

// Patterns that carry the site's listing id inside a listing URL, in priority order.
var urlIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`/items?/(\d+)`),
	regexp.MustCompile(`/lots?/(\d+)`),
	regexp.MustCompile(`/auctions?/(\d+)`),
	regexp.MustCompile(`[?&](?:id|lot|item)=(\d+)`),
	regexp.MustCompile(`-(\d+)\.html?(?:$|[?#])`),
}

var idAttributes = []string{"data-lot-id", "data-item-id", "data-auction-id", "data-id"}

type optional struct {
	value string
	ok    bool
}

func present(v string) optional {
	return optional{value: v, ok: v != ""}
}

type blockFields struct {
	auctionID   optional
	title       optional
	description optional
	category    optional
	condition   optional
	brand       optional
	model       optional
	bid         optional
	bidCount    optional
	endTime     optional
	link        optional
	closed      bool
}

func (p *Parser) extract(block *goquery.Selection, base *url.URL) blockFields {
	var f blockFields
	blockText := normalizeText(block.Text())

	f.title = firstText(block, p.sel.Title)
	f.description = firstText(block, p.sel.Description)
	f.category = firstText(block, p.sel.Category)
	f.condition = firstText(block, p.sel.Condition)
	f.brand = firstText(block, p.sel.Brand)
	f.model = firstText(block, p.sel.Model)

	f.bid = firstText(block, p.sel.Bid)
	if !f.bid.ok {
		f.bid = present(dollarPattern.FindString(blockText))
	}

	f.bidCount = firstText(block, p.sel.BidCount)
	if !f.bidCount.ok {
		f.bidCount = present(bidCountPattern.FindString(blockText))
	}

	f.endTime = firstText(block, p.sel.EndTime)
	if !f.endTime.ok {
		if m := endPhrasePattern.FindStringSubmatch(blockText); m != nil {
			f.endTime = present(strings.TrimSpace(m[1]))
		}
	}

	if p.sel.Closed != "" {
		f.closed = block.Is(p.sel.Closed) || block.Find(p.sel.Closed).Length() > 0
	}

	f.link = resolveLink(block, p.sel.Link, base)
	f.auctionID = auctionID(block, f.title.value, f.link.value)

	return f
}

func firstText(block *goquery.Selection, selector string) optional {
	if selector == "" {
		return optional{}
	}
	found := block.Find(selector).First()
	if found.Length() == 0 {
		return optional{}
	}
	return present(normalizeText(found.Text()))
}

func resolveLink(block *goquery.Selection, selector string, base *url.URL) optional {
	if selector == "" {
		return optional{}
	}
	href, ok := block.Find(selector).First().Attr("href")
	if !ok {
		href, ok = block.Attr("href")
	}
	href = strings.TrimSpace(href)
	if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
		return optional{}
	}
	ref, err := url.Parse(href)
	if err != nil {
		return optional{}
	}
	return present(base.ResolveReference(ref).String())
}

// auctionID prefers an explicit id attribute, then an id embedded in the listing
// URL, then a "Lot #N" title prefix.
func auctionID(block *goquery.Selection, title, link string) optional {
	for _, attr := range idAttributes {
		if v, ok := block.Attr(attr); ok && strings.TrimSpace(v) != "" {
			return present(strings.TrimSpace(v))
		}
	}
	if link != "" {
		if id := ExtractAuctionID(link); id != "" {
			return present(id)
		}
	}
	if m := lotNumberPattern.FindStringSubmatch(title); m != nil {
		return present("lot-" + m[1])
	}
	return optional{}
}

// ExtractAuctionID pulls a listing id out of a listing URL. It returns an empty
// string when the URL carries none.
func ExtractAuctionID(rawURL string) string {
	for _, re := range urlIDPatterns {
		if m := re.FindStringSubmatch(rawURL); m != nil {
			return m[1]
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	if last := path.Base(strings.TrimSuffix(u.Path, "/")); digitsPattern.MatchString(last) {
		return last
	}
	return ""
}

// ParseAmount normalizes a currency string such as "$1,234.50" or "USD 40" to a
// two decimal amount.
func ParseAmount(raw string) (decimal.Decimal, error) {
	m := amountPattern.FindString(raw)
	if m == "" {
		return decimal.Zero, fmt.Errorf("no amount in %q", raw)
	}
	d, err := decimal.NewFromString(strings.ReplaceAll(m, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", raw, err)
	}
	return d.Round(2), nil
}

func ParseBidCount(raw string) (int, bool) {
	if m := bidCountPattern.FindStringSubmatch(raw); m != nil {
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

var conditionTerms = []struct {
	condition string
	terms     []string
}{
	{"like new", []string{"like new", "excellent", "near mint", "mint condition"}},
	{"poor", []string{"poor", "damaged", "for parts", "parts only", "not working", "broken"}},
	{"good", []string{"very good", "good condition", "gently used"}},
	{"fair", []string{"fair", "some wear", "used", "wear and tear"}},
	{"new", []string{"brand new", "new in box", "nib", "sealed", "new"}},
}

// InferCondition guesses an item condition from its listing text. It returns
// "unknown" when no condition term appears.
func InferCondition(text string) string {
	lower := strings.ToLower(text)
	for _, c := range conditionTerms {
		for _, term := range c.terms {
			if containsWord(lower, term) {
				return c.condition
			}
		}
	}
	return "unknown"
}

// containsWord reports whether term occurs in s on word boundaries.
func containsWord(s, term string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], term)
		if j < 0 {
			return false
		}
		start, end := i+j, i+j+len(term)
		if (start == 0 || !isWordByte(s[start-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isWordByte(b byte) bool {
	return b == '_' || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

func normalizeText(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

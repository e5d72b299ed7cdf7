// Package report renders stored pipeline results as terminal tables or CSV.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"

	"auction_scout/internal/domain"
)

type Format int

const (
	FormatTable Format = iota
	FormatCSV
)

const (
	timeLayout    = "2006-01-02 15:04"
	maxTitleWidth = 48
)

var hundred = decimal.NewFromInt(100)

func newWriter(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func render(t table.Writer, format Format) {
	if format == FormatCSV {
		t.RenderCSV()
		return
	}
	t.Render()
}

// Ranked writes the recommendation review, one row per item in the given order.
func Ranked(w io.Writer, items []domain.RankedItem, format Format) {
	t := newWriter(w)
	t.AppendHeader(table.Row{"Auction", "Title", "Bid", "Est. Value", "Profit", "Margin", "Recommendation", "Confidence", "Ends", "URL"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	title := truncate
	if format == FormatCSV {
		title = func(s string) string { return s }
	}

	for _, it := range items {
		t.AppendRow(table.Row{
			it.AuctionID,
			title(it.Title),
			Money(it.CurrentBid),
			Money(it.EstimatedValue),
			Money(it.PotentialProfit),
			Margin(it.ProfitMargin),
			string(it.Recommendation),
			strconv.FormatFloat(it.ConfidenceScore, 'f', 2, 64),
			it.AuctionEnd.Format(timeLayout),
			it.AuctionURL,
		})
	}
	if format == FormatTable {
		t.AppendFooter(table.Row{"", fmt.Sprintf("%d items", len(items))})
	}

	render(t, format)
}

// Urgent writes items about to close, with the time left at now.
func Urgent(w io.Writer, items []domain.RankedItem, now time.Time, format Format) {
	t := newWriter(w)
	t.AppendHeader(table.Row{"Auction", "Title", "Ends In", "Bid", "Est. Value", "Margin", "Recommendation", "URL"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
	})

	title := truncate
	if format == FormatCSV {
		title = func(s string) string { return s }
	}

	for _, it := range items {
		t.AppendRow(table.Row{
			it.AuctionID,
			title(it.Title),
			fmt.Sprintf("%.1fh", it.AuctionEnd.Sub(now).Hours()),
			Money(it.CurrentBid),
			Money(it.EstimatedValue),
			Margin(it.ProfitMargin),
			string(it.Recommendation),
			it.AuctionURL,
		})
	}

	render(t, format)
}

// BidHistory writes an item's bid observations with the change from the previous one.
func BidHistory(w io.Writer, entries []domain.BidHistoryEntry, format Format) {
	t := newWriter(w)
	t.AppendHeader(table.Row{"Recorded", "Bid", "Change", "Bids"})

	var prev *decimal.Decimal
	for i := range entries {
		e := entries[i]

		change := ""
		if prev != nil {
			change = signed(e.BidAmount.Sub(*prev))
		}
		prev = &entries[i].BidAmount

		bids := ""
		if e.BidCount != nil {
			bids = strconv.Itoa(*e.BidCount)
		}

		t.AppendRow(table.Row{e.RecordedAt.Format(timeLayout), Money(e.BidAmount), change, bids})
	}

	render(t, format)
}

func Sessions(w io.Writer, sessions []domain.ScrapeSession, format Format) {
	t := newWriter(w)
	t.AppendHeader(table.Row{"Session", "Started", "Duration", "Status", "Found", "Flagged", "Error"})

	for _, s := range sessions {
		duration := ""
		if s.EndedAt != nil {
			duration = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		msg := ""
		if s.ErrorMessage != nil {
			msg = *s.ErrorMessage
		}
		t.AppendRow(table.Row{s.ID, s.StartedAt.Format(timeLayout), duration, string(s.Status), s.ItemsFound, s.ItemsFlagged, msg})
	}

	render(t, format)
}

func WatchRules(w io.Writer, rules []domain.WatchRule, format Format) {
	t := newWriter(w)
	t.AppendHeader(table.Row{"ID", "Keyword", "Category", "Min Profit %", "Max Bid", "Active"})

	for _, r := range rules {
		category := ""
		if r.Category != nil {
			category = *r.Category
		}
		maxBid := ""
		if r.MaxBidAmount.Valid {
			maxBid = Money(r.MaxBidAmount.Decimal)
		}
		t.AppendRow(table.Row{r.ID, r.Keyword, category, r.MinProfitThreshold.StringFixed(1), maxBid, r.IsActive})
	}

	render(t, format)
}

// RunStats writes a one-run summary as a two-column table.
func RunStats(w io.Writer, stats *domain.RunStats) {
	t := newWriter(w)
	t.AppendHeader(table.Row{"Run", strconv.FormatInt(stats.SessionID, 10)})
	t.AppendRows([]table.Row{
		{"Status", string(stats.Status)},
		{"Pages", stats.Pages},
		{"Listings found", stats.Found},
		{"Skipped listings", stats.Skipped},
		{"Created", stats.Created},
		{"Bid updated", stats.BidUpdated},
		{"Deactivated", stats.Deactivated},
		{"Flagged", stats.Flagged},
		{"Red flagged", stats.RedFlagged},
		{"Analyses", stats.Analyses},
		{"Alerts", stats.Published},
		{"Expired", stats.Expired},
		{"Fetch failures", stats.FetchFailures},
		{"Parse errors", stats.ParseErrors},
		{"Store errors", stats.StoreErrors},
		{"Duration", stats.Duration.Round(time.Millisecond).String()},
	})
	t.Render()
}

// Money formats an amount with two decimals.
func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// Margin formats a fractional margin as a percentage, or "n/a" when absent.
func Margin(m decimal.NullDecimal) string {
	if !m.Valid {
		return "n/a"
	}
	return m.Decimal.Mul(hundred).StringFixed(2) + "%"
}

func signed(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + Money(d)
	}
	return Money(d)
}

func truncate(s string) string {
	if utf8.RuneCountInString(s) <= maxTitleWidth {
		return s
	}
	r := []rune(s)
	return string(r[:maxTitleWidth-1]) + "…"
}

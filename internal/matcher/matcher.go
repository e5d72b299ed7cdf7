// Package matcher evaluates listings against the watchlist.
package matcher

import (
	"cmp"
	"slices"
	"strings"

	"auction_scout/internal/domain"
)

type Matcher struct {
	redFlags []string
}

// New returns a Matcher that vetoes any listing containing one of redFlags.
func New(redFlags []string) *Matcher {
	m := &Matcher{}
	for _, term := range redFlags {
		if term = normalize(term); term != "" {
			m.redFlags = append(m.redFlags, term)
		}
	}
	return m
}

// Evaluate matches rec against the active rules using case-insensitive
// substring search over its title and description. Matched rules are returned
// in creation order. A red flag hit empties the matched rules.
func (m *Matcher) Evaluate(rec domain.ListingRecord, rules []domain.WatchRule) domain.MatchResult {
	text := normalize(rec.Text())

	var result domain.MatchResult
	for _, term := range m.redFlags {
		if strings.Contains(text, term) {
			result.IsRedFlagged = true
			result.RedFlags = append(result.RedFlags, term)
		}
	}
	if result.IsRedFlagged {
		return result
	}

	ordered := slices.Clone(rules)
	slices.SortStableFunc(ordered, func(a, b domain.WatchRule) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	for _, rule := range ordered {
		if ruleMatches(rule, rec, text) {
			result.MatchedRules = append(result.MatchedRules, rule)
		}
	}
	return result
}

func ruleMatches(rule domain.WatchRule, rec domain.ListingRecord, text string) bool {
	if !rule.IsActive {
		return false
	}
	keyword := normalize(rule.Keyword)
	if keyword == "" || !strings.Contains(text, keyword) {
		return false
	}
	if rule.Category != nil && *rule.Category != "" &&
		!strings.EqualFold(strings.TrimSpace(*rule.Category), strings.TrimSpace(rec.Category)) {
		return false
	}
	if rule.MaxBidAmount.Valid && rec.CurrentBid.GreaterThan(rule.MaxBidAmount.Decimal) {
		return false
	}
	return true
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

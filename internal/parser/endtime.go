package parser

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var absoluteLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"01/02/2006 3:04 PM",
	"1/2/2006 3:04 PM",
	"01/02/2006 15:04",
	"1/2/2006 15:04",
	"January 2, 2006 at 3:04 PM",
	"January 2, 2006 3:04 PM",
	"Jan 2, 2006 3:04 PM",
	"Mon, Jan 2, 2006 3:04 PM",
}

var (
	durationTokenPattern  = regexp.MustCompile(`(?i)(\d+)\s*(days?|d|hours?|hrs?|hr|h|minutes?|mins?|m|seconds?|secs?|s)\b`)
	durationFillerPattern = regexp.MustCompile(`(?i)[\s,]|\band\b`)
)

var endPrefixes = []string{
	"time left:", "time left", "ends in", "ends:", "ends", "ending in", "closes in", "closes:", "closes", "closing in", "closing", "end:",
}

var endSuffixes = []string{"remaining", "left"}

// ParseEndTime converts a listing's end time text into an absolute time in loc.
// Relative forms such as "Ends in 2d 4h" resolve against now. ended reports
// listings the page already shows as ended or closed.
func ParseEndTime(raw string, now time.Time, loc *time.Location) (end time.Time, ended bool, err error) {
	s := normalizeText(raw)
	lower := strings.ToLower(s)
	if s == "" {
		return time.Time{}, false, fmt.Errorf("empty end time")
	}
	if lower == "ended" || lower == "closed" || strings.HasPrefix(lower, "ended ") || strings.HasPrefix(lower, "closed ") {
		return now, true, nil
	}

	for _, prefix := range endPrefixes {
		if strings.HasPrefix(lower, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			lower = strings.ToLower(s)
			break
		}
	}
	for _, suffix := range endSuffixes {
		if strings.HasSuffix(lower, suffix) {
			s = strings.TrimSpace(s[:len(s)-len(suffix)])
			lower = strings.ToLower(s)
			break
		}
	}

	for _, layout := range absoluteLayouts {
		t, err := time.ParseInLocation(layout, s, loc)
		if err == nil {
			return t.In(loc), false, nil
		}
	}

	if d, ok := parseRelative(s); ok {
		return now.Add(d).In(loc), false, nil
	}

	return time.Time{}, false, fmt.Errorf("unrecognized end time %q", raw)
}

func parseRelative(s string) (time.Duration, bool) {
	tokens := durationTokenPattern.FindAllStringSubmatch(s, -1)
	if len(tokens) == 0 {
		return 0, false
	}
	rest := durationTokenPattern.ReplaceAllString(s, "")
	if durationFillerPattern.ReplaceAllString(rest, "") != "" {
		return 0, false
	}

	var total time.Duration
	for _, tok := range tokens {
		n, err := strconv.Atoi(tok[1])
		if err != nil {
			return 0, false
		}
		total += time.Duration(n) * unitDuration(strings.ToLower(tok[2]))
	}
	return total, true
}

func unitDuration(unit string) time.Duration {
	switch {
	case strings.HasPrefix(unit, "d"):
		return 24 * time.Hour
	case strings.HasPrefix(unit, "h"):
		return time.Hour
	case strings.HasPrefix(unit, "m"):
		return time.Minute
	default:
		return time.Second
	}
}

package expiry

import (
	"sort"
	"strings"
	"time"

	"indian-stock-api/internal/brokererr"
)

// DateLayout is the canonical expiry date format
const DateLayout = "2006-01-02"

// Layouts accepted for upstream expiry dates
var Layouts = []string{
	DateLayout,
	"02-Jan-2006", // NSE option chain
	"02 Jan 2006", // BSE
	"02Jan2006",   // AngelOne master
	"02-01-2006",
	"2006-01-02T15:04:05",
	time.RFC3339,
}

// ParseDate parses s with the first matching layout in loc
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range Layouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, brokererr.Newf(brokererr.KindInput, "unparseable expiry date %q", s)
}

// FilterFutureDates keeps the dates at or after now, formatted YYYY-MM-DD and
// sorted ascending. Duplicates are kept. A single unparseable date fails the
// whole batch with an InputError.
func FilterFutureDates(dates []string, now time.Time) ([]string, error) {
	parsed := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		t, err := ParseDate(d, now.Location())
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, t)
	}

	future := parsed[:0]
	for _, t := range parsed {
		if !t.Before(now) {
			future = append(future, t)
		}
	}
	sort.SliceStable(future, func(i, j int) bool { return future[i].Before(future[j]) })

	out := make([]string, len(future))
	for i, t := range future {
		out[i] = t.Format(DateLayout)
	}
	return out, nil
}

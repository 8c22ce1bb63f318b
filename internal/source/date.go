package source

import (
	"strings"
	"time"
)

// dateLayouts are tried in order. Upstreams disagree on date formats; the
// union here covers the agency APIs and the scraped bulletin pages.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"01/02/2006",
	"20060102",
	"January 2, 2006",
	"2 Jan 2006",
}

// ParseDate parses an upstream date string. Unparseable input yields nil,
// never "now": treating garbage as today would silently defeat the cutoff
// window on the next run.
func ParseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

package reconcile

import (
	"time"
	"unicode/utf8"

	"github.com/agentstation/freshen/pkg/content"
)

// Budget bounds the current-state summary fed into the prompt.
type Budget struct {
	// PerItem caps the runes of one item's data.
	PerItem int
	// Total caps the runes of all item data together. Items past the cap
	// are listed without data.
	Total int
}

// Summary is the prompt projection of one stored item. It is lossy and
// never written back.
type Summary struct {
	Key         string
	Section     string
	Version     int
	SourceType  content.SourceType
	Confidence  *float64
	RefreshedAt time.Time
	Text        string
	Truncated   bool
	Omitted     bool
}

const ellipsis = "…"

// Summarize projects items into summaries within b, preserving order.
func Summarize(items []content.Item, b Budget) []Summary {
	out := make([]Summary, 0, len(items))
	left := b.Total
	for _, it := range items {
		s := Summary{
			Key:         it.Key,
			Section:     it.Section,
			Version:     it.Version,
			SourceType:  it.SourceType,
			Confidence:  it.Confidence,
			RefreshedAt: it.RefreshedAt,
		}
		if left <= 0 {
			s.Omitted = true
			out = append(out, s)
			continue
		}
		limit := min(b.PerItem, left)
		s.Text, s.Truncated = truncate(it.Data.String(), limit)
		left -= utf8.RuneCountInString(s.Text)
		out = append(out, s)
	}
	return out
}

// truncate cuts s to at most limit runes, marking the cut with an ellipsis
// that counts toward the limit.
func truncate(s string, limit int) (string, bool) {
	if limit <= 0 {
		return "", s != ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s, false
	}
	keep := limit - utf8.RuneCountInString(ellipsis)
	if keep <= 0 {
		return ellipsis, true
	}
	n := 0
	for i := range s {
		if n == keep {
			return s[:i] + ellipsis, true
		}
		n++
	}
	return s, false
}

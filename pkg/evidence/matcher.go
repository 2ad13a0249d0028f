package evidence

import (
	"strings"

	"github.com/cloudflare/ahocorasick"
	"golang.org/x/text/cases"
)

// matcher does case-insensitive substring matching of many keywords in one pass.
type matcher struct {
	m *ahocorasick.Matcher
}

// newMatcher returns nil when there are no usable keywords.
func newMatcher(keywords []string) *matcher {
	folder := cases.Fold()
	seen := make(map[string]bool, len(keywords))
	var folded []string
	for _, kw := range keywords {
		f := folder.String(strings.TrimSpace(kw))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		folded = append(folded, f)
	}
	if len(folded) == 0 {
		return nil
	}
	return &matcher{m: ahocorasick.NewStringMatcher(folded)}
}

func (m *matcher) matches(title, summary string) bool {
	text := cases.Fold().String(title + "\n" + summary)
	return len(m.m.Match([]byte(text))) > 0
}

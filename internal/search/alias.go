package search

import (
	"fmt"
	"strings"

	"wharf/internal/normalize"
)

// Query is one backend lookup derived from a request. Tier 1 queries are
// the broad primary forms, tier 2 fills recall gaps with narrower
// variants. Lower tiers win when the same file shows up in both.
type Query struct {
	Text string
	Tier int
}

// buildQueries expands a request into its alias group. The first entry
// is always the canonical title form; variants drop the year, the
// leading article, or trailing words, since uploaders rarely agree on
// any of them. Queries come back tier 1 first so a budget cut keeps the
// strongest forms.
func buildQueries(req Request) []Query {
	parsed := normalize.Parse(req.Title)
	base := parsed.Title
	if base == "" {
		return nil
	}
	noYear := stripTrailingYear(base)

	b := queryBuilder{seen: make(map[string]struct{})}
	if code := seQuery(req.Season, req.Episode); code != "" {
		b.add(base+" "+code, 1)
		if noYear != base {
			b.add(noYear+" "+code, 1)
		}
		if req.Season > 0 && req.Episode > 0 {
			b.add(fmt.Sprintf("%s %dx%02d", noYear, req.Season, req.Episode), 2)
		}
		// Bare-title fallback relies on the local marker filter.
		b.add(noYear, 2)
		return b.queries
	}

	b.add(base, 1)
	if noYear != base {
		b.add(noYear, 1)
	}
	if trimmed := strings.TrimPrefix(noYear, "the "); trimmed != noYear {
		b.add(trimmed, 2)
	}
	if strings.Contains(noYear, " and ") {
		b.add(strings.ReplaceAll(noYear, " and ", " "), 2)
	}
	if tokens := strings.Fields(noYear); len(tokens) > 2 {
		b.add(strings.Join(tokens[:2], " "), 2)
	}
	return b.queries
}

type queryBuilder struct {
	queries []Query
	seen    map[string]struct{}
}

func (b *queryBuilder) add(text string, tier int) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	if _, dup := b.seen[text]; dup {
		return
	}
	b.seen[text] = struct{}{}
	b.queries = append(b.queries, Query{Text: text, Tier: tier})
}

// seQuery renders the marker in the lowercase form uploads use.
func seQuery(season, episode int) string {
	code := normalize.Result{Season: season, Episode: episode}.SECode()
	return strings.ToLower(code)
}

// stripTrailingYear removes a trailing year token from a canonical title.
func stripTrailingYear(title string) string {
	tokens := strings.Fields(title)
	if len(tokens) < 2 {
		return title
	}
	if normalize.IsYearToken(tokens[len(tokens)-1]) {
		return strings.Join(tokens[:len(tokens)-1], " ")
	}
	return title
}

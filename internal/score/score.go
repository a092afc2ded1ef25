package score

import (
	"math"
	"strings"

	levenshtein "github.com/ka-weihe/fast-levenshtein"

	"wharf/internal/normalize"
)

const (
	accuracyCeiling = 90
	scoreCeiling    = 100
)

// stopwords carry no matching weight. Uploads mix English and French
// naming, so both article sets are ignored.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "of": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {},
	"le": {}, "la": {}, "les": {}, "un": {}, "une": {},
	"des": {}, "du": {}, "et": {},
}

// Evaluation is the outcome of matching one candidate against a query.
// Score is zero whenever Accepted is false.
type Evaluation struct {
	Score    int
	Accuracy int
	Bonus    int
	Accepted bool
	Missing  []string
}

// Matcher scores hoster results against a single query. The query is
// normalized once at construction so fan-out scoring stays cheap.
type Matcher struct {
	title  string
	tokens []string
}

// NewMatcher builds a Matcher for the given query text. The text goes
// through the same normalization as candidate filenames.
func NewMatcher(query string) *Matcher {
	parsed := normalize.Parse(query)
	tokens := make([]string, 0, 8)
	for _, token := range strings.Fields(parsed.Title) {
		if _, stop := stopwords[token]; stop {
			continue
		}
		if normalize.IsYearToken(token) {
			continue
		}
		tokens = append(tokens, token)
	}
	return &Matcher{title: parsed.Title, tokens: tokens}
}

// Title returns the canonical query title.
func (m *Matcher) Title() string { return m.title }

// Evaluate gates and scores a normalized candidate. Every significant
// query token must appear in the candidate title, allowing a singular or
// plural form on either side. Accepted candidates score the title
// similarity on a 0-90 scale plus up to 10 bonus points from quality
// tags, capped at 100.
func (m *Matcher) Evaluate(cand normalize.Result) Evaluation {
	if cand.Title == "" {
		return Evaluation{}
	}

	candTokens := strings.Fields(cand.Title)
	var missing []string
	for _, token := range m.tokens {
		if !containsToken(candTokens, token) {
			missing = append(missing, token)
		}
	}
	if len(missing) > 0 {
		return Evaluation{Missing: missing}
	}

	accuracy := similarity(m.title, cand.Title)
	bonus := tagBonus(cand.Tags)
	total := accuracy + bonus
	if total > scoreCeiling {
		total = scoreCeiling
	}
	return Evaluation{
		Score:    total,
		Accuracy: accuracy,
		Bonus:    bonus,
		Accepted: true,
	}
}

// containsToken reports whether want or an s/es inflection of it appears
// in tokens. Reconciliation runs both ways, so a plural query still
// matches a singular candidate.
func containsToken(tokens []string, want string) bool {
	for _, tok := range tokens {
		if tok == want {
			return true
		}
		if tok == want+"s" || tok == want+"es" {
			return true
		}
		if want == tok+"s" || want == tok+"es" {
			return true
		}
	}
	return false
}

// similarity maps the edit distance between two titles onto 0-90.
func similarity(a, b string) int {
	if a == "" || b == "" {
		return 0
	}
	longest := len(a)
	if len(b) > longest {
		longest = len(b)
	}
	dist := levenshtein.Distance(a, b)
	if dist >= longest {
		return 0
	}
	ratio := 1 - float64(dist)/float64(longest)
	return int(math.Round(ratio * accuracyCeiling))
}

// tagBonus awards up to 5 points for the best resolution tag and up to 5
// for the best localization tag. Tags of the same kind never stack.
func tagBonus(tags []string) int {
	resolution, localization := 0, 0
	for _, tag := range tags {
		if v := normalize.ResolutionBonus(tag); v > resolution {
			resolution = v
		}
		if v := normalize.LocalizationBonus(tag); v > localization {
			localization = v
		}
	}
	return resolution + localization
}

package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	seMarkerPattern = regexp.MustCompile(`(?i)\bS(\d{1,2})[\s._-]*E(?:P)?(\d{1,4})\b`)
	xMarkerPattern  = regexp.MustCompile(`(?i)\b(\d{1,2})x(\d{2,3})\b`)
	epMarkerPattern = regexp.MustCompile(`(?i)\b(?:EP(\d{1,4})|E(\d{2,4}))\b`)
	seasonPattern   = regexp.MustCompile(`(?i)\bS(\d{1,2})\b`)
	yearPattern     = regexp.MustCompile(`\(\s*((?:19|20)\d{2})\s*\)`)
	bareYearPattern = regexp.MustCompile(`^(?:19|20)\d{2}$`)
)

// Result is the structured form of an uploader filename. Title holds the
// canonical lowercase title, Season/Episode the parsed marker (0 when
// absent), Year the release year when one was found, and Tags the known
// quality and localization tokens in the order they appeared.
type Result struct {
	Title   string
	Season  int
	Episode int
	Year    int
	Tags    []string
}

// HasSeason reports whether a season marker was found.
func (r Result) HasSeason() bool { return r.Season > 0 }

// HasEpisode reports whether an episode marker was found.
func (r Result) HasEpisode() bool { return r.Episode > 0 }

// SECode renders the season/episode marker in canonical SxxEyy form, or a
// partial form when only one side was present. Empty without a marker.
func (r Result) SECode() string {
	switch {
	case r.Season > 0 && r.Episode > 0:
		return fmt.Sprintf("S%02dE%02d", r.Season, r.Episode)
	case r.Season > 0:
		return fmt.Sprintf("S%02d", r.Season)
	case r.Episode > 0:
		return fmt.Sprintf("E%02d", r.Episode)
	}
	return ""
}

// HasTag reports whether the given tag was recognized in the filename.
func (r Result) HasTag(tag string) bool {
	tag = strings.ToLower(tag)
	for _, t := range r.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// addTag records a tag once, preserving first-seen order.
func (r *Result) addTag(tag string) {
	if r.HasTag(tag) {
		return
	}
	r.Tags = append(r.Tags, tag)
}

// Parse reduces an uploader filename to a comparable Result. It strips a
// known file extension, splits the name at the first season/episode marker,
// and cleans each side: a parenthesized year goes to Year, quality and
// localization tokens go to Tags, possessive markers drop before the
// remaining punctuation, and separator runs become single spaces. The
// output is lowercase and parsing a returned Title yields it unchanged.
func Parse(raw string) Result {
	var res Result

	name := stripExtension(strings.TrimSpace(raw))
	name = strings.ToLower(name)

	titlePart, tagPart := splitAtMarker(name, &res)

	res.Title = cleanTitle(titlePart, &res)
	collectTags(tagPart, &res)
	return res
}

// Tokenize splits text into lowercase alphanumeric tokens. Unlike the
// cleaning pipeline it keeps every token, so callers can apply their own
// significance rules.
func Tokenize(text string) []string {
	return strings.Fields(scrub(strings.ToLower(text)))
}

// IsYearToken reports whether token is a plausible release year. Year
// tokens identify editions rather than titles, so matching treats them
// separately from ordinary words.
func IsYearToken(token string) bool {
	return bareYearPattern.MatchString(token)
}

func stripExtension(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 || idx == len(name)-1 {
		return name
	}
	if isKnownExtension(name[idx+1:]) {
		return name[:idx]
	}
	return name
}

// splitAtMarker finds the first season/episode marker and cuts the name
// there. Text before the marker is the title candidate, text after is the
// tag region. Without a marker the whole name is the title candidate.
func splitAtMarker(name string, res *Result) (title, tags string) {
	if loc := seMarkerPattern.FindStringSubmatchIndex(name); loc != nil {
		res.Season = atoi(name[loc[2]:loc[3]])
		res.Episode = atoi(name[loc[4]:loc[5]])
		return name[:loc[0]], name[loc[1]:]
	}
	if loc := xMarkerPattern.FindStringSubmatchIndex(name); loc != nil {
		res.Season = atoi(name[loc[2]:loc[3]])
		res.Episode = atoi(name[loc[4]:loc[5]])
		return name[:loc[0]], name[loc[1]:]
	}
	if loc := epMarkerPattern.FindStringSubmatchIndex(name); loc != nil {
		if loc[2] >= 0 {
			res.Episode = atoi(name[loc[2]:loc[3]])
		} else {
			res.Episode = atoi(name[loc[4]:loc[5]])
		}
		return name[:loc[0]], name[loc[1]:]
	}
	if loc := seasonPattern.FindStringSubmatchIndex(name); loc != nil {
		res.Season = atoi(name[loc[2]:loc[3]])
		return name[:loc[0]], name[loc[1]:]
	}
	return name, ""
}

// cleanTitle runs the cleaning pipeline over the title candidate and
// returns the canonical title. Stripped quality and localization tokens
// are recorded on res so a markerless name still yields its tags.
func cleanTitle(part string, res *Result) string {
	part = extractYear(part, res)
	part = stripPossessives(part)
	part = scrub(part)

	kept := make([]string, 0, 8)
	for _, token := range strings.Fields(part) {
		if isQualityToken(token) || IsLocalizationTag(token) {
			res.addTag(token)
			continue
		}
		kept = append(kept, token)
	}
	title := strings.Join(kept, " ")

	if res.Year == 0 && len(kept) > 1 {
		if last := kept[len(kept)-1]; bareYearPattern.MatchString(last) {
			res.Year = atoi(last)
		}
	}
	return title
}

// collectTags scans the tag region for known tokens. Unknown tokens in the
// tag region carry no title meaning and are dropped.
func collectTags(part string, res *Result) {
	if part == "" {
		return
	}
	for _, token := range strings.Fields(scrub(part)) {
		if isQualityToken(token) || IsLocalizationTag(token) {
			res.addTag(token)
		}
	}
}

// extractYear removes parenthesized years and records the last one found.
func extractYear(part string, res *Result) string {
	matches := yearPattern.FindAllStringSubmatch(part, -1)
	if len(matches) == 0 {
		return part
	}
	res.Year = atoi(matches[len(matches)-1][1])
	return yearPattern.ReplaceAllString(part, " ")
}

// stripPossessives removes possessive markers so "shadow's" and "shadows'"
// both reduce to their stem before apostrophes are dropped outright.
func stripPossessives(part string) string {
	var b strings.Builder
	b.Grow(len(part))
	runes := []rune(part)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if !isApostrophe(r) {
			b.WriteRune(r)
			continue
		}
		next := rune(0)
		if i+1 < len(runes) {
			next = runes[i+1]
		}
		prev := rune(0)
		if i > 0 {
			prev = runes[i-1]
		}
		if next == 's' && (i+2 >= len(runes) || !isWordRune(runes[i+2])) {
			i++ // drop 's
			continue
		}
		if prev == 's' && !isWordRune(next) {
			continue // shadows' keeps its stem
		}
	}
	return b.String()
}

// scrub keeps letters and digits, maps separators to spaces, drops the
// rest, and collapses whitespace.
func scrub(part string) string {
	var b strings.Builder
	b.Grow(len(part))
	for _, r := range part {
		switch {
		case isWordRune(r):
			b.WriteRune(r)
		case isSeparator(r):
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func isWordRune(r rune) bool {
	return r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9'
}

func isSeparator(r rune) bool {
	switch r {
	case ' ', '.', '_', '-', '\t':
		return true
	}
	return false
}

func isApostrophe(r rune) bool {
	switch r {
	case '\'', '’', '`', '´':
		return true
	}
	return false
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimLeft(s, "0"))
	return n
}

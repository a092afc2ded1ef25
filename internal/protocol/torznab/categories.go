package torznab

import (
	"cmp"
	"slices"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Category maps one host category onto a newznab numeric code. Host is the
// lowercase name the host API and the search pipeline use; ID and Name are
// what the indexer clients see.
type Category struct {
	ID   int
	Name string
	Host string
}

// hostCategoryCodes assigns the standard newznab thousand blocks to the host
// category names they correspond to, including common aliases.
var hostCategoryCodes = map[string]int{
	"movies": 2000, "movie": 2000, "films": 2000,
	"audio": 3000, "music": 3000,
	"pc": 4000, "apps": 4000, "software": 4000,
	"tv": 5000, "series": 5000, "shows": 5000,
	"xxx": 6000, "adult": 6000,
	"books": 7000, "ebooks": 7000,
	"other": 8000, "misc": 8000,
}

// defaultHostCategories is exposed when no categories are configured, which
// also means the add path accepts anything.
var defaultHostCategories = []string{"movies", "audio", "pc", "tv", "xxx", "books", "other"}

// Categories builds the category table for a configured host category list.
// Names without a standard block get sequential codes above 8000 so clients
// can still address them.
func Categories(hostCategories []string) []Category {
	if len(hostCategories) == 0 {
		hostCategories = defaultHostCategories
	}

	cats := make([]Category, 0, len(hostCategories))
	used := make(map[int]struct{}, len(hostCategories))
	custom := 8000
	for _, host := range hostCategories {
		host = strings.ToLower(strings.TrimSpace(host))
		if host == "" {
			continue
		}
		code, ok := hostCategoryCodes[host]
		if !ok {
			custom += 10
			code = custom
		}
		if _, dup := used[code]; dup {
			continue
		}
		used[code] = struct{}{}
		cats = append(cats, Category{ID: code, Name: displayName(host), Host: host})
	}

	slices.SortFunc(cats, func(a, b Category) int { return cmp.Compare(a.ID, b.ID) })
	return cats
}

// ByID resolves a category code, falling back to the thousand block so
// subcategory codes like 5030 (TV/SD) land on their parent.
func ByID(cats []Category, id int) (Category, bool) {
	for _, c := range cats {
		if c.ID == id {
			return c, true
		}
	}
	if id >= 1000 {
		block := id / 1000 * 1000
		for _, c := range cats {
			if c.ID == block {
				return c, true
			}
		}
	}
	return Category{}, false
}

// ByHost resolves a host category name.
func ByHost(cats []Category, host string) (Category, bool) {
	host = strings.ToLower(strings.TrimSpace(host))
	for _, c := range cats {
		if c.Host == host {
			return c, true
		}
	}
	return Category{}, false
}

func displayName(host string) string {
	switch host {
	case "tv":
		return "TV"
	case "pc":
		return "PC"
	case "xxx":
		return "XXX"
	}
	return cases.Title(language.Und).String(host)
}

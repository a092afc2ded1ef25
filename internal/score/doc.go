// Package score decides whether a hoster result matches a search query
// and how well. A keyword gate rejects candidates missing significant
// query words, then accepted candidates are ranked by title similarity
// with a small bonus for resolution and localization tags.
package score

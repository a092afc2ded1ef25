// Package search turns one logical request into the alias queries the
// host's substring search needs, fans them out in parallel under a query
// budget, and merges the results into a ranked candidate list. Recall
// failure is not an error: a request nothing matched yields an empty
// slice.
package search

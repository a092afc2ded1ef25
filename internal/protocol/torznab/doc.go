// Package torznab presents the search pipeline as a newznab/torznab
// indexer. Clients built for indexer feeds get caps, free-text and
// structured search modes, and stub nzb retrieval; item titles are rebuilt
// from parsed metadata so positional parsers read them correctly.
package torznab

// Package normalize reduces uploader filenames to a canonical form so
// search queries and hoster results can be compared. A filename is split
// at its season/episode marker, cleaned of extensions, years, quality and
// localization tokens, and lowercased. The same pipeline applied to its
// own output is a fixed point, which keeps repeated matching stable.
package normalize

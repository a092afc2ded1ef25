// Package textutil sanitizes externally supplied names before they touch the
// filesystem. Hoster catalogs and API callers control filenames end to end, so
// anything that becomes a path segment is scrubbed here first.
package textutil

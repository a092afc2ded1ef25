// Package config loads, normalizes, and validates wharf configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// WHARF_HOSTER_TOKEN. The Config type centralizes every knob the daemon and
// CLI need, from engine concurrency and retry backoff to facade bind
// addresses and sync batching cadence.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

// Package notifications delivers daemon lifecycle events via pluggable
// notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Enumerated event types cover download completion, failure, and
// daemon start/stop so callers can emit consistent messages without
// duplicating HTTP glue; per-event toggles in the notifications section
// suppress classes of events without unconfiguring the topic.
//
// Extend this package if you need alternative transports; all engine code
// depends only on the simple Service interface.
package notifications

// Package services defines shared utilities consumed by the download engine
// stages and the hoster integration.
//
// Key responsibilities:
//   - Context helpers that stamp queue task IDs, stage names, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper that translate failures
//     into consistent queue statuses (waiting vs failed) and tell the engine
//     when a direct link must be re-resolved.
//
// Use these helpers when wiring new engine logic so operational behaviour
// (error handling, observability, retries) stays uniform across stages.
package services

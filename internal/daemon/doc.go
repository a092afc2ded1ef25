// Package daemon coordinates the long-running wharf process.
//
// It wires the download engine, the broadcast hub, and the HTTP surface into
// a single lifecycle with flock-based locking to prevent multiple instances.
// The HTTP server carries the bearer-authenticated admin API, the log stream,
// the websocket feed, and the protocol facades, which authenticate their own
// requests.
//
// Keep orchestration logic here: task processing lives in the engine and the
// daemon focuses on startup, shutdown, and high level coordination.
package daemon

// Package broadcast pushes queue state to websocket clients. Every new
// connection receives one snapshot frame with the full task list and
// aggregate stats; after that the hub streams task_added, task_updated,
// tasks_updated, task_removed, and periodic stats frames. Per-task updates
// are coalesced by id within a batch window, so clients see the latest
// state without a frame per progress tick.
package broadcast

// Package ipc exposes the task service over JSON-RPC Unix sockets and ships
// the matching client used by the CLI.
//
// It owns socket lifecycle management and the request/response DTOs. The
// server delegates every operation to the shared service layer so IPC callers
// see the same semantics as the HTTP API, and the client dials with a short
// timeout so CLI commands fail fast when the daemon is offline.
//
// Reuse these types when adding new RPC endpoints to keep the protocol stable
// and compatible with existing command implementations.
package ipc

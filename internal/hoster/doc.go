// Package hoster talks to the authenticated file-hosting service. The
// host exposes substring search over its catalog, per-file info, and an
// endpoint that exchanges a stable file reference for a short-lived
// direct download URL. HTTP failures are classified onto the shared
// error taxonomy so the engine can tell a dead session from a stale
// link.
package hoster

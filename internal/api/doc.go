// Package api is the service layer shared by the IPC server, the HTTP
// admin API, the protocol facades, and the CLI. It translates internal
// queue models into transport-friendly DTOs and funnels every task
// mutation through the engine so state transitions, sync pushes, and
// wake-ups happen in one place.
//
// DTOs use camelCase JSON tags and expose internal enums as lowercase
// strings. Timestamps use RFC3339 with milliseconds.
package api

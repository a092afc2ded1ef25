// Package preflight provides readiness checks for the directories,
// database, and host session that wharf depends on.
//
// The checks run in two contexts:
//   - The daemon calls RunAll once at startup and refuses to come up
//     when a required check fails, so misconfiguration surfaces before
//     the queue accepts work.
//   - The CLI "wharf config check" command renders the same results
//     for the operator.
//
// The host session check is advisory: a host outage should not keep
// the daemon from serving its queue, and tasks report clearer errors
// individually once work arrives.
package preflight

// Package queue persists download tasks in SQLite and enforces their
// lifecycle.
//
// The Store manages database connections, schema initialization, stats
// queries, claim semantics for the worker pool, and status transitions
// validated against an explicit transition table. A task's stable reference
// is stored separately from its short-lived direct link so link refresh never
// loses the ability to re-resolve.
//
// The database is the authoritative task table; the engine is its only
// writer while a task is active, and every status change funnels through
// Transition or the Mark helpers so illegal edges surface as errors instead
// of silent corruption. Schema changes bump the version in schema.go; users
// clear the database to adopt the new schema.
package queue

// Package store persists capture history and user-defined characters in a
// local SQLite database.
//
// The schema is versioned. Opening a store runs the pending upgrade steps in
// order; every step checks which tables and indexes already exist and only
// creates the missing ones, so upgrades never rewrite stored records.
//
// Mutations are serialized per collection. History records are immutable once
// written and may be capped to the newest N entries; characters carry usage
// analytics that the capture orchestrator bumps after each successful
// generation.
package store

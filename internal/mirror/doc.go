// Package mirror keeps a capped, server-side copy of recent captures so a
// client can restore its history feed on another device.
//
// The Service owns the cap and entry identity; a Backend only stores ordered
// entries. Backends exist for a local SQLite file, PostgreSQL and a NATS
// JetStream key-value bucket.
package mirror

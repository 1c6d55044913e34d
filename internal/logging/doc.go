// Package logging builds the slog loggers used across the camera backend.
//
// Two output formats are supported: a single-line console format that puts the
// component and capture identifiers up front, and JSON for log shippers.
// Context helpers pull session, capture and step identifiers out of a
// context.Context so call sites do not repeat them.
package logging

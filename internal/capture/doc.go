// Package capture sequences a photo through the remote capabilities and into
// the record store.
//
// Each caller owns a Session moving through idle, capturing, optional prompt
// collection (meta mode), processing and result. Processing runs the mode's
// plan one remote call at a time; a failure at any step returns the session to
// idle and nothing is written. Only after a successful generation is the
// attached character's usage bumped and the history record inserted.
package capture

// Package services defines shared plumbing consumed by the store, the
// capability gateway, the capture orchestrator and the HTTP layer.
//
// Key responsibilities:
//   - Context helpers that stamp session IDs, capture run IDs, step names, and
//     correlation identifiers for logging and tracing.
//   - Sentinel error markers plus the Wrap helper, so a failure raised deep in
//     a transport can still be classified (safety block, missing image, store
//     outage) at the HTTP boundary.
//   - ValidationError, a field-level error collector that unwraps to
//     ErrValidation.
//
// Use these helpers when wiring new components so error handling and
// observability stay uniform across the service.
package services

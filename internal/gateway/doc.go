// Package gateway talks to the generative AI provider on behalf of the
// capture flow.
//
// Four capabilities are exposed through the Capabilities interface: Describe,
// Augment, Generate and Transcribe. The Gemini transport calls the REST API
// directly and retries transient HTTP failures with exponential backoff;
// Describe and Transcribe additionally retry once against a fallback model
// when the primary model fails for any reason other than a safety block or a
// cancelled context. The Remote transport forwards the same calls to another
// server exposing the capability endpoints.
//
// Failures carry a Kind so callers can tell a safety block or a missing image
// apart from ordinary provider errors.
package gateway

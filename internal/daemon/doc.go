// Package daemon coordinates the long-running Parallel Camera process.
//
// It binds the HTTP surface, runs session housekeeping for the capture
// orchestrator and enforces a single instance per data directory with a
// flock-based lock. Startup readiness checks are logged but never block the
// server: failing dependencies surface as request errors instead.
//
// Keep orchestration logic here: request handling lives in httpapi and the
// capture flow in capture, while the daemon focuses on startup, shutdown, and
// high level coordination.
package daemon

// Package config loads, normalizes, and validates Parallel Camera configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and overlays environment variables such as
// GEMINI_API_KEY. The Config type centralizes every knob the daemon and CLI
// need, so the store location, gateway credentials, mirror backend and HTTP
// authentication are all discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config

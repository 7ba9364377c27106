// Package config loads, normalizes, and validates shotline configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// SHOTLINE_LLM_API_KEY. The Config type centralizes every knob the stages,
// the job runner, and the CLI need, so working directories, concurrency
// limits, and external service credentials are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

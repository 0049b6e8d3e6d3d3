// Package config loads, normalizes, and validates harvester configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// HARVESTER_BASE_URL. The Config type centralizes every knob the daemon and
// CLI need: where tasks and the dedup index live, which listing site to scan,
// how large the worker pools are, and where finished downloads are uploaded.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

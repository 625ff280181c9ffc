// Package config loads, normalizes, and validates ingestion pipeline
// configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// HUGGING_FACE_HUB_TOKEN and OPENAI_API_KEY. The Config type centralizes every
// knob the orchestrator and CLI need, from attribution thresholds to pool
// sizes, allowing staging directories and external service credentials to be
// discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config

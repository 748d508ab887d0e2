// Package config loads, normalizes, and validates the TOML configuration
// that wires providers, engine endpoints, and workflow timing. Secrets may
// be supplied via environment variables; normalize applies env fallbacks
// before validation runs.
package config

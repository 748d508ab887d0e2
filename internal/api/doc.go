// Package api defines wire-format types and converters for the IPC layer.
// It translates internal pipeline, batch, and chain state into
// transport-friendly DTOs that the CLI and other consumers can render
// without coupling to internal types.
//
// DTOs use camelCase JSON tags. Internal enums (unit.Status,
// pipeline.Phase) are exposed as lowercase strings. Timestamps use RFC3339
// with milliseconds.
package api

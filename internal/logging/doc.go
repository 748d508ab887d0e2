// Package logging wraps log/slog with the attribute helpers, context field
// extraction, and handler construction used across gridflow. All packages
// log through *slog.Logger values built here; tests use NewNop.
package logging

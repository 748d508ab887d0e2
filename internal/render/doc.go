// Package render defines the capability contract shared by every rendering
// backend, the error taxonomy schedulers classify failures with, and the
// registry used to resolve the active backend for a job.
//
// Concrete adapters live in subpackages (gemini, kling, sdwebui, comfy) and
// map their own wire protocols onto the Provider interface. Orchestration
// code never branches on backend identity; it resolves an adapter from the
// Registry once per job and calls through the interface.
package render

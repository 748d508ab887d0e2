// Package daemon coordinates the long-running generation services behind
// a single-instance lock. It owns the frame pipeline, the sequential edit
// queue, the iterative chain runner, and the gallery store, and exposes
// the operations the IPC layer calls on behalf of the CLI.
package daemon

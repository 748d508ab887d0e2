// Package ipc exposes daemon control over JSON-RPC on a Unix domain
// socket. The CLI dials the socket and invokes the Gridflow service; the
// server delegates each call to the daemon and converts results into the
// api package's DTOs.
package ipc

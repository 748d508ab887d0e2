// Package unit models independently trackable pieces of generation work
// (frames, transitions, batch items, chain segments) and the tracker that
// owns their mutable state. The tracker is the single writer: schedulers
// request transitions, the tracker enforces the lifecycle graph.
package unit

// Package sim implements a worker-hosted rigid-body simulation: an
// isolated Host owning a Box2D world, the command/response protocol
// that drives it, and the deterministic scenario and benchmark harness
// built on top.
//
// # Reading Guide
//
// Start with these three files to understand the core:
//   - protocol.go: message vocabulary, payload shapes, error taxonomy
//   - engine.go: the world wrapper (bodies, stepping, collision capture)
//   - host.go: the single-goroutine message loop applying commands in order
//
// # Architecture
//
// A Controller and a Host share an in-process FIFO pipe (transport.go).
// The Controller correlates requests and responses by commandId
// (controller.go); the Host owns all mutable simulation state, so no
// locking exists anywhere on the hot path. Entity identity crosses the
// boundary only as external ids, translated through a bidirectional
// registry (registry.go); native solver handles never leave the Host.
//
// The harness (scenario.go, bench.go) populates worlds deterministically
// from a seeded PRNG (rng.go) and times fixed-step runs, either against
// a direct engine or through the full protocol, for throughput
// comparison under identical seeds.
package sim

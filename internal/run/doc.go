// Package run defines the data model shared by every part of the poller:
// run identifiers, the persisted run record, the job handed to the worker
// pool, and the outcome of a single upstream call.
//
// It also declares the two ports the engine depends on:
//   - [Store] persists runs and generates their identifiers
//   - [Upstream] sends one request to the faulty server
//
// Implementations of both ports must be safe for concurrent use; workers and
// per-run fan-out goroutines call them simultaneously.
package run

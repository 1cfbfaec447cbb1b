// Package runner executes a single polling run.
//
// An [Executor] keeps up to ConcurrentRequests upstream calls in flight for
// exactly the run window. A new call is launched as soon as a slot frees up,
// optionally paced by a per-run rate ceiling:
//
//	exec := runner.New(runner.Options{
//		ConcurrentRequests: 8,
//		Upstream:           client,
//	})
//	result := exec.Execute(ctx, run.Job{ID: id, Duration: 5 * time.Second})
//
// When the window closes no further calls start. Calls still in flight are
// abandoned: they finish against a context detached from the window and
// their outcomes are discarded. Only Ok outcomes that complete inside the
// window contribute to the [run.JobResult].
package runner

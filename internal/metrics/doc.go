// Package metrics collects per-run upstream call statistics and exposes
// service-level counters through OpenTelemetry.
//
// # Collector
//
// A [Collector] is created for every executed run and records the latency and
// outcome of each upstream call counted inside the run window:
//
//	c := metrics.NewCollector()
//	c.RecordCall(latency, outcome)
//	stats := c.Stats(elapsed)
//
// Latencies are tracked with an HDR histogram (1µs..60s, 3 significant
// figures). The collector is safe for concurrent use.
//
// # Instruments
//
// [Instruments] wraps the OpenTelemetry counters and histograms shared by the
// pool, the executor and the polling service. A nil *Instruments is valid and
// records nothing. [InitPrometheus] installs a meter provider backed by the
// Prometheus exporter and returns the /metrics handler.
package metrics

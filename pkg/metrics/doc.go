/*
Package metrics provides Prometheus metrics and health endpoints for hamster.

All metrics are package level variables registered with the default Prometheus
registry at init, so any package can update them without wiring. Handler
exposes them for scraping on the manager's HTTP listener at /metrics.

# Metrics

State gauges, refreshed by the manager's metrics collector:

	hamster_resources_total{status}       online / offline resources
	hamster_dapps_total{status}           online / paused DApps
	hamster_capacity_total{kind}          cpu / memory of online resources
	hamster_capacity_unused{kind}         unused cpu / memory of online resources
	hamster_epoch                         last epoch seen by the liveness sweep
	hamster_raft_is_leader                1 on the leader
	hamster_raft_log_index                last raft log index
	hamster_raft_applied_index            last applied raft log index

Counters and histograms, updated inline:

	hamster_operations_total{operation,result}
	hamster_allocations_total{result}
	hamster_redistributions_total{result}
	hamster_timeouts_total{kind}
	hamster_events_published_total{type}
	hamster_events_dropped_total
	hamster_api_requests_total{method,status}
	hamster_api_request_duration_seconds{method}
	hamster_scheduling_latency_seconds

# Timing

	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.APIRequestDuration, method)

# Health

Components report their state with RegisterComponent and UpdateComponent.
The HTTP handlers answer:

	/health   200 unless a registered component is unhealthy
	/ready    200 once raft, store and api are registered and healthy
	/live     always 200 while the process runs
*/
package metrics

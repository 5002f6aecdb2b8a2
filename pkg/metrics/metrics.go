package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// State metrics
	ResourcesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hamster_resources_total",
			Help: "Total number of computing resources by status",
		},
		[]string{"status"},
	)

	DAppsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hamster_dapps_total",
			Help: "Total number of DApps by status",
		},
		[]string{"status"},
	)

	CapacityTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hamster_capacity_total",
			Help: "Total capacity of online resources by kind (cpu, memory)",
		},
		[]string{"kind"},
	)

	CapacityUnused = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hamster_capacity_unused",
			Help: "Unused capacity of online resources by kind (cpu, memory)",
		},
		[]string{"kind"},
	)

	Epoch = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hamster_epoch",
			Help: "Current epoch",
		},
	)

	// Raft metrics
	RaftLeader = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hamster_raft_is_leader",
			Help: "Whether this node is the Raft leader (1 = leader, 0 = follower)",
		},
	)

	RaftLogIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hamster_raft_log_index",
			Help: "Current Raft log index",
		},
	)

	RaftAppliedIndex = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "hamster_raft_applied_index",
			Help: "Last applied Raft log index",
		},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hamster_api_requests_total",
			Help: "Total number of API requests by method and status",
		},
		[]string{"method", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hamster_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// Scheduler metrics
	SchedulingLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hamster_scheduling_latency_seconds",
			Help:    "Time taken to pick a resource for a workload in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AllocationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hamster_allocations_total",
			Help: "Total number of allocation attempts by result (placed, no_capacity)",
		},
		[]string{"result"},
	)

	// Provider metrics
	OperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hamster_operations_total",
			Help: "Total number of provider operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	RedistributionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hamster_redistributions_total",
			Help: "Total number of DApps moved off a lost resource by result (placed, failed)",
		},
		[]string{"result"},
	)

	TimeoutsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hamster_timeouts_total",
			Help: "Total number of heartbeat timeouts by kind (resource, dapp)",
		},
		[]string{"kind"},
	)

	// Reconciler metrics
	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hamster_tick_duration_seconds",
			Help:    "Time taken to advance the epoch and run the liveness sweep in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	TicksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hamster_ticks_total",
			Help: "Total number of epoch ticks submitted by result",
		},
		[]string{"result"},
	)

	// Agent metrics
	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hamster_agent_probes_total",
			Help: "Total number of DApp probes run by the agent by result",
		},
		[]string{"type", "result"},
	)

	AgentHeartbeatsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hamster_agent_heartbeats_total",
			Help: "Total number of resource heartbeats sent by the agent by result",
		},
		[]string{"result"},
	)

	// Event metrics
	EventsPublished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hamster_events_published_total",
			Help: "Total number of events published by type",
		},
		[]string{"type"},
	)

	EventsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hamster_events_dropped_total",
			Help: "Total number of events dropped because a subscriber was full",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ResourcesTotal)
	prometheus.MustRegister(DAppsTotal)
	prometheus.MustRegister(CapacityTotal)
	prometheus.MustRegister(CapacityUnused)
	prometheus.MustRegister(Epoch)
	prometheus.MustRegister(RaftLeader)
	prometheus.MustRegister(RaftLogIndex)
	prometheus.MustRegister(RaftAppliedIndex)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(SchedulingLatency)
	prometheus.MustRegister(AllocationsTotal)
	prometheus.MustRegister(OperationsTotal)
	prometheus.MustRegister(RedistributionsTotal)
	prometheus.MustRegister(TimeoutsTotal)
	prometheus.MustRegister(TickDuration)
	prometheus.MustRegister(TicksTotal)
	prometheus.MustRegister(ProbesTotal)
	prometheus.MustRegister(AgentHeartbeatsTotal)
	prometheus.MustRegister(EventsPublished)
	prometheus.MustRegister(EventsDropped)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Result converts an error to the result label used by counters
func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

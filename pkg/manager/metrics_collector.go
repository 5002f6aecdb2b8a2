package manager

import (
	"time"

	"github.com/cuemby/hamster/pkg/metrics"
)

// MetricsCollector collects metrics from the manager
type MetricsCollector struct {
	manager  *Manager
	interval time.Duration
	stopCh   chan struct{}
}

// NewMetricsCollector creates a new metrics collector
func NewMetricsCollector(mgr *Manager) *MetricsCollector {
	return &MetricsCollector{
		manager:  mgr,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *MetricsCollector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
}

func (c *MetricsCollector) collect() {
	c.collectPoolMetrics()
	c.collectRaftMetrics()
}

func (c *MetricsCollector) collectPoolMetrics() {
	stats, err := c.manager.Stats()
	if err != nil {
		metrics.UpdateComponent("store", false, err.Error())
		return
	}
	metrics.UpdateComponent("store", true, "")

	metrics.Epoch.Set(float64(stats.Epoch))

	for status, count := range stats.Resources {
		metrics.ResourcesTotal.WithLabelValues(string(status)).Set(float64(count))
	}
	for status, count := range stats.DApps {
		metrics.DAppsTotal.WithLabelValues(string(status)).Set(float64(count))
	}

	metrics.CapacityTotal.WithLabelValues("cpu").Set(float64(stats.TotalCPU))
	metrics.CapacityTotal.WithLabelValues("memory").Set(float64(stats.TotalMemory))
	metrics.CapacityUnused.WithLabelValues("cpu").Set(float64(stats.UnusedCPU))
	metrics.CapacityUnused.WithLabelValues("memory").Set(float64(stats.UnusedMemory))
}

func (c *MetricsCollector) collectRaftMetrics() {
	// Check if leader
	if c.manager.IsLeader() {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}

	stats := c.manager.GetRaftStats()
	if stats != nil {
		if lastIndex, ok := stats["last_log_index"].(uint64); ok {
			metrics.RaftLogIndex.Set(float64(lastIndex))
		}
		if appliedIndex, ok := stats["applied_index"].(uint64); ok {
			metrics.RaftAppliedIndex.Set(float64(appliedIndex))
		}
	}
}

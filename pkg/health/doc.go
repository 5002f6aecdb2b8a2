/*
Package health probes DApps running on a provider node.

The agent (pkg/agent) builds one Checker per hosted DApp with ForDeployment
and folds each probe into a Status. Only DApps whose Status is healthy are
listed in the resource heartbeat, so a DApp that stops answering misses its
heartbeats and is timed out by the epoch sweep on the manager.

# Probes

	cli deployment  image:port  → TCPChecker  dial public_ip:port
	                            → HTTPChecker GET http://public_ip:port/
	ipfs deployment cid         → no probe, always reported

# Verdict

A Status starts healthy. A success resets the failure count; Retries
consecutive failures outside the StartPeriod grace window mark it unhealthy.

	cfg := health.DefaultConfig()
	status := health.NewStatus()
	status.Update(checker.Check(ctx), cfg)
	if status.Healthy {
		// include the DApp in the heartbeat
	}
*/
package health

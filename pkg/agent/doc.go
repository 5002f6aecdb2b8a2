/*
Package agent keeps a provider node's resource and DApps alive on the manager.

The manager only learns that a node is up through heartbeats. An agent runs
next to the node's workloads and, once per epoch:

 1. reads its resource from the manager to learn which DApps are placed on it
 2. probes each cli DApp on public_ip:port (pkg/health)
 3. sends ResourceHeartbeat with the DApps that passed

A resource that stops beating is taken offline by the epoch sweep and its
DApps are moved; a DApp left out of the heartbeats for longer than the
timeout is destroyed.

# Usage

	c, _ := client.NewClient("manager:7070", "alice")
	a := agent.NewAgent(c, agent.Config{ResourceID: 3})
	a.Start()
	defer a.Stop()
*/
package agent

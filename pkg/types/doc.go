/*
Package types defines the core data structures used throughout hamster.

The types in this package describe the provider pool and the DApps placed on it.
They are plain values: every other package (storage, scheduler, provider, api)
passes them around by pointer and persists them as JSON.

# Core Types

Resource Pool:
  - ComputingResource: a node contributed by a provider, with capacity and status
  - ResourceConfig: total and unused CPU/memory, with UseResource/ReleaseResource
  - ResourceStatus: online or offline
  - RankEntry: (score, resource id) pair kept in the capacity-ordered rank

Deployments:
  - Deployment: requested CPU/memory/replicas and the launch method
  - DeploymentMethod: tagged union of CliMethod (image, port) and IpfsMethod (cid)
  - DApp: a running instance bound to one resource
  - DAppStatus: online, paused, destroyed

# Capacity Accounting

ResourceConfig never lets unused capacity leave the [0, total] range:

	cfg := types.NewResourceConfig(4, 4)
	cfg.UseResource(2, 2)     // true, unused (2, 2)
	cfg.UseResource(4, 4)     // false, unchanged
	cfg.ReleaseResource(3, 1) // false, only 2 cores are in use
	cfg.ReleaseResource(2, 2) // true, back to (4, 4)

Arithmetic saturates instead of wrapping.

# Identifiers and References

Resources, deployments and DApps are addressed by sequential uint64 ids. References
between them (resource → DApp ids, DApp → resource id, DApp → deployment id) are ids
resolved through the store, never shared pointers. ComputingResource.DApps is kept
sorted so membership checks and inserts use binary search (see InsertSorted).

# Time

LastHeartbeat fields hold epochs, not wall-clock time. An epoch is one tick of the
liveness driver, so heartbeat comparisons stay deterministic when the command log
is replayed.
*/
package types

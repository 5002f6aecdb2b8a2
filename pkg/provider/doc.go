/*
Package provider implements the hamster compute pool: resource registration,
DApp placement, liveness tracking and recovery.

# Entities

A ComputingResource is a node contributed by an account. It has a fixed total
cpu and memory, the unused part of both, the set of DApps it hosts and the
epoch of its last heartbeat. A Deployment is the shape and launch method of a
request; a DApp is one placed instance of it, bound to exactly one resource and
known to its owner by a name that is unique per owner.

# Operations

	RegisterResource     add an online node with full capacity
	ResourceHeartbeat    refresh a node and the DApps it reports
	OfflineResource      owner removes a node; its DApps move elsewhere
	RequestDeployment    place a new DApp on the smallest node that fits
	EndDeployment        stop a DApp and free its capacity
	ChangeSpecification  re-place a DApp with a new shape under the same name
	DAppHeartbeat        refresh a DApp
	Tick                 advance the epoch and sweep for timed out entities
	Genesis              load initial resources into an empty state

Each operation runs inside one storage transaction. Validation failures return
a sentinel error (ErrRepeatDAppName, ErrInstantiate, ErrNotHaveDApp, ...) and
leave the state untouched. Events are buffered while the transaction runs and
published only after it commits, so a failed operation never notifies anyone.

# Placement

Placement is delegated to pkg/scheduler, which keeps online resources ranked by
unused cpu plus unused memory and picks the first one in ascending order that
fits both dimensions:

	N1(4,4) N2(2,2)
	request (2,2)  → N2        smallest sufficient
	request (3,3)  → N1
	request (4,4)  → ErrInstantiate

# Liveness

Tick(epoch) moves the epoch forward and then:

 1. every online resource whose last heartbeat is more than the timeout
    (default 300 epochs) behind goes offline, leaves the rank and has its
    DApps moved to other resources (resource.down)
 2. every online DApp whose last heartbeat is more than the timeout behind is
    destroyed (dapp.timeout, dapp.stopped, deployment.ended)

Moved DApps start with a fresh heartbeat, so step 2 does not destroy them in
the same sweep. An offline resource that heartbeats again comes back online.

# Redistribution

When a resource leaves, each of its DApps is detached (capacity released),
placed again with the same shape and announced with a new deployment.placed
event. A DApp that fits nowhere is destroyed; the names of all such DApps are
returned and published in one redistribution.failed event.

# Consistency

Check verifies the invariants tying the entities together: the rank is
strictly ordered and holds exactly the online resources with their current
score, capacity accounting matches the hosted DApps, every DApp and resource
reference each other, and the owner and name indexes match the entities.
*/
package provider

/*
Package scheduler places DApp workloads on computing resources.

# Rank

The rank lists every online resource once, ordered ascending by score and then
by resource id, where the score is unused cpu plus unused memory:

	[(2, r7) (6, r1) (6, r4) (12, r0)]

Insert keeps the order with a binary search and replaces any older entry for the
same resource, so a resource can never be ranked twice.

# Placement

Allocate walks the rank from the smallest score upwards and reserves the
request on the first resource where both cpu and memory fit. That is the
smallest sufficient resource: small requests fill up small nodes and large
nodes stay available for large requests. The chosen resource is re-ranked with
its reduced score before Allocate returns.

	resource, err := sched.Allocate(tx, 2, 4)
	if errors.Is(err, scheduler.ErrNoCapacity) {
		// nothing fits, or the rank is empty
	}

Release gives capacity back and re-ranks the resource if it is still online.
Track and Untrack add and remove rank entries when a resource comes online or
goes away.

The scheduler keeps no state. Every call reads and writes the rank inside the
caller's storage transaction, so a failed provider operation also rolls back
any placement it made.
*/
package scheduler

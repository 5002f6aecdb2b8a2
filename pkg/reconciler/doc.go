/*
Package reconciler drives the epoch clock of a Hamster manager.

Time in the pool is measured in epochs. Heartbeats record the epoch at which
they arrived and the liveness sweep compares them against the current epoch.
The reconciler is what makes epochs pass: every interval (6 seconds by
default) the leader submits a Tick for the next epoch.

	┌──────────────────────────────────────┐
	│   Reconciliation Loop (every 6s)     │
	└──────────────────┬───────────────────┘
	                   │ leader only
	                   ▼
	          Tick(Epoch() + 1)
	                   │
	     ┌─────────────┼─────────────────┐
	     ▼             ▼                 ▼
	 silent        their DApps       silent DApps
	 resources     moved to the      destroyed
	 go offline    smallest fit

A resource or DApp is silent when more than the configured timeout of epochs
passed since its last heartbeat. With the default of 300 epochs and a 6 second
interval that is half an hour.

Followers skip the tick, so a single epoch is never advanced twice.
*/
package reconciler

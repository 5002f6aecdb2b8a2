/*
Package manager runs the Hamster provider behind a Raft log.

Every operation that changes the pool (registering or removing a resource,
heartbeats, deployments, epoch ticks, genesis) is encoded as a Command,
appended to the Raft log and applied by HamsterFSM. The FSM hands each
command to a provider.Provider, so operations are applied one at a time in
log order and each one either commits all of its writes or none of them.

# Architecture

	┌──────────────────── MANAGER ────────────────────┐
	│                                                  │
	│   API / reconciler                               │
	│        │ RegisterResource, RequestDeployment,    │
	│        │ Tick, ...                               │
	│        ▼                                         │
	│   Manager.Apply ──► raft.Apply (5s timeout)      │
	│                          │                       │
	│                          ▼                       │
	│                  HamsterFSM.Apply                │
	│                          │                       │
	│                          ▼                       │
	│        provider.Provider ──► storage.Store       │
	│                │                                 │
	│                ▼                                 │
	│          events.Broker                           │
	└──────────────────────────────────────────────────┘

Reads (GetResource, ListDApps, Rank, Stats, ...) bypass the log and are
served from the local store.

# Replay

The Raft log index of each applied command is written in the same store
transaction as the command's own writes. After a restart Raft replays the log
from the last snapshot; entries whose index is already recorded in the store
are skipped, so a persistent store is never modified twice by the same entry.
Snapshots carry the store dump and the applied index.

# Storage

With InMemory set the state, log and snapshots live in memory and nothing
survives Shutdown. Otherwise DataDir holds:

	hamster.db        provider state (bbolt)
	raft-log.db       Raft log (raft-boltdb)
	raft-stable.db    Raft stable store (raft-boltdb)
	snapshots/        Raft snapshots

# Usage

	mgr, err := manager.NewManager(&manager.Config{
		NodeID:   "manager-1",
		BindAddr: "127.0.0.1:7946",
		DataDir:  "/var/lib/hamster",
	})
	if err != nil {
		return err
	}
	if err := mgr.Bootstrap(); err != nil {
		return err
	}
	defer mgr.Shutdown()

	id, err := mgr.RegisterResource("alice", "12D3KooW...", "203.0.113.7", 4, 8)

Genesis resources passed in Config are loaded only when the cluster is
bootstrapped for the first time.
*/
package manager

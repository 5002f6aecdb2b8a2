/*
Package storage provides transactional state persistence for hamster.

All provider state lives behind the Store interface: resources, deployment specs,
DApps, the ownership and name indexes, the capacity rank and a handful of
counters. Every public provider operation runs inside one Update call, so either
all of its writes are committed or none are.

# Backends

BoltStore keeps state in <dataDir>/hamster.db using BoltDB (bbolt). Each entity
type has its own bucket and values are JSON encoded:

	resources       big-endian resource id  -> ComputingResource
	deployments     big-endian deployment id -> Deployment
	dapps           big-endian dapp id       -> DApp
	user_resources  account                  -> []uint64 (sorted)
	user_dapps      account                  -> []string (sorted)
	dapp_names      account 0x00 name        -> big-endian dapp id
	meta            rank, counter/<name>

Ids are stored big-endian so bucket iteration yields them in numeric order.

MemoryStore keeps the same layout in maps. Update copies the state, runs the
transaction against the copy and swaps it in only on success, which gives the
same all-or-nothing behaviour as a bolt transaction. It backs unit tests and the
manager's --in-memory mode.

# Usage

	store, err := storage.NewBoltStore(dataDir)
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.Update(func(tx storage.Tx) error {
		id, err := tx.NextID(storage.CounterResourceIndex)
		if err != nil {
			return err
		}
		return tx.PutResource(types.NewComputingResource(id, owner, peer, ip, 4, 8, 0))
	})

Missing entities are reported with an error wrapping ErrNotFound:

	if errors.Is(err, storage.ErrNotFound) { ... }

# Snapshots

Dump and Load move the complete state as raw bucket contents. The raft FSM in
pkg/manager uses them for snapshots and restores.
*/
package storage

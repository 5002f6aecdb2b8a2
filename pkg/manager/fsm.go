package manager

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/log"
	"github.com/cuemby/hamster/pkg/provider"
	"github.com/cuemby/hamster/pkg/storage"
	"github.com/cuemby/hamster/pkg/types"
	"github.com/hashicorp/raft"
	"github.com/rs/zerolog"
)

// Command represents a state change operation in the Raft log
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

// Command ops
const (
	OpRegisterResource    = "register_resource"
	OpResourceHeartbeat   = "resource_heartbeat"
	OpOfflineResource     = "offline_resource"
	OpRequestDeployment   = "request_deployment"
	OpEndDeployment       = "end_deployment"
	OpChangeSpecification = "change_specification"
	OpDAppHeartbeat       = "dapp_heartbeat"
	OpTick                = "tick"
	OpGenesis             = "genesis"
)

// Command payloads
type registerResourceCmd struct {
	Owner    types.AccountID `json:"owner"`
	PeerID   string          `json:"peer_id"`
	PublicIP string          `json:"public_ip"`
	CPU      uint32          `json:"cpu"`
	Memory   uint32          `json:"memory"`
}

type resourceCmd struct {
	Owner      types.AccountID `json:"owner"`
	ResourceID uint64          `json:"resource_id"`
	DApps      []uint64        `json:"dapps,omitempty"`
}

type deploymentCmd struct {
	Owner   types.AccountID            `json:"owner"`
	Request provider.DeploymentRequest `json:"request"`
}

type dappCmd struct {
	Owner  types.AccountID `json:"owner"`
	DAppID uint64          `json:"dapp_id,omitempty"`
	Name   string          `json:"name,omitempty"`
}

type tickCmd struct {
	Epoch uint64 `json:"epoch"`
}

// HamsterFSM implements the Raft Finite State Machine for the provider state.
// Each log entry is one provider operation. The index of the entry is stored
// in the same transaction as the operation's writes, so entries already
// reflected in a persistent store are skipped when the log is replayed.
type HamsterFSM struct {
	mu       sync.Mutex
	store    storage.Store
	indexed  *indexedStore
	provider *provider.Provider
	logger   zerolog.Logger
}

// NewHamsterFSM creates a new FSM instance
func NewHamsterFSM(store storage.Store, publisher events.Publisher, timeoutEpochs uint64) *HamsterFSM {
	indexed := &indexedStore{Store: store}
	return &HamsterFSM{
		store:    store,
		indexed:  indexed,
		provider: provider.NewProvider(indexed, publisher, timeoutEpochs),
		logger:   log.WithComponent("fsm"),
	}
}

// Apply applies a Raft log entry to the FSM. The response is the operation's
// result value or its error.
func (f *HamsterFSM) Apply(entry *raft.Log) interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()

	applied, err := storage.AppliedIndex(f.store)
	if err != nil {
		return fmt.Errorf("failed to read applied index: %w", err)
	}
	if entry.Index <= applied {
		f.logger.Debug().Uint64("index", entry.Index).Msg("Skipping entry already in store")
		return nil
	}

	var cmd Command
	if err := json.Unmarshal(entry.Data, &cmd); err != nil {
		return fmt.Errorf("failed to unmarshal command: %w", err)
	}

	f.indexed.index = entry.Index
	return f.dispatch(cmd)
}

func (f *HamsterFSM) dispatch(cmd Command) interface{} {
	p := f.provider

	switch cmd.Op {
	case OpRegisterResource:
		var c registerResourceCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return err
		}
		return result(p.RegisterResource(c.Owner, c.PeerID, c.PublicIP, c.CPU, c.Memory))

	case OpResourceHeartbeat:
		var c resourceCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return err
		}
		return p.ResourceHeartbeat(c.Owner, c.ResourceID, c.DApps)

	case OpOfflineResource:
		var c resourceCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return err
		}
		return result(p.OfflineResource(c.Owner, c.ResourceID))

	case OpRequestDeployment:
		var c deploymentCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return err
		}
		return result(p.RequestDeployment(c.Owner, c.Request))

	case OpEndDeployment:
		var c dappCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return err
		}
		return p.EndDeployment(c.Owner, c.DAppID)

	case OpChangeSpecification:
		var c deploymentCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return err
		}
		return result(p.ChangeSpecification(c.Owner, c.Request))

	case OpDAppHeartbeat:
		var c dappCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return err
		}
		return p.DAppHeartbeat(c.Owner, c.Name)

	case OpTick:
		var c tickCmd
		if err := json.Unmarshal(cmd.Data, &c); err != nil {
			return err
		}
		return result(p.Tick(c.Epoch))

	case OpGenesis:
		var g provider.Genesis
		if err := json.Unmarshal(cmd.Data, &g); err != nil {
			return err
		}
		return p.Genesis(g)

	default:
		return fmt.Errorf("unknown command: %s", cmd.Op)
	}
}

// result folds a (value, error) pair into one FSM response
func result[T any](v T, err error) interface{} {
	if err != nil {
		return err
	}
	return v
}

// Snapshot creates a point-in-time snapshot of the FSM
// This is called periodically by Raft to compact the log
func (f *HamsterFSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	applied, err := storage.AppliedIndex(f.store)
	if err != nil {
		return nil, err
	}
	dump, err := f.store.Dump()
	if err != nil {
		return nil, fmt.Errorf("failed to dump store: %w", err)
	}

	return &HamsterSnapshot{AppliedIndex: applied, State: dump}, nil
}

// Restore replaces the state with a snapshot. A persistent store that is
// already at or past the snapshot is left as it is.
func (f *HamsterFSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snapshot HamsterSnapshot
	if err := json.NewDecoder(rc).Decode(&snapshot); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	applied, err := storage.AppliedIndex(f.store)
	if err != nil {
		return err
	}
	if applied >= snapshot.AppliedIndex {
		f.logger.Info().
			Uint64("store_index", applied).
			Uint64("snapshot_index", snapshot.AppliedIndex).
			Msg("Store is current, snapshot not restored")
		return nil
	}

	if err := f.store.Load(snapshot.State); err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	f.logger.Info().Uint64("snapshot_index", snapshot.AppliedIndex).Msg("State restored from snapshot")
	return nil
}

// HamsterSnapshot represents a point-in-time snapshot of the provider state
type HamsterSnapshot struct {
	AppliedIndex uint64       `json:"applied_index"`
	State        storage.Dump `json:"state"`
}

// Persist writes the snapshot to the given SnapshotSink
func (s *HamsterSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()

	if err != nil {
		sink.Cancel()
	}

	return err
}

// Release releases the snapshot resources
func (s *HamsterSnapshot) Release() {}

// indexedStore records the log index being applied in every write
// transaction the provider commits
type indexedStore struct {
	storage.Store
	index uint64
}

func (s *indexedStore) Update(fn func(tx storage.Tx) error) error {
	return s.Store.Update(func(tx storage.Tx) error {
		if err := fn(tx); err != nil {
			return err
		}
		return tx.SetCounter(storage.CounterAppliedIndex, s.index)
	})
}

package manager

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/hamster/pkg/events"
	"github.com/cuemby/hamster/pkg/log"
	"github.com/cuemby/hamster/pkg/metrics"
	"github.com/cuemby/hamster/pkg/provider"
	"github.com/cuemby/hamster/pkg/storage"
	"github.com/cuemby/hamster/pkg/types"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"
)

// ErrNotBootstrapped is returned when a command is submitted before Bootstrap
var ErrNotBootstrapped = errors.New("raft not initialized")

// Manager runs the provider behind a single-node Raft log. Every mutating
// operation is submitted as a command and applied by the FSM, which gives a
// total order of operations and durable, snapshotted history.
type Manager struct {
	nodeID   string
	bindAddr string
	dataDir  string
	inMemory bool
	genesis  *provider.Genesis

	raft        *raft.Raft
	fsm         *HamsterFSM
	store       storage.Store
	reader      *provider.Provider
	eventBroker *events.Broker
	closers     []io.Closer
	logger      zerolog.Logger
}

// Config holds configuration for creating a Manager
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	// InMemory keeps the state, the log and snapshots in memory
	InMemory bool

	// TimeoutEpochs is the heartbeat timeout; zero selects the provider default
	TimeoutEpochs uint64

	// Genesis is loaded when the cluster is bootstrapped for the first time
	Genesis *provider.Genesis
}

// NewManager creates a new Manager instance
func NewManager(cfg *Config) (*Manager, error) {
	var store storage.Store
	if cfg.InMemory {
		store = storage.NewMemoryStore()
	} else {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		bolt, err := storage.NewBoltStore(cfg.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to create store: %w", err)
		}
		store = bolt
	}

	eventBroker := events.NewBroker()
	eventBroker.Start()

	m := &Manager{
		nodeID:      cfg.NodeID,
		bindAddr:    cfg.BindAddr,
		dataDir:     cfg.DataDir,
		inMemory:    cfg.InMemory,
		genesis:     cfg.Genesis,
		fsm:         NewHamsterFSM(store, eventBroker, cfg.TimeoutEpochs),
		store:       store,
		reader:      provider.NewProvider(store, nil, cfg.TimeoutEpochs),
		eventBroker: eventBroker,
		logger:      log.WithComponent("manager"),
	}

	metrics.RegisterComponent("store", true, "")
	return m, nil
}

// Bootstrap starts Raft with this node as the only voter. On first start the
// cluster is bootstrapped and the genesis state applied; on restart the
// existing log and snapshots are reused.
func (m *Manager) Bootstrap() error {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(m.nodeID)
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.CommitTimeout = 50 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond
	config.LogOutput = log.WithComponent("raft")
	config.LogLevel = "WARN"

	var (
		transport     raft.Transport
		snapshotStore raft.SnapshotStore
		logStore      raft.LogStore
		stableStore   raft.StableStore
	)

	if m.inMemory {
		_, inmem := raft.NewInmemTransport(raft.ServerAddress(m.nodeID))
		transport = inmem
		snapshotStore = raft.NewInmemSnapshotStore()
		mem := raft.NewInmemStore()
		logStore, stableStore = mem, mem
	} else {
		raftLog := log.WithComponent("raft")

		addr, err := net.ResolveTCPAddr("tcp", m.bindAddr)
		if err != nil {
			return fmt.Errorf("failed to resolve bind address: %w", err)
		}
		tcp, err := raft.NewTCPTransport(m.bindAddr, addr, 3, 10*time.Second, raftLog)
		if err != nil {
			return fmt.Errorf("failed to create transport: %w", err)
		}
		transport = tcp

		snapshotStore, err = raft.NewFileSnapshotStore(m.dataDir, 2, raftLog)
		if err != nil {
			return fmt.Errorf("failed to create snapshot store: %w", err)
		}

		boltLog, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-log.db"))
		if err != nil {
			return fmt.Errorf("failed to create log store: %w", err)
		}
		m.closers = append(m.closers, boltLog)

		boltStable, err := raftboltdb.NewBoltStore(filepath.Join(m.dataDir, "raft-stable.db"))
		if err != nil {
			return fmt.Errorf("failed to create stable store: %w", err)
		}
		m.closers = append(m.closers, boltStable)

		logStore, stableStore = boltLog, boltStable
	}

	r, err := raft.NewRaft(config, m.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return fmt.Errorf("failed to create raft: %w", err)
	}
	m.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{
				ID:      config.LocalID,
				Address: transport.LocalAddr(),
			},
		},
	}

	fresh := true
	if err := m.raft.BootstrapCluster(configuration).Error(); err != nil {
		if !errors.Is(err, raft.ErrCantBootstrap) {
			return fmt.Errorf("failed to bootstrap cluster: %w", err)
		}
		fresh = false
	}

	if err := m.WaitForLeader(10 * time.Second); err != nil {
		return err
	}
	metrics.RegisterComponent("raft", true, "")

	if fresh && m.genesis != nil {
		if err := m.Genesis(*m.genesis); err != nil {
			return fmt.Errorf("failed to apply genesis: %w", err)
		}
	}

	m.logger.Info().
		Str("node_id", m.nodeID).
		Bool("fresh", fresh).
		Bool("in_memory", m.inMemory).
		Msg("Manager bootstrapped")
	return nil
}

// WaitForLeader blocks until this node leads the cluster or timeout passes
func (m *Manager) WaitForLeader(timeout time.Duration) error {
	if m.raft == nil {
		return ErrNotBootstrapped
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.IsLeader() {
			return nil
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("no leader elected within %s", timeout)
}

// IsLeader returns true if this node is the Raft leader
func (m *Manager) IsLeader() bool {
	if m.raft == nil {
		return false
	}
	return m.raft.State() == raft.Leader
}

// GetRaftStats returns Raft statistics
func (m *Manager) GetRaftStats() map[string]interface{} {
	if m.raft == nil {
		return nil
	}

	stats := make(map[string]interface{})
	stats["state"] = m.raft.State().String()
	stats["last_log_index"] = m.raft.LastIndex()
	stats["applied_index"] = m.raft.AppliedIndex()
	stats["leader"] = string(m.raft.Leader())

	return stats
}

// Snapshot forces a Raft snapshot
func (m *Manager) Snapshot() error {
	if m.raft == nil {
		return ErrNotBootstrapped
	}
	return m.raft.Snapshot().Error()
}

// GetEventBroker returns the event broker
func (m *Manager) GetEventBroker() *events.Broker {
	return m.eventBroker
}

// Apply submits a command to the Raft log and returns the FSM's response
func (m *Manager) Apply(cmd Command) (interface{}, error) {
	if m.raft == nil {
		return nil, ErrNotBootstrapped
	}

	data, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	future := m.raft.Apply(data, 5*time.Second)
	if err := future.Error(); err != nil {
		return nil, fmt.Errorf("failed to apply command: %w", err)
	}

	resp := future.Response()
	if err, ok := resp.(error); ok && err != nil {
		return nil, err
	}
	return resp, nil
}

// submit encodes payload as the data of an op command and applies it
func submit[T any](m *Manager, op string, payload interface{}) (T, error) {
	var zero T

	data, err := json.Marshal(payload)
	if err != nil {
		return zero, err
	}
	resp, err := m.Apply(Command{Op: op, Data: data})
	if err != nil {
		return zero, err
	}
	if resp == nil {
		return zero, nil
	}
	v, ok := resp.(T)
	if !ok {
		return zero, fmt.Errorf("unexpected %s response %T", op, resp)
	}
	return v, nil
}

// RegisterResource adds a node to the pool
func (m *Manager) RegisterResource(owner types.AccountID, peerID, publicIP string, cpu, memory uint32) (uint64, error) {
	return submit[uint64](m, OpRegisterResource, registerResourceCmd{
		Owner:    owner,
		PeerID:   peerID,
		PublicIP: publicIP,
		CPU:      cpu,
		Memory:   memory,
	})
}

// ResourceHeartbeat records a liveness report from a node
func (m *Manager) ResourceHeartbeat(owner types.AccountID, id uint64, dappIDs []uint64) error {
	_, err := submit[any](m, OpResourceHeartbeat, resourceCmd{Owner: owner, ResourceID: id, DApps: dappIDs})
	return err
}

// OfflineResource removes a node from the pool
func (m *Manager) OfflineResource(owner types.AccountID, id uint64) ([]string, error) {
	return submit[[]string](m, OpOfflineResource, resourceCmd{Owner: owner, ResourceID: id})
}

// RequestDeployment places a new DApp
func (m *Manager) RequestDeployment(owner types.AccountID, req provider.DeploymentRequest) (uint64, error) {
	return submit[uint64](m, OpRequestDeployment, deploymentCmd{Owner: owner, Request: req})
}

// EndDeployment stops a DApp
func (m *Manager) EndDeployment(owner types.AccountID, dappID uint64) error {
	_, err := submit[any](m, OpEndDeployment, dappCmd{Owner: owner, DAppID: dappID})
	return err
}

// ChangeSpecification re-places a DApp with a new shape
func (m *Manager) ChangeSpecification(owner types.AccountID, req provider.DeploymentRequest) (uint64, error) {
	return submit[uint64](m, OpChangeSpecification, deploymentCmd{Owner: owner, Request: req})
}

// DAppHeartbeat records a liveness report for a DApp
func (m *Manager) DAppHeartbeat(owner types.AccountID, name string) error {
	_, err := submit[any](m, OpDAppHeartbeat, dappCmd{Owner: owner, Name: name})
	return err
}

// Tick advances the epoch and runs the liveness sweep
func (m *Manager) Tick(epoch uint64) (*provider.SweepResult, error) {
	return submit[*provider.SweepResult](m, OpTick, tickCmd{Epoch: epoch})
}

// Genesis loads initial resources into an empty state
func (m *Manager) Genesis(g provider.Genesis) error {
	_, err := submit[any](m, OpGenesis, g)
	return err
}

// Read operations are served from the local store

// Epoch returns the current epoch
func (m *Manager) Epoch() (uint64, error) {
	return m.reader.Epoch()
}

// TimeoutEpochs returns the heartbeat timeout in epochs
func (m *Manager) TimeoutEpochs() uint64 {
	return m.reader.TimeoutEpochs()
}

// GetResource returns a resource by id
func (m *Manager) GetResource(id uint64) (*types.ComputingResource, error) {
	return m.reader.GetResource(id)
}

// ListResources returns every resource
func (m *Manager) ListResources() ([]*types.ComputingResource, error) {
	return m.reader.ListResources()
}

// GetDApp returns a DApp by id
func (m *Manager) GetDApp(id uint64) (*types.DApp, error) {
	return m.reader.GetDApp(id)
}

// GetDAppByName returns a DApp by owner and name
func (m *Manager) GetDAppByName(owner types.AccountID, name string) (*types.DApp, error) {
	return m.reader.GetDAppByName(owner, name)
}

// ListDApps returns every DApp
func (m *Manager) ListDApps() ([]*types.DApp, error) {
	return m.reader.ListDApps()
}

// GetDeployment returns a deployment spec by id
func (m *Manager) GetDeployment(id uint64) (*types.Deployment, error) {
	return m.reader.GetDeployment(id)
}

// UserResources returns the resource ids owner holds
func (m *Manager) UserResources(owner types.AccountID) ([]uint64, error) {
	return m.reader.UserResources(owner)
}

// UserDApps returns the DApp names owner holds
func (m *Manager) UserDApps(owner types.AccountID) ([]string, error) {
	return m.reader.UserDApps(owner)
}

// Rank returns the capacity rank
func (m *Manager) Rank() ([]types.RankEntry, error) {
	return m.reader.Rank()
}

// Check verifies state invariants
func (m *Manager) Check() error {
	return m.reader.Check()
}

// Stats summarizes the pool
func (m *Manager) Stats() (*provider.Stats, error) {
	return m.reader.Stats()
}

// Shutdown gracefully shuts down the manager
func (m *Manager) Shutdown() error {
	if m.eventBroker != nil {
		m.eventBroker.Stop()
	}

	if m.raft != nil {
		if err := m.raft.Shutdown().Error(); err != nil {
			return fmt.Errorf("failed to shutdown raft: %w", err)
		}
		metrics.UpdateComponent("raft", false, "shut down")
	}

	for _, c := range m.closers {
		if err := c.Close(); err != nil {
			m.logger.Warn().Err(err).Msg("Failed to close raft resource")
		}
	}

	if m.store != nil {
		if err := m.store.Close(); err != nil {
			return fmt.Errorf("failed to close store: %w", err)
		}
		metrics.UpdateComponent("store", false, "closed")
	}

	return nil
}

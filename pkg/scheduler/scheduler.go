package scheduler

import (
	"errors"
	"fmt"

	"github.com/cuemby/hamster/pkg/log"
	"github.com/cuemby/hamster/pkg/metrics"
	"github.com/cuemby/hamster/pkg/storage"
	"github.com/cuemby/hamster/pkg/types"
	"github.com/rs/zerolog"
)

// ErrNoCapacity is returned when no online resource can fit a request
var ErrNoCapacity = errors.New("no resource with enough capacity")

// Scheduler places workloads on resources using the rank: the first resource
// in ascending score order that can fit the request wins, so the smallest
// sufficient resource is used and large ones are kept free.
//
// The scheduler holds no state of its own. All reads and writes go through the
// caller's transaction.
type Scheduler struct {
	logger zerolog.Logger
}

// NewScheduler creates a new scheduler
func NewScheduler() *Scheduler {
	return &Scheduler{
		logger: log.WithComponent("scheduler"),
	}
}

// Allocate reserves cpu and memory on the best fitting online resource and
// returns it with its updated capacity. The resource and the rank are written
// back through tx.
func (s *Scheduler) Allocate(tx storage.Tx, cpu, memory uint32) (*types.ComputingResource, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.SchedulingLatency)

	rank, err := s.load(tx)
	if err != nil {
		return nil, err
	}

	for _, entry := range rank {
		resource, err := tx.GetResource(entry.ResourceID)
		if err != nil {
			return nil, fmt.Errorf("rank entry for resource %d: %w", entry.ResourceID, err)
		}
		if resource.Status != types.ResourceStatusOnline {
			continue
		}
		if !resource.Config.UseResource(cpu, memory) {
			continue
		}

		rank = rank.Insert(types.RankEntry{Score: resource.Config.Score(), ResourceID: resource.Index})
		if err := tx.PutResource(resource); err != nil {
			return nil, err
		}
		if err := tx.PutRank(rank); err != nil {
			return nil, err
		}

		s.logger.Debug().
			Uint64("resource_id", resource.Index).
			Uint32("cpu", cpu).
			Uint32("memory", memory).
			Uint64("score", resource.Config.Score()).
			Msg("Allocated capacity")
		metrics.AllocationsTotal.WithLabelValues("placed").Inc()
		return resource, nil
	}

	metrics.AllocationsTotal.WithLabelValues("no_capacity").Inc()
	return nil, ErrNoCapacity
}

// Release returns cpu and memory to resource and writes it back. An online
// resource is re-ranked with its new score; offline resources stay out of
// the rank.
func (s *Scheduler) Release(tx storage.Tx, resource *types.ComputingResource, cpu, memory uint32) error {
	if !resource.Config.ReleaseResource(cpu, memory) {
		return fmt.Errorf("resource %d: releasing %d cpu / %d memory exceeds usage", resource.Index, cpu, memory)
	}
	if err := tx.PutResource(resource); err != nil {
		return err
	}
	if resource.Status != types.ResourceStatusOnline {
		return nil
	}
	return s.Track(tx, resource)
}

// Track inserts or refreshes the rank entry of a resource
func (s *Scheduler) Track(tx storage.Tx, resource *types.ComputingResource) error {
	rank, err := s.load(tx)
	if err != nil {
		return err
	}
	rank = rank.Insert(types.RankEntry{Score: resource.Config.Score(), ResourceID: resource.Index})
	return tx.PutRank(rank)
}

// Untrack removes a resource from the rank
func (s *Scheduler) Untrack(tx storage.Tx, resourceID uint64) error {
	rank, err := s.load(tx)
	if err != nil {
		return err
	}
	if rank.Find(resourceID) < 0 {
		return nil
	}
	return tx.PutRank(rank.Remove(resourceID))
}

// Rank returns the current rank
func (s *Scheduler) Rank(tx storage.Tx) (Rank, error) {
	return s.load(tx)
}

func (s *Scheduler) load(tx storage.Tx) (Rank, error) {
	entries, err := tx.GetRank()
	if err != nil {
		return nil, fmt.Errorf("failed to load rank: %w", err)
	}
	return Rank(entries), nil
}

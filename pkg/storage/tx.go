package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/cuemby/hamster/pkg/types"
)

var (
	// Bucket names
	bucketResources     = []byte("resources")
	bucketDeployments   = []byte("deployments")
	bucketDApps         = []byte("dapps")
	bucketUserResources = []byte("user_resources")
	bucketUserDApps     = []byte("user_dapps")
	bucketDAppNames     = []byte("dapp_names")
	bucketMeta          = []byte("meta")

	allBuckets = [][]byte{
		bucketResources,
		bucketDeployments,
		bucketDApps,
		bucketUserResources,
		bucketUserDApps,
		bucketDAppNames,
		bucketMeta,
	}

	keyRank = []byte("rank")
)

// kv is the raw bucket access both backends provide
type kv interface {
	get(bucket, key []byte) []byte
	put(bucket, key, value []byte) error
	delete(bucket, key []byte) error
	forEach(bucket []byte, fn func(k, v []byte) error) error
}

// txn implements Tx on top of a kv backend
type txn struct {
	kv kv
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func counterKey(name string) []byte {
	return []byte("counter/" + name)
}

func nameKey(owner types.AccountID, name string) []byte {
	key := make([]byte, 0, len(owner)+1+len(name))
	key = append(key, owner...)
	key = append(key, 0)
	return append(key, name...)
}

func (t *txn) getJSON(bucket, key []byte, v interface{}) (bool, error) {
	data := t.kv.get(bucket, key)
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("failed to decode %s entry: %w", bucket, err)
	}
	return true, nil
}

func (t *txn) putJSON(bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s entry: %w", bucket, err)
	}
	return t.kv.put(bucket, key, data)
}

// Counter operations
func (t *txn) Counter(name string) (uint64, error) {
	data := t.kv.get(bucketMeta, counterKey(name))
	if data == nil {
		return 0, nil
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt counter %s", name)
	}
	return binary.BigEndian.Uint64(data), nil
}

func (t *txn) SetCounter(name string, value uint64) error {
	return t.kv.put(bucketMeta, counterKey(name), itob(value))
}

// NextID returns the current value of the counter and advances it by one
func (t *txn) NextID(name string) (uint64, error) {
	id, err := t.Counter(name)
	if err != nil {
		return 0, err
	}
	if err := t.SetCounter(name, id+1); err != nil {
		return 0, err
	}
	return id, nil
}

// Resource operations
func (t *txn) GetResource(id uint64) (*types.ComputingResource, error) {
	var resource types.ComputingResource
	found, err := t.getJSON(bucketResources, itob(id), &resource)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("resource %d: %w", id, ErrNotFound)
	}
	return &resource, nil
}

func (t *txn) PutResource(resource *types.ComputingResource) error {
	return t.putJSON(bucketResources, itob(resource.Index), resource)
}

func (t *txn) DeleteResource(id uint64) error {
	return t.kv.delete(bucketResources, itob(id))
}

func (t *txn) ListResources() ([]*types.ComputingResource, error) {
	var resources []*types.ComputingResource
	err := t.kv.forEach(bucketResources, func(k, v []byte) error {
		var resource types.ComputingResource
		if err := json.Unmarshal(v, &resource); err != nil {
			return err
		}
		resources = append(resources, &resource)
		return nil
	})
	return resources, err
}

// Deployment operations
func (t *txn) GetDeployment(id uint64) (*types.Deployment, error) {
	var deployment types.Deployment
	found, err := t.getJSON(bucketDeployments, itob(id), &deployment)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("deployment %d: %w", id, ErrNotFound)
	}
	return &deployment, nil
}

func (t *txn) PutDeployment(deployment *types.Deployment) error {
	return t.putJSON(bucketDeployments, itob(deployment.ID), deployment)
}

func (t *txn) DeleteDeployment(id uint64) error {
	return t.kv.delete(bucketDeployments, itob(id))
}

func (t *txn) ListDeployments() ([]*types.Deployment, error) {
	var deployments []*types.Deployment
	err := t.kv.forEach(bucketDeployments, func(k, v []byte) error {
		var deployment types.Deployment
		if err := json.Unmarshal(v, &deployment); err != nil {
			return err
		}
		deployments = append(deployments, &deployment)
		return nil
	})
	return deployments, err
}

// DApp operations
func (t *txn) GetDApp(id uint64) (*types.DApp, error) {
	var dapp types.DApp
	found, err := t.getJSON(bucketDApps, itob(id), &dapp)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("dapp %d: %w", id, ErrNotFound)
	}
	return &dapp, nil
}

func (t *txn) PutDApp(dapp *types.DApp) error {
	return t.putJSON(bucketDApps, itob(dapp.ID), dapp)
}

func (t *txn) DeleteDApp(id uint64) error {
	return t.kv.delete(bucketDApps, itob(id))
}

func (t *txn) ListDApps() ([]*types.DApp, error) {
	var dapps []*types.DApp
	err := t.kv.forEach(bucketDApps, func(k, v []byte) error {
		var dapp types.DApp
		if err := json.Unmarshal(v, &dapp); err != nil {
			return err
		}
		dapps = append(dapps, &dapp)
		return nil
	})
	return dapps, err
}

// Ownership indexes
func (t *txn) GetUserResources(owner types.AccountID) ([]uint64, error) {
	var ids []uint64
	if _, err := t.getJSON(bucketUserResources, []byte(owner), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

func (t *txn) PutUserResources(owner types.AccountID, ids []uint64) error {
	if len(ids) == 0 {
		return t.kv.delete(bucketUserResources, []byte(owner))
	}
	return t.putJSON(bucketUserResources, []byte(owner), ids)
}

func (t *txn) GetUserDApps(owner types.AccountID) ([]string, error) {
	var names []string
	if _, err := t.getJSON(bucketUserDApps, []byte(owner), &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (t *txn) PutUserDApps(owner types.AccountID, names []string) error {
	if len(names) == 0 {
		return t.kv.delete(bucketUserDApps, []byte(owner))
	}
	return t.putJSON(bucketUserDApps, []byte(owner), names)
}

// ListOwners returns every account that owns a resource or a DApp name
func (t *txn) ListOwners() ([]types.AccountID, error) {
	seen := make(map[types.AccountID]bool)
	collect := func(k, v []byte) error {
		seen[types.AccountID(k)] = true
		return nil
	}
	if err := t.kv.forEach(bucketUserResources, collect); err != nil {
		return nil, err
	}
	if err := t.kv.forEach(bucketUserDApps, collect); err != nil {
		return nil, err
	}

	owners := make([]types.AccountID, 0, len(seen))
	for owner := range seen {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i] < owners[j] })
	return owners, nil
}

// Name index
func (t *txn) GetDAppIndex(owner types.AccountID, name string) (uint64, error) {
	data := t.kv.get(bucketDAppNames, nameKey(owner, name))
	if data == nil {
		return 0, fmt.Errorf("dapp name %q of %s: %w", name, owner, ErrNotFound)
	}
	if len(data) != 8 {
		return 0, fmt.Errorf("corrupt name index entry %q of %s", name, owner)
	}
	return binary.BigEndian.Uint64(data), nil
}

func (t *txn) PutDAppIndex(owner types.AccountID, name string, id uint64) error {
	return t.kv.put(bucketDAppNames, nameKey(owner, name), itob(id))
}

func (t *txn) DeleteDAppIndex(owner types.AccountID, name string) error {
	return t.kv.delete(bucketDAppNames, nameKey(owner, name))
}

// Rank
func (t *txn) GetRank() ([]types.RankEntry, error) {
	rank := []types.RankEntry{}
	if _, err := t.getJSON(bucketMeta, keyRank, &rank); err != nil {
		return nil, err
	}
	return rank, nil
}

func (t *txn) PutRank(rank []types.RankEntry) error {
	return t.putJSON(bucketMeta, keyRank, rank)
}

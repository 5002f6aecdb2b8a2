package storage

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore implements Store in process memory. Update works on a copy of the
// state that replaces the original only when fn succeeds.
type MemoryStore struct {
	mu     sync.RWMutex
	data   map[string]map[string][]byte
	closed bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string][]byte)}
}

var errClosed = errors.New("store is closed")

// View runs fn against the current state
func (s *MemoryStore) View(fn func(tx Tx) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return errClosed
	}
	return fn(&txn{kv: &memKV{data: s.data, readOnly: true}})
}

// Update runs fn against a copy of the state and keeps it if fn succeeds
func (s *MemoryStore) Update(fn func(tx Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed
	}

	shadow := make(map[string]map[string][]byte, len(s.data))
	for name, bucket := range s.data {
		copied := make(map[string][]byte, len(bucket))
		for k, v := range bucket {
			copied[k] = v
		}
		shadow[name] = copied
	}

	if err := fn(&txn{kv: &memKV{data: shadow}}); err != nil {
		return err
	}
	s.data = shadow
	return nil
}

// Dump copies every bucket
func (s *MemoryStore) Dump() (Dump, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	dump := make(Dump, len(s.data))
	for name, bucket := range s.data {
		entries := make(map[string][]byte, len(bucket))
		for k, v := range bucket {
			entries[hex.EncodeToString([]byte(k))] = append([]byte(nil), v...)
		}
		dump[name] = entries
	}
	return dump, nil
}

// Load replaces the state with dump
func (s *MemoryStore) Load(dump Dump) error {
	data := make(map[string]map[string][]byte, len(dump))
	for name, entries := range dump {
		bucket := make(map[string][]byte, len(entries))
		for key, value := range entries {
			k, err := hex.DecodeString(key)
			if err != nil {
				return fmt.Errorf("invalid key %q in bucket %s: %w", key, name, err)
			}
			bucket[string(k)] = append([]byte(nil), value...)
		}
		data[name] = bucket
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = data
	return nil
}

// Close marks the store closed
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// memKV is the kv view of one MemoryStore transaction
type memKV struct {
	data     map[string]map[string][]byte
	readOnly bool
}

func (m *memKV) get(bucket, key []byte) []byte {
	b, ok := m.data[string(bucket)]
	if !ok {
		return nil
	}
	return b[string(key)]
}

func (m *memKV) put(bucket, key, value []byte) error {
	if m.readOnly {
		return ErrReadOnly
	}
	b, ok := m.data[string(bucket)]
	if !ok {
		b = make(map[string][]byte)
		m.data[string(bucket)] = b
	}
	b[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *memKV) delete(bucket, key []byte) error {
	if m.readOnly {
		return ErrReadOnly
	}
	if b, ok := m.data[string(bucket)]; ok {
		delete(b, string(key))
	}
	return nil
}

// forEach visits keys in byte order, like a bolt cursor
func (m *memKV) forEach(bucket []byte, fn func(k, v []byte) error) error {
	b, ok := m.data[string(bucket)]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(b))
	for k := range b {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn([]byte(k), b[k]); err != nil {
			return err
		}
	}
	return nil
}

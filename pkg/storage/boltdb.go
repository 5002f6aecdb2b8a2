package storage

import (
	"encoding/hex"
	"fmt"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (or creates) <dataDir>/hamster.db
func NewBoltStore(dataDir string) (*BoltStore, error) {
	return OpenBoltStore(filepath.Join(dataDir, "hamster.db"), false)
}

// OpenBoltStore opens the database file at path. A read-only store rejects
// every Update; it can be opened while no manager holds the file.
func OpenBoltStore(path string, readOnly bool) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{
		ReadOnly: readOnly,
		Timeout:  time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if readOnly {
		return &BoltStore{db: db}, nil
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Backup writes a consistent copy of the database to path
func (s *BoltStore) Backup(path string) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
}

// View runs fn in a read-only transaction
func (s *BoltStore) View(fn func(tx Tx) error) error {
	return s.db.View(func(btx *bolt.Tx) error {
		return fn(&txn{kv: boltKV{tx: btx}})
	})
}

// Update runs fn in a read-write transaction, rolled back if fn fails
func (s *BoltStore) Update(fn func(tx Tx) error) error {
	return s.db.Update(func(btx *bolt.Tx) error {
		return fn(&txn{kv: boltKV{tx: btx}})
	})
}

// Dump copies every bucket
func (s *BoltStore) Dump() (Dump, error) {
	dump := make(Dump)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			entries := make(map[string][]byte)
			err := b.ForEach(func(k, v []byte) error {
				entries[hex.EncodeToString(k)] = append([]byte(nil), v...)
				return nil
			})
			dump[string(name)] = entries
			return err
		})
	})
	return dump, err
}

// Load replaces the database content with dump
func (s *BoltStore) Load(dump Dump) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if tx.Bucket(bucket) != nil {
				if err := tx.DeleteBucket(bucket); err != nil {
					return fmt.Errorf("failed to clear bucket %s: %w", bucket, err)
				}
			}
			if _, err := tx.CreateBucket(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}

		for name, entries := range dump {
			b, err := tx.CreateBucketIfNotExists([]byte(name))
			if err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", name, err)
			}
			for key, value := range entries {
				k, err := hex.DecodeString(key)
				if err != nil {
					return fmt.Errorf("invalid key %q in bucket %s: %w", key, name, err)
				}
				if err := b.Put(k, value); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// boltKV adapts a bolt transaction to the kv interface
type boltKV struct {
	tx *bolt.Tx
}

func (b boltKV) get(bucket, key []byte) []byte {
	bkt := b.tx.Bucket(bucket)
	if bkt == nil {
		return nil
	}
	return bkt.Get(key)
}

func (b boltKV) put(bucket, key, value []byte) error {
	if !b.tx.Writable() {
		return ErrReadOnly
	}
	bkt, err := b.tx.CreateBucketIfNotExists(bucket)
	if err != nil {
		return err
	}
	return bkt.Put(key, value)
}

func (b boltKV) delete(bucket, key []byte) error {
	if !b.tx.Writable() {
		return ErrReadOnly
	}
	bkt := b.tx.Bucket(bucket)
	if bkt == nil {
		return nil
	}
	return bkt.Delete(key)
}

func (b boltKV) forEach(bucket []byte, fn func(k, v []byte) error) error {
	bkt := b.tx.Bucket(bucket)
	if bkt == nil {
		return nil
	}
	return bkt.ForEach(fn)
}

package cachestore

import (
	"context"
	"fmt"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

const backendBolt = "bolt"

// BoltStorage keeps one bbolt bucket per store.
type BoltStorage struct {
	db *bolt.DB
}

// OpenBoltStorage opens or creates the database file at path.
func OpenBoltStorage(path string) (*BoltStorage, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	return &BoltStorage{db: db}, nil
}

// Names implements Storage.
func (b *BoltStorage) Names(ctx context.Context) ([]string, error) {
	var names []string
	err := b.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, _ *bolt.Bucket) error {
			names = append(names, string(name))
			return nil
		})
	})
	if err != nil {
		StoreErrors.WithLabelValues(backendBolt, "names").Inc()
		return nil, fmt.Errorf("bolt names: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

// Has implements Storage.
func (b *BoltStorage) Has(ctx context.Context, name string) (bool, error) {
	var ok bool
	err := b.db.View(func(tx *bolt.Tx) error {
		ok = tx.Bucket([]byte(name)) != nil
		return nil
	})
	if err != nil {
		StoreErrors.WithLabelValues(backendBolt, "has").Inc()
		return false, fmt.Errorf("bolt has: %w", err)
	}
	return ok, nil
}

// Populate implements Storage. The bucket is recreated and filled in one
// Update transaction.
func (b *BoltStorage) Populate(ctx context.Context, name string, entries []*Entry) error {
	if err := validateName(name); err != nil {
		return err
	}

	err := b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(name)) != nil {
			if err := tx.DeleteBucket([]byte(name)); err != nil {
				return err
			}
		}
		bucket, err := tx.CreateBucket([]byte(name))
		if err != nil {
			return err
		}
		for _, entry := range entries {
			data, err := encodeEntry(entry)
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(entry.Key()), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		StoreErrors.WithLabelValues(backendBolt, "populate").Inc()
		return fmt.Errorf("bolt populate %s: %w", name, err)
	}

	PopulatedEntries.WithLabelValues(backendBolt).Set(float64(len(entries)))
	return nil
}

// Match implements Storage.
func (b *BoltStorage) Match(ctx context.Context, name, key string) (*Entry, error) {
	var entry *Entry
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(name))
		if bucket == nil {
			return ErrNotFound
		}
		data := bucket.Get([]byte(key))
		if data == nil {
			return ErrNotFound
		}
		// data is only valid inside the transaction
		decoded, err := decodeEntry(data)
		if err != nil {
			return err
		}
		entry = decoded
		return nil
	})
	recordMatch(backendBolt, err)
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete implements Storage.
func (b *BoltStorage) Delete(ctx context.Context, name string) (bool, error) {
	var existed bool
	err := b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(name)) == nil {
			return nil
		}
		existed = true
		return tx.DeleteBucket([]byte(name))
	})
	if err != nil {
		StoreErrors.WithLabelValues(backendBolt, "delete").Inc()
		return false, fmt.Errorf("bolt delete %s: %w", name, err)
	}
	return existed, nil
}

// Close implements Storage.
func (b *BoltStorage) Close() error {
	if b == nil || b.db == nil {
		return nil
	}
	return b.db.Close()
}

package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the requested store or entry does not exist
	ErrNotFound = errors.New("cachestore: not found")

	// ErrInvalidEntry indicates a stored entry could not be decoded
	ErrInvalidEntry = errors.New("cachestore: invalid entry")

	// ErrInvalidName indicates an empty store name
	ErrInvalidName = errors.New("cachestore: invalid store name")

	errNilEntry = errors.New("cache entry cannot be nil")
)

// Storage manages named response stores.
//
// Implementations must be safe for concurrent use.
type Storage interface {
	// Names lists all store names in lexical order.
	Names(ctx context.Context) ([]string, error)

	// Has reports whether a store with the given name exists.
	Has(ctx context.Context, name string) (bool, error)

	// Populate atomically creates the named store holding exactly entries,
	// replacing any store of the same name. On error nothing is written.
	Populate(ctx context.Context, name string, entries []*Entry) error

	// Match returns the entry stored under key in the named store, or
	// ErrNotFound.
	Match(ctx context.Context, name, key string) (*Entry, error)

	// Delete removes the named store and reports whether it existed.
	Delete(ctx context.Context, name string) (bool, error)

	// Close releases backend resources.
	Close() error
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return ErrInvalidName
	}
	return nil
}

func encodeEntry(entry *Entry) ([]byte, error) {
	if entry == nil {
		return nil, errNilEntry
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("marshal cache entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (*Entry, error) {
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return &entry, nil
}

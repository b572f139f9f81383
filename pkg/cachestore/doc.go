// Package cachestore provides named, versioned response stores for the
// offline shell.
//
// A Storage manages any number of named stores. Each store maps a request
// identity (method + URL, fragment stripped) to a stored response. Stores are
// created and filled in a single atomic step with Populate, so a reader never
// observes a partially populated store.
//
// # Backends
//
//   - MemoryStorage: process-local maps, for tests and single-process gateways
//   - RedisStorage: a set of store names plus one hash per store, populated in
//     a MULTI/EXEC transaction
//   - BoltStorage: one bbolt bucket per store, populated in one Update transaction
//   - SQLiteStorage: caches/entries tables, populated in one SQL transaction
//
// # Basic Usage
//
//	storage := cachestore.NewMemoryStorage()
//
//	entry, err := cachestore.ResponseToEntry(resp)
//	if err != nil {
//		return err
//	}
//
//	// Create (or replace) the store atomically
//	if err := storage.Populate(ctx, "fairway-shell-v2", []*cachestore.Entry{entry}); err != nil {
//		return err
//	}
//
//	// Look up a request
//	hit, err := storage.Match(ctx, "fairway-shell-v2", cachestore.RequestKey(req))
//	if errors.Is(err, cachestore.ErrNotFound) {
//		// Cache miss
//	}
//
// # Metrics
//
//   - shell_store_matches_total{backend,result} - lookups by outcome (hit, miss)
//   - shell_store_errors_total{backend,operation} - backend operation errors
//   - shell_store_populated_entries{backend} - entries written by the last Populate
package cachestore

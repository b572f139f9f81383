package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Sternrassler/fairway-edge/pkg/cachestore"
	"github.com/Sternrassler/fairway-edge/pkg/config"
)

// openStorage opens the shell store backend selected by SHELL_STORAGE. The
// returned close func releases the backend and any client opened for it.
func openStorage(ctx context.Context, cfg *config.Config) (cachestore.Storage, func() error, error) {
	switch cfg.ShellStorage {
	case config.StorageMemory, "":
		s := cachestore.NewMemoryStorage()
		return s, s.Close, nil

	case config.StorageBolt:
		s, err := cachestore.OpenBoltStorage(cfg.ShellStoragePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case config.StorageSQLite:
		s, err := cachestore.OpenSQLiteStorage(cfg.ShellStoragePath)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil

	case config.StorageRedis:
		opts, err := cfg.RedisOptions()
		if err != nil {
			return nil, nil, err
		}
		client := redis.NewClient(opts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect redis %s: %w", opts.Addr, err)
		}
		s := cachestore.NewRedisStorage(client, cachestore.DefaultRedisPrefix)
		closeFn := func() error {
			s.Close()
			return client.Close()
		}
		return s, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unknown shell storage %q", cfg.ShellStorage)
	}
}

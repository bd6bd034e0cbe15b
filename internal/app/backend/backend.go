// Package backend открывает хранилище, выбранное в конфиге.
package backend

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/magabrotheeeer/scan-gate/internal/cache"
	"github.com/magabrotheeeer/scan-gate/internal/config"
	"github.com/magabrotheeeer/scan-gate/internal/migrations"
	"github.com/magabrotheeeer/scan-gate/internal/storage"
)

// Backend открытое хранилище. Pinger и Postgres заполнены не для всех бэкендов.
type Backend struct {
	Store    cache.Store
	Pinger   cache.Pinger
	Postgres *storage.Storage
	closeFn  func() error
}

// Open создаёт хранилище по cfg.Storage.Backend. Для postgres применяются миграции.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Backend, error) {
	const op = "backend.Open"

	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn("using in-memory store, state is lost on restart")
		return &Backend{Store: cache.NewMemory()}, nil

	case config.BackendRedis:
		c, err := cache.InitServer(ctx, cfg.RedisConnection)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &Backend{Store: c, Pinger: c, closeFn: c.Close}, nil

	case config.BackendPostgres:
		db, err := storage.New(ctx, cfg.StorageConnectionString)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if err := migrations.Run(db.DB, cfg.MigrationsPath); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &Backend{Store: db, Pinger: db, Postgres: db, closeFn: db.Close}, nil

	default:
		return nil, fmt.Errorf("%s: unknown storage backend %q", op, cfg.Backend)
	}
}

// Close освобождает соединения бэкенда.
func (b *Backend) Close() error {
	if b.closeFn == nil {
		return nil
	}
	return b.closeFn()
}

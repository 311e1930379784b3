package prefs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type Options struct {
	Backend    Backend
	SQLitePath string
	Redis      RedisConfig
	Postgres   PostgresConfig
}

// Open connects the backend named by opts.Backend.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		rdb := redis.NewClient(&redis.Options{Addr: opts.Redis.Addr, Password: opts.Redis.Password, DB: opts.Redis.DB})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("redis ping %s: %w", opts.Redis.Addr, err)
		}
		slog.Info("prefs store ready", "backend", opts.Backend, "addr", opts.Redis.Addr)
		return NewRedisStore(rdb, ""), nil
	case BackendSQLite, "":
		db, err := OpenSQLite(opts.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		slog.Info("prefs store ready", "backend", BackendSQLite, "path", opts.SQLitePath)
		return NewSQLStore(db)
	case BackendPostgres:
		db, err := OpenPostgres(opts.Postgres)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		slog.Info("prefs store ready", "backend", opts.Backend, "host", opts.Postgres.Host)
		return NewSQLStore(db)
	default:
		return nil, fmt.Errorf("unknown prefs backend %q", opts.Backend)
	}
}

package main

import (
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/audiencelab/scrapewatch/internal/bootstrap"
)

type infraOptions struct {
	WantDB    bool
	WantRedis bool
}

type infraHandles struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

// connectInfra wires up infrastructure dependencies based on CLI options.
// Redis is best-effort for admin commands; a missing Redis only disables
// the summary cache and tick lock.
func connectInfra(cmdCtx *commandContext, opts infraOptions) (*infraHandles, error) {
	handles := &infraHandles{}

	if opts.WantDB {
		db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{
			DBConfig: cmdCtx.Config.Postgres,
			Logger:   cmdCtx.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("connect db: %w", err)
		}
		handles.DB = db
	}

	if opts.WantRedis {
		redisClient, err := bootstrap.ConnectRedis(bootstrap.DatabaseConfig{
			RedisConfig: cmdCtx.Config.Redis,
			Logger:      cmdCtx.Logger,
		})
		if err != nil {
			cmdCtx.Logger.Warn("redis unavailable, continuing without cache", "error", err)
		} else {
			handles.Redis = redisClient
		}
	}

	return handles, nil
}

// Close releases the infrastructure handles, logging close failures.
func (h *infraHandles) Close(logger *slog.Logger) {
	if h.Redis != nil {
		if err := h.Redis.Close(); err != nil {
			logger.Warn("redis close failed", "error", err)
		}
	}
	if h.DB != nil {
		if err := h.DB.Close(); err != nil {
			logger.Warn("db close failed", "error", err)
		}
	}
}

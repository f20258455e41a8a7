package config

import "time"

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"                    envDefault:"localhost"`
	Port     int    `env:"PORT"                    envDefault:"5432"`
	User     string `env:"USER"                    envDefault:"scrapewatch"`
	Password string `env:"PASSWORD"                envDefault:"scrapewatch"`
	Name     string `env:"NAME"                    envDefault:"scrapewatch"`
	SSLMode  string `env:"SSL_MODE"                envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration.
type RedisConfig struct {
	URI                string   `env:"URI"                  envDefault:"localhost:6379"`
	Password           string   `env:"PASSWORD"             envDefault:""`
	DB                 int      `env:"DB"                   envDefault:"0"`
	SentinelNodes      []string `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string   `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string   `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool     `env:"USE_SENTINEL"         envDefault:"false"`
}

// CacheConfig contains cache configuration (Redis-based).
type CacheConfig struct {
	// SummaryTTL is the TTL for the cached run summary.
	SummaryTTL time.Duration `env:"CACHE_SUMMARY_TTL" envDefault:"30s"`

	// TickLockTTL bounds how long a crashed process can hold the tick lock.
	TickLockTTL time.Duration `env:"CACHE_TICK_LOCK_TTL" envDefault:"5m"`
}

// Sanitize applies guardrails to cache configuration values.
func (c *CacheConfig) Sanitize() {
	if c.SummaryTTL <= 0 {
		c.SummaryTTL = 30 * time.Second
	}
	if c.TickLockTTL <= 0 {
		c.TickLockTTL = 5 * time.Minute
	}
}

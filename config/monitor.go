package config

import "time"

// MonitorConfig contains run monitor loop configuration.
type MonitorConfig struct {
	// Interval is how often the monitor polls the platform for run updates.
	Interval time.Duration `env:"MONITOR_INTERVAL" envDefault:"60s"`

	// RunBatchLimit caps how many runs a single tick inspects.
	RunBatchLimit int `env:"MONITOR_RUN_BATCH_LIMIT" envDefault:"500"`

	// AutoReconcile controls whether dataset items are fetched and merged
	// into the audience table when a run completes successfully.
	AutoReconcile bool `env:"MONITOR_AUTO_RECONCILE" envDefault:"true"`

	// AutoResurrect controls whether failed and timed out runs are
	// automatically resumed on the platform.
	AutoResurrect bool `env:"MONITOR_AUTO_RESURRECT" envDefault:"true"`

	// DatasetPageSize is how many items each dataset page request asks for.
	DatasetPageSize int `env:"MONITOR_DATASET_PAGE_SIZE" envDefault:"1000"`

	// DatasetMaxItems caps how many items are pulled from a single dataset.
	// Fetching stops at the cap with a warning rather than an error.
	DatasetMaxItems int `env:"MONITOR_DATASET_MAX_ITEMS" envDefault:"50000"`

	// ReconcileBatchSize is how many members each upsert statement carries.
	ReconcileBatchSize int `env:"MONITOR_RECONCILE_BATCH_SIZE" envDefault:"500"`
}

// Sanitize applies guardrails to monitor configuration values.
func (c *MonitorConfig) Sanitize() {
	if c.Interval < time.Second {
		c.Interval = 60 * time.Second
	}
	if c.RunBatchLimit <= 0 {
		c.RunBatchLimit = 500
	}
	if c.DatasetPageSize <= 0 {
		c.DatasetPageSize = 1000
	}
	if c.DatasetMaxItems <= 0 {
		c.DatasetMaxItems = 50000
	}
	if c.DatasetPageSize > c.DatasetMaxItems {
		c.DatasetPageSize = c.DatasetMaxItems
	}
	if c.ReconcileBatchSize <= 0 {
		c.ReconcileBatchSize = 500
	}
}

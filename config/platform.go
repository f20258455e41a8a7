package config

import (
	"strings"
	"time"
)

// PlatformConfig contains scrape platform API configuration.
type PlatformConfig struct {
	// BaseURL is the platform API root, e.g. https://api.apify.com.
	BaseURL string `env:"PLATFORM_BASE_URL" envDefault:"https://api.apify.com"`

	// Token is the platform API token. Required for all platform calls.
	Token string `env:"PLATFORM_TOKEN"`

	// Timeout bounds each platform HTTP request.
	Timeout time.Duration `env:"PLATFORM_TIMEOUT" envDefault:"30s"`
}

// Sanitize normalises platform configuration values.
func (c *PlatformConfig) Sanitize() {
	c.BaseURL = strings.TrimRight(strings.TrimSpace(c.BaseURL), "/")
	c.Token = strings.TrimSpace(c.Token)
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

package sqlite

import (
	"fmt"
	"path/filepath"

	"github.com/flemzord/daybook/internal/config"
)

const (
	defaultBusyTimeout = 5000
	defaultDBFile      = "daybook.db"
)

// Config holds the SQLite store configuration.
type Config struct {
	// Path is the database file path. Defaults to {DataDir}/daybook.db.
	Path string

	// WAL enables WAL journal mode for concurrent reads. Defaults to true.
	WAL *bool

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int
}

// ConfigFrom builds a Config from the database section, resolving the
// default path inside dataDir.
func ConfigFrom(db config.DatabaseConfig, dataDir string) Config {
	c := Config{Path: db.Path, WAL: db.WAL, BusyTimeout: db.BusyTimeout}
	if c.Path == "" {
		c.Path = filepath.Join(dataDir, defaultDBFile)
	}
	return c
}

func (c *Config) defaults() {
	if c.WAL == nil {
		t := true
		c.WAL = &t
	}
	if c.BusyTimeout == 0 {
		c.BusyTimeout = defaultBusyTimeout
	}
}

func (c *Config) walEnabled() bool {
	return c.WAL == nil || *c.WAL
}

func (c *Config) validate() error {
	if c.Path == "" {
		return fmt.Errorf("sqlite: path is required")
	}
	if c.BusyTimeout < 0 {
		return fmt.Errorf("sqlite: busy_timeout must be non-negative, got %d", c.BusyTimeout)
	}
	return nil
}

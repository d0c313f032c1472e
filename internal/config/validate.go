package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

const (
	DefaultPluginID      = "PluginsBatchTweetScheduler"
	DefaultTickSpec      = "* * * * *"
	DefaultConcurrency   = 4
	DefaultStorageDriver = "file"
	// DefaultStoragePath is relative to the config file's directory.
	DefaultStoragePath = "schedbot-data"
)

// ApplyDefaults fills omitted fields in place.
func (c *Config) ApplyDefaults() {
	if strings.TrimSpace(c.PluginID) == "" {
		c.PluginID = DefaultPluginID
	}
	if strings.TrimSpace(c.Transport) == "" {
		c.Transport = "telegram"
	}
	if strings.TrimSpace(c.Logging.Level) == "" {
		c.Logging.Level = "info"
	}
	if strings.TrimSpace(c.Storage.Driver) == "" {
		c.Storage.Driver = DefaultStorageDriver
		if strings.TrimSpace(c.Storage.Path) == "" {
			c.Storage.Path = DefaultStoragePath
		}
	}
	if strings.TrimSpace(c.Scheduler.TickSpec) == "" {
		c.Scheduler.TickSpec = DefaultTickSpec
	}
	if c.Dispatch.Concurrency <= 0 {
		c.Dispatch.Concurrency = DefaultConcurrency
	}
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error

	switch strings.ToLower(strings.TrimSpace(c.Transport)) {
	case "", "telegram":
		if strings.TrimSpace(c.Telegram.Token) == "" {
			errs = append(errs, errors.New("telegram.token: required for telegram transport"))
		}
	case "console":
	default:
		errs = append(errs, fmt.Errorf("transport: unknown %q (telegram|console)", c.Transport))
	}
	if c.Telegram.RatePerSec < 0 {
		errs = append(errs, errors.New("telegram.rate_per_sec: must be >= 0"))
	}
	if _, err := c.Telegram.PollTimeoutOr(0); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Storage.BusyTimeoutOr(0); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Scheduler.TickTimeoutDuration(); err != nil {
		errs = append(errs, err)
	}
	if tz := strings.TrimSpace(c.Scheduler.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			errs = append(errs, fmt.Errorf("scheduler.timezone: %w", err))
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "file", "sqlite", "sqlite3":
		if strings.TrimSpace(c.Storage.Path) == "" {
			errs = append(errs, fmt.Errorf("storage.path: required for driver %q", c.Storage.Driver))
		}
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, errors.New("storage.dsn: required for postgres"))
		}
	}

	type target struct {
		chat   int64
		thread int
	}
	seen := map[string]bool{}
	bound := map[target]string{}
	for i, a := range c.Accounts {
		id := strings.TrimSpace(a.ID)
		switch {
		case id == "":
			errs = append(errs, fmt.Errorf("accounts[%d].id: required", i))
		case seen[id]:
			errs = append(errs, fmt.Errorf("accounts[%d].id: duplicate %q", i, id))
		}
		seen[id] = true
		if a.ChatID == 0 {
			errs = append(errs, fmt.Errorf("accounts[%d].chat_id: required", i))
			continue
		}
		tg := target{a.ChatID, a.ThreadID}
		if other, ok := bound[tg]; ok {
			errs = append(errs, fmt.Errorf("accounts[%d]: chat %d thread %d already bound to %q", i, a.ChatID, a.ThreadID, other))
			continue
		}
		bound[tg] = id
	}
	return errors.Join(errs...)
}

// ResolvePaths makes relative file and sqlite paths relative to dir.
func (c *Config) ResolvePaths(dir string) {
	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "file", "sqlite", "sqlite3":
		p := strings.TrimSpace(c.Storage.Path)
		if p != "" && !filepath.IsAbs(p) {
			c.Storage.Path = filepath.Join(dir, p)
		}
	}
}

// Account looks up an account by id.
func (c *Config) Account(id string) (AccountConfig, bool) {
	for _, a := range c.Accounts {
		if a.ID == id {
			return a, true
		}
	}
	return AccountConfig{}, false
}

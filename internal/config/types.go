package config

// Config is the schedbot configuration file.
//
// Durations are Go duration strings ("10s", "1m"). Example (YAML):
//
//	plugin_id: PluginsBatchTweetScheduler
//	transport: telegram
//	telegram: { token: "...", owner_user_ids: [42] }
//	storage:  { driver: sqlite, path: ./schedbot.db } # relative to this file
//	accounts:
//	  - { id: alice, chat_id: -1001234, thread_id: 7 }
type Config struct {
	// PluginID namespaces schedule documents in the blob store.
	PluginID string `json:"plugin_id"`

	// Transport selects the outbound adapter: "telegram" (default) or "console".
	Transport string `json:"transport,omitempty"`

	Logging   LoggingConfig   `json:"logging"`
	Telegram  TelegramConfig  `json:"telegram"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`
	Dispatch  DispatchConfig  `json:"dispatch"`
	Metrics   MetricsConfig   `json:"metrics"`
	Accounts  []AccountConfig `json:"accounts"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
	RatePerSec  int    `json:"rate_per_sec,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled    bool   `json:"enabled"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb,omitempty"`
	MaxBackups int    `json:"max_backups,omitempty"`
	MaxAgeDays int    `json:"max_age_days,omitempty"`
	Compress   bool   `json:"compress,omitempty"`
}

// StorageConfig selects the blob store backend.
//
//	"storage": { "driver": "file", "path": "./schedbot_store" }
//	"storage": { "driver": "postgres", "dsn": "postgres://..." }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite
}

type SchedulerConfig struct {
	// Trigger timezone. Bucket keys are computed in this zone too.
	Timezone string `json:"timezone,omitempty"`
	// TickSpec is when the dispatch tick fires; default "* * * * *".
	TickSpec string `json:"tick_spec,omitempty"`
	// TickTimeout bounds one tick across all accounts; "0s" disables.
	TickTimeout string `json:"tick_timeout,omitempty"`
}

type DispatchConfig struct {
	// Concurrency caps in-flight sends per account run. <= 0 means 4.
	Concurrency int `json:"concurrency,omitempty"`
}

type MetricsConfig struct {
	// Addr enables the Prometheus /metrics listener, e.g. "127.0.0.1:9464".
	Addr string `json:"addr,omitempty"`
}

// AccountConfig binds an account to the chat its reservations are posted to.
type AccountConfig struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	ChatID   int64  `json:"chat_id"`
	ThreadID int    `json:"thread_id,omitempty"`
}

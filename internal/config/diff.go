package config

import (
	"reflect"
	"strings"

	logx "schedbot/pkg/logx"
)

// Change describes what differs between two configs. Fields that cannot be
// applied without a restart are listed in RestartRequired.
type Change struct {
	Sections        []string
	RestartRequired []string
	Attrs           []logx.Field
}

func (c Change) Empty() bool { return len(c.Sections) == 0 }

func (c Change) Has(section string) bool {
	for _, s := range c.Sections {
		if s == section {
			return true
		}
	}
	return false
}

// SummarizeConfigChange compares two configs section by section. Attrs are
// safe to log: tokens and DSNs are reported only as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) Change {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var ch Change
	mark := func(section string, restart bool, attrs ...logx.Field) {
		ch.Sections = append(ch.Sections, section)
		if restart {
			ch.RestartRequired = append(ch.RestartRequired, section)
		}
		ch.Attrs = append(ch.Attrs, attrs...)
	}

	if oldCfg.PluginID != newCfg.PluginID {
		mark("plugin_id", true, logx.String("plugin_id", newCfg.PluginID))
	}
	if !strings.EqualFold(oldCfg.Transport, newCfg.Transport) {
		mark("transport", true, logx.String("transport", newCfg.Transport))
	}
	if oldCfg.Logging != newCfg.Logging {
		mark("logging", false,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file", newCfg.Logging.File.Enabled),
		)
	}
	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout ||
		oldCfg.Telegram.RatePerSec != newCfg.Telegram.RatePerSec {
		mark("telegram", true,
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
			logx.String("telegram.poll_timeout", newCfg.Telegram.PollTimeout),
		)
	}
	if !reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) {
		mark("owners", false, logx.Int("owner_count", len(newCfg.Telegram.OwnerUserIDs)))
	}
	if oldCfg.Storage != newCfg.Storage {
		mark("storage", true,
			logx.String("storage.driver", newCfg.Storage.Driver),
			logx.Bool("storage.dsn_set", newCfg.Storage.DSN != ""),
		)
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		mark("scheduler", false,
			logx.String("scheduler.tick_spec", newCfg.Scheduler.TickSpec),
			logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
		)
	}
	if oldCfg.Dispatch != newCfg.Dispatch {
		mark("dispatch", true, logx.Int("dispatch.concurrency", newCfg.Dispatch.Concurrency))
	}
	if oldCfg.Metrics != newCfg.Metrics {
		mark("metrics", true, logx.String("metrics.addr", newCfg.Metrics.Addr))
	}
	if !reflect.DeepEqual(oldCfg.Accounts, newCfg.Accounts) {
		mark("accounts", false, logx.Int("accounts", len(newCfg.Accounts)))
	}
	return ch
}

package app

import (
	"fmt"
	"io"
	"strings"
	"time"

	"schedbot/internal/config"
	"schedbot/internal/schedule"
	"schedbot/internal/storage"
	kit "schedbot/internal/transport"
	"schedbot/internal/transport/console"
	telegram "schedbot/internal/transport/telegram/adapter"
	logx "schedbot/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	lf := cfg.Logging.File
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled:    lf.Enabled,
			Path:       lf.Path,
			MaxSizeMB:  lf.MaxSizeMB,
			MaxBackups: lf.MaxBackups,
			MaxAgeDays: lf.MaxAgeDays,
			Compress:   lf.Compress,
		},
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := sc.BusyTimeoutOr(time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	return storage.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
	}, nil
}

// newAdapter builds the transport named by cfg.Transport. consoleOut receives
// the console transport's output.
func newAdapter(cfg *config.Config, consoleOut io.Writer, log logx.Logger) (kit.Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Transport)) {
	case "console":
		return console.New(consoleOut, log), nil
	case "", "telegram":
		poll, err := cfg.Telegram.PollTimeoutOr(10 * time.Second)
		if err != nil {
			return nil, err
		}
		return telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: poll,
			RatePerSec:  cfg.Telegram.RatePerSec,
		}, log)
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func mapRoutes(cfg *config.Config) []kit.Route {
	out := make([]kit.Route, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		out = append(out, kit.Route{
			AccountID: a.ID,
			Target:    kit.ChatTarget{ChatID: a.ChatID, ThreadID: a.ThreadID},
		})
	}
	return out
}

func mapAccounts(cfg *config.Config) []schedule.Account {
	out := make([]schedule.Account, 0, len(cfg.Accounts))
	for _, a := range cfg.Accounts {
		name := a.Name
		if name == "" {
			name = a.ID
		}
		out = append(out, schedule.Account{ID: a.ID, Name: name})
	}
	return out
}

func loadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		// Validate already rejected this; keep running on host time.
		return time.Local
	}
	return loc
}

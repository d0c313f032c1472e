package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
plugin_id: tweetScheduler
transport: console
logging:
  level: debug
  console: true
storage:
  driver: file
  path: ./store
scheduler:
  timezone: UTC
accounts:
  - id: alice
    chat_id: -1001
    thread_id: 7
  - id: bob
    chat_id: 42
`

func TestParseYAMLAppliesDefaults(t *testing.T) {
	cfg, err := ParseBytes("schedbot.yaml", []byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "tweetScheduler", cfg.PluginID)
	assert.Equal(t, DefaultTickSpec, cfg.Scheduler.TickSpec)
	assert.Equal(t, DefaultConcurrency, cfg.Dispatch.Concurrency)
	require.Len(t, cfg.Accounts, 2)

	a, ok := cfg.Account("alice")
	require.True(t, ok)
	assert.Equal(t, int64(-1001), a.ChatID)
	assert.Equal(t, 7, a.ThreadID)
	_, ok = cfg.Account("carol")
	assert.False(t, ok)
}

func TestParseJSONMinimal(t *testing.T) {
	cfg, err := ParseBytes("c.json", []byte(`{"transport":"console"}`))
	require.NoError(t, err)
	assert.Equal(t, DefaultPluginID, cfg.PluginID)
	assert.Equal(t, "PluginsBatchTweetScheduler", cfg.PluginID)
	assert.Equal(t, "file", cfg.Storage.Driver)
	assert.Equal(t, DefaultStoragePath, cfg.Storage.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestManagerResolvesStoragePath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"transport":"console"}`), 0o600))

	cfg, err := NewConfigManager(path).Parse()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, DefaultStoragePath), cfg.Storage.Path)

	abs := filepath.Join(t.TempDir(), "s.db")
	body := `{"transport":"console","storage":{"driver":"sqlite","path":"` + filepath.ToSlash(abs) + `"}}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	cfg, err = NewConfigManager(path).Parse()
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(abs), filepath.Clean(cfg.Storage.Path))

	mem := Config{Storage: StorageConfig{Driver: "memory", Path: "x"}}
	mem.ResolvePaths(dir)
	assert.Equal(t, "x", mem.Storage.Path)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		file string
		data string
	}{
		{"unknown field", "c.json", `{"transport":"console","bogus":1}`},
		{"trailing data", "c.json", `{"transport":"console"}{}`},
		{"missing token", "c.json", `{}`},
		{"bad transport", "c.json", `{"transport":"carrier-pigeon"}`},
		{"bad duration", "c.json", `{"transport":"console","telegram":{"poll_timeout":"soon"}}`},
		{"bad timezone", "c.json", `{"transport":"console","scheduler":{"timezone":"Nowhere/Else"}}`},
		{"file without path", "c.json", `{"transport":"console","storage":{"driver":"file"}}`},
		{"shared chat target", "c.json", `{"transport":"console","accounts":[{"id":"a","chat_id":5,"thread_id":2},{"id":"b","chat_id":5,"thread_id":2}]}`},
		{"postgres without dsn", "c.json", `{"transport":"console","storage":{"driver":"postgres"}}`},
		{"duplicate account", "c.json", `{"transport":"console","accounts":[{"id":"a","chat_id":1},{"id":"a","chat_id":2}]}`},
		{"account without chat", "c.json", `{"transport":"console","accounts":[{"id":"a"}]}`},
		{"bad yaml", "c.yml", "accounts: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBytes(tt.file, []byte(tt.data))
			assert.Error(t, err)
		})
	}
}

func TestParseDurationField(t *testing.T) {
	d, err := ParseDurationField("x", "")
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = ParseDurationField("x", "90")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, d)

	d, err = TelegramConfig{PollTimeout: "0s"}.PollTimeoutOr(time.Minute)
	require.NoError(t, err)
	assert.Equal(t, time.Minute, d)

	d, err = StorageConfig{BusyTimeout: "250ms"}.BusyTimeoutOr(time.Second)
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, d)

	_, err = ParseDurationField("x", "-1s")
	assert.Error(t, err)
}

func TestSummarizeConfigChange(t *testing.T) {
	oldCfg, err := ParseBytes("c.yaml", []byte(sampleYAML))
	require.NoError(t, err)
	newCfg := *oldCfg
	newCfg.Logging.Level = "warn"
	newCfg.Accounts = append([]AccountConfig(nil), oldCfg.Accounts[:1]...)
	newCfg.Metrics.Addr = "127.0.0.1:9464"

	ch := SummarizeConfigChange(oldCfg, &newCfg)
	assert.ElementsMatch(t, []string{"logging", "metrics", "accounts"}, ch.Sections)
	assert.Equal(t, []string{"metrics"}, ch.RestartRequired)
	assert.True(t, ch.Has("accounts"))
	assert.False(t, ch.Has("storage"))

	assert.True(t, SummarizeConfigChange(oldCfg, oldCfg).Empty())
}

func TestManagerLoadAndReload(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schedbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	m := NewConfigManager(path)
	cfg, err := m.Load()
	require.NoError(t, err)
	assert.Same(t, cfg, m.Get())

	sub := m.Subscribe(1)
	defer m.Unsubscribe(sub)

	// Unchanged content is not republished.
	assert.False(t, m.reload(context.Background()))

	// Invalid content keeps the previous config.
	require.NoError(t, os.WriteFile(path, []byte("transport: nope\n"), 0o600))
	assert.False(t, m.reload(context.Background()))
	assert.Same(t, cfg, m.Get())

	require.NoError(t, os.WriteFile(path, []byte(sampleYAML+"metrics:\n  addr: 127.0.0.1:0\n"), 0o600))
	assert.True(t, m.reload(context.Background()))
	select {
	case got := <-sub:
		assert.Equal(t, "127.0.0.1:0", got.Metrics.Addr)
	default:
		t.Fatal("expected published config")
	}
}

func TestManagerValidatorCanReject(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"transport":"console"}`), 0o600))
	m := NewConfigManager(path)
	_, err := m.Load()
	require.NoError(t, err)

	m.SetValidator(func(context.Context, *Config) error { return assert.AnError })
	require.NoError(t, os.WriteFile(path, []byte(`{"transport":"console","plugin_id":"x"}`), 0o600))
	assert.False(t, m.reload(context.Background()))
	assert.Equal(t, DefaultPluginID, m.Get().PluginID)
}

func TestWatchPublishesOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "c.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"transport":"console"}`), 0o600))
	m := NewConfigManager(path)
	_, err := m.Load()
	require.NoError(t, err)
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte(`{"transport":"console","plugin_id":"other"}`), 0o600))

	select {
	case got := <-sub:
		assert.Equal(t, "other", got.PluginID)
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
}

func TestParseBytesSniffsFormat(t *testing.T) {
	cfg, err := ParseBytes("stdin", []byte(`{"transport":"console","plugin_id":"p"}`))
	require.NoError(t, err)
	assert.Equal(t, "p", cfg.PluginID)

	cfg, err = ParseBytes("stdin", []byte("transport: console\nplugin_id: q\n"))
	require.NoError(t, err)
	assert.Equal(t, "q", cfg.PluginID)

	_, err = ParseBytes("c.yaml", []byte("# only a comment\n"))
	assert.Error(t, err)
}

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

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestDefaults(t *testing.T) {
	c := Default()
	assert.Equal(t, 881100, c.App.ID)
	assert.Equal(t, "noitabeta", c.App.BetaBranch)
	assert.Equal(t, "_release_notes.txt", c.App.ReleaseNotesFile)
	assert.Equal(t, "1m", c.Scheduler.Schedule)
	assert.True(t, BoolOr(c.Scheduler.RunOnStart, false))
	assert.True(t, BoolOr(c.Notifier.Crosspost, false))
	assert.Equal(t, 2000, c.Notifier.MaxMessageLength)
	assert.Equal(t, "file", c.Storage.Driver)
	assert.Equal(t, "./data/branchwatch", c.Storage.Path)
	assert.Equal(t, "INFO", c.Logging.Level)
}

func TestLoadYAMLWithEnv(t *testing.T) {
	t.Setenv("BW_TEST_TOKEN", "secret")
	p := writeFile(t, t.TempDir(), "config.yaml", `
app:
  id: 881100
scheduler:
  schedule: "00:05"
  enabled: false
classifier:
  policy: first_match
  rules:
    - {prefix: "BUGFIX:", category: "BUG FIXES"}
notifier:
  driver: discord
  crosspost: false
discord:
  token: "${BW_TEST_TOKEN}"
  channel_id: "123"
storage:
  driver: sqlite
`)
	cfg, err := NewConfigManager(p).Load()
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Discord.Token)
	assert.False(t, BoolOr(cfg.Scheduler.Enabled, true))
	assert.False(t, BoolOr(cfg.Notifier.Crosspost, true))
	assert.Equal(t, "first_match", cfg.Classifier.Policy)
	assert.Equal(t, []RuleConfig{{Prefix: "BUGFIX:", Category: "BUG FIXES"}}, cfg.Classifier.Rules)
	assert.Equal(t, "./data/branchwatch.db", cfg.Storage.Path)
}

func TestLoadTOMLAndJSON(t *testing.T) {
	dir := t.TempDir()
	tp := writeFile(t, dir, "config.toml", `
[app]
id = 42
[notifier]
driver = "console"
rate_per_sec = 5.0
`)
	cfg, err := NewConfigManager(tp).Load()
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.App.ID)
	assert.Equal(t, 5.0, cfg.Notifier.RatePerSec)

	jp := writeFile(t, dir, "config.json", `{"notifier": {"driver": "console"}, "status": {"enabled": true}}`)
	cfg, err = NewConfigManager(jp).Load()
	require.NoError(t, err)
	assert.True(t, cfg.Status.Enabled)
	assert.Equal(t, DefaultStatusAddr, cfg.Status.Addr)
}

func TestRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"unknown key":       `{"notifier": {"driver": "console"}, "bogus": 1}`,
		"trailing data":     `{"notifier": {"driver": "console"}} {}`,
		"bad schedule":      `{"notifier": {"driver": "console"}, "scheduler": {"schedule": "whenever"}}`,
		"bad duration":      `{"notifier": {"driver": "console"}, "source": {"http_timeout": "soon"}}`,
		"missing token":     `{"notifier": {"driver": "discord"}}`,
		"missing chat":      `{"notifier": {"driver": "telegram"}, "telegram": {"token": "x"}}`,
		"bad driver":        `{"notifier": {"driver": "irc"}}`,
		"bad policy":        `{"notifier": {"driver": "console"}, "classifier": {"policy": "some"}}`,
		"reserved category": `{"notifier": {"driver": "console"}, "classifier": {"rules": [{"prefix": "X", "category": "GENERAL"}]}}`,
		"bad branch":        `{"notifier": {"driver": "console"}, "app": {"beta_branch": "../x"}}`,
		"bad info url":      `{"notifier": {"driver": "console"}, "source": {"info_url": "http://x/"}}`,
		"bad level":         `{"notifier": {"driver": "console"}, "logging": {"level": "loud"}}`,
	}
	for name, body := range cases {
		body := body
		t.Run(name, func(t *testing.T) {
			_, err := Decode("config.json", []byte(body))
			assert.Error(t, err)
		})
	}
}

func TestDisabledNotifierNeedsNoCredentials(t *testing.T) {
	_, err := Decode("c.json", []byte(`{"notifier": {"enabled": false}}`))
	require.NoError(t, err)
}

func TestChangedSections(t *testing.T) {
	a := Default()
	b := Default()
	b.Scheduler.Schedule = "5m"
	b.Discord.Token = "x"
	changed := ChangedSections(a, b)
	assert.Equal(t, []string{"scheduler", "discord"}, changed)
	assert.Equal(t, []string{"discord"}, RestartRequired(changed))
	assert.Empty(t, ChangedSections(a, Default()))
}

func TestWatchPublishesReload(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"notifier": {"driver": "console"}}`)
	m := NewConfigManager(p)
	_, err := m.Load()
	require.NoError(t, err)

	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	// Give the watcher a moment to register the directory.
	time.Sleep(100 * time.Millisecond)
	writeFile(t, dir, "config.json", `{"notifier": {"driver": "console"}, "scheduler": {"schedule": "2m"}}`)

	select {
	case cfg := <-ch:
		assert.Equal(t, "2m", cfg.Scheduler.Schedule)
		assert.Equal(t, "2m", m.Get().Scheduler.Schedule)
	case <-time.After(5 * time.Second):
		t.Fatal("no reload published")
	}
}

func TestExampleConfigLoads(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("DISCORD_GUILD_ID", "1234")
	t.Setenv("TELEGRAM_TOKEN", "")

	cfg, err := NewConfigManager("../../config.example.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, "discord", cfg.Notifier.Driver)
	assert.Equal(t, "token", cfg.Discord.Token)
	assert.Equal(t, "1234", cfg.Discord.GuildID)
	assert.Equal(t, "45m", cfg.Scheduler.PassTimeout)
	assert.False(t, cfg.Status.Pprof)
}

package config

import (
	"encoding/json"
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempJSON(t *testing.T, data map[string]any) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.json")
	b, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, b, 0o600))
	return path
}

func withArgs(t *testing.T, args ...string) {
	t.Helper()
	orig := os.Args
	t.Cleanup(func() { os.Args = orig })
	os.Args = append([]string{"storyline"}, args...)
}

func TestLoadDefaults(t *testing.T) {
	var c Config
	c.LoadDefaults()

	assert.Equal(t, "view", c.Mode)
	assert.Equal(t, DriverNone, c.RemoteDriver)
	assert.Equal(t, 5*time.Second, c.PollInterval)
	assert.Equal(t, 600*time.Millisecond, c.PushDebounce)
	assert.Equal(t, 2, c.PushRetryMax)
	assert.Equal(t, 200*time.Millisecond, c.PushBackoffBase)
	assert.Equal(t, "timeline_overrides", c.OverridesTable)
	require.NoError(t, c.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad mode", func(c *Config) { c.Mode = "admin" }, `mode "admin"`},
		{"rest without url", func(c *Config) { c.RemoteDriver = DriverREST }, "rest driver needs remote_url"},
		{"postgres without dsn", func(c *Config) { c.RemoteDriver = DriverPostgres }, "postgres driver needs postgres_dsn"},
		{"unknown driver", func(c *Config) { c.RemoteDriver = "ftp" }, `remote driver "ftp"`},
		{"no timeline", func(c *Config) { c.TimelineID = "" }, "timeline id is required"},
		{"negative retries", func(c *Config) { c.PushRetryMax = -1 }, "push_retry_max"},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, "poll_interval"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Config
			c.LoadDefaults()
			tt.mutate(&c)
			require.ErrorContains(t, c.Validate(), tt.wantErr)
		})
	}
}

func TestParseJson(t *testing.T) {
	path := writeTempJSON(t, map[string]any{
		"timeline_id":   "history",
		"remote_driver": "rest",
		"remote_url":    "https://rows.example",
		"push_debounce": "1s",
		"poll_interval": 2000000000,
	})

	t.Run("overlays present keys only", func(t *testing.T) {
		withArgs(t, "-config", path)
		var c Config
		c.LoadDefaults()
		parseJson(&c)

		assert.Equal(t, "history", c.TimelineID)
		assert.Equal(t, DriverREST, c.RemoteDriver)
		assert.Equal(t, time.Second, c.PushDebounce)
		assert.Equal(t, 2*time.Second, c.PollInterval)
		assert.Equal(t, 200*time.Millisecond, c.PushBackoffBase)
		assert.Equal(t, "view", c.Mode)
	})

	t.Run("no file leaves config alone", func(t *testing.T) {
		withArgs(t)
		t.Setenv("STORYLINE_CONFIG", "")
		c := Config{TimelineID: "keep"}
		parseJson(&c)
		assert.Equal(t, "keep", c.TimelineID)
	})

	t.Run("path from environment", func(t *testing.T) {
		withArgs(t)
		t.Setenv("STORYLINE_CONFIG", path)
		var c Config
		parseJson(&c)
		assert.Equal(t, "history", c.TimelineID)
	})

	t.Run("invalid JSON panics", func(t *testing.T) {
		bad := filepath.Join(t.TempDir(), "bad.json")
		require.NoError(t, os.WriteFile(bad, []byte(`{ nope`), 0o600))
		withArgs(t, "-c", bad)
		require.Panics(t, func() { parseJson(&Config{}) })
	})

	t.Run("missing file panics", func(t *testing.T) {
		withArgs(t, "-c", filepath.Join(t.TempDir(), "absent.json"))
		require.Panics(t, func() { parseJson(&Config{}) })
	})
}

func TestParseEnv(t *testing.T) {
	t.Setenv("STORYLINE_ACCESS_TOKEN", "tok")
	t.Setenv("STORYLINE_PG_DSN", "")
	c := Config{PostgresDSN: "keep"}
	parseEnv(&c)
	assert.Equal(t, "tok", c.AccessToken)
	assert.Equal(t, "keep", c.PostgresDSN)
}

func TestParseFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expectPanic bool
		check       func(t *testing.T, c *Config)
	}{
		{
			name: "ok",
			args: []string{"-t", "war", "-m", "edit", "-r", "postgres", "-p", "10", "-c", "ignored.json"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, "war", c.TimelineID)
				assert.Equal(t, "edit", c.Mode)
				assert.Equal(t, DriverPostgres, c.RemoteDriver)
				assert.Equal(t, 10*time.Second, c.PollInterval)
			},
		},
		{
			name: "poll untouched without -p",
			args: []string{"-t", "war"},
			check: func(t *testing.T, c *Config) {
				assert.Equal(t, 1500*time.Millisecond, c.PollInterval)
			},
		},
		{name: "bad poll interval", args: []string{"-p", "abc"}, expectPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			flag.CommandLine = flag.NewFlagSet(os.Args[0], flag.PanicOnError)
			withArgs(t, tt.args...)

			c := &Config{PollInterval: 1500 * time.Millisecond}
			if tt.expectPanic {
				require.Panics(t, func() { parseFlags(c) })
				return
			}
			require.NotPanics(t, func() { parseFlags(c) })
			tt.check(t, c)
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeTempJSON(t, map[string]any{"timeline_id": "from-json", "mode": "edit"})
	withArgs(t, "-c", path, "-t", "from-flag")
	t.Setenv("STORYLINE_ANON_KEY", "anon")

	cfg := LoadConfig()
	require.NotNil(t, cfg)
	assert.Equal(t, "from-flag", cfg.TimelineID)
	assert.Equal(t, "edit", cfg.Mode)
	assert.Equal(t, "anon", cfg.AnonKey)
	assert.Equal(t, 5*time.Second, cfg.PollInterval)
}

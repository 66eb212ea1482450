// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GLMCHAT_API_BASE_URL", "GLMCHAT_STREAM", "GLMCHAT_LOG_LEVEL", "GLMCHAT_METRICS_LISTEN"} {
		t.Setenv(k, "")
	}
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.True(t, cfg.Chat.Stream)
	assert.Equal(t, 5000, cfg.Chat.MaxMessageLength)
	assert.Equal(t, 16*time.Millisecond, cfg.Chat.FrameInterval.Duration)
}

func TestDir_HonorsHomeEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(HomeEnv, dir)

	got, err := Dir()
	require.NoError(t, err)
	assert.Equal(t, dir, got)

	path, err := Path()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "config.toml"), path)
}

func TestLoadFromPath_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromPath_PartialFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[api]
base_url = "https://chat.example.com/api"
timeout = "5s"

[chat]
stream = false
`), 0644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com/api", cfg.API.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.API.Timeout.Duration)
	assert.False(t, cfg.Chat.Stream)
	assert.Equal(t, 5000, cfg.Chat.MaxMessageLength, "untouched keys keep defaults")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())
}

func TestLoadFromPath_RejectsUnknownKeys(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("[chat]\nstreaming = true\n"), 0600))

	_, err := LoadFromPath(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat.streaming")
}

func TestLoadFromPath_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GLMCHAT_API_BASE_URL", "http://10.0.0.2:3000/api")
	t.Setenv("GLMCHAT_STREAM", "off")
	t.Setenv("GLMCHAT_LOG_LEVEL", "debug")
	t.Setenv("GLMCHAT_METRICS_LISTEN", ":9999")

	cfg, err := LoadFromPath(filepath.Join(t.TempDir(), "config.toml"))
	require.NoError(t, err)
	assert.Equal(t, "http://10.0.0.2:3000/api", cfg.API.BaseURL)
	assert.False(t, cfg.Chat.Stream)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, ":9999", cfg.Metrics.Listen)
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := Default()
	cfg.API.BaseURL = "ftp://example.com"
	cfg.API.Retries = 99
	cfg.UI.Theme = "neon"
	cfg.Logging.Level = "loud"

	err := cfg.Validate()
	var verrs ValidationErrors
	require.True(t, errors.As(err, &verrs))
	fields := make([]string, len(verrs))
	for i, v := range verrs {
		fields[i] = v.Field
	}
	assert.ElementsMatch(t, []string{"api.base_url", "api.retries", "ui.theme", "logging.level"}, fields)
}

func TestSaveTOML_RoundTrip(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg := Default()
	cfg.UI.Theme = "light"
	cfg.Chat.FrameInterval = Duration{33 * time.Millisecond}

	require.NoError(t, SaveTOML(cfg, path))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	loaded, err := LoadFromPath(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestGetSet(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Set("chat.stream", "false"))
	require.NoError(t, cfg.Set("chat.max_message_length", "200"))
	require.NoError(t, cfg.Set("api.timeout", "2s"))
	require.NoError(t, cfg.Set("api.rate_limit", "1.5"))

	v, err := cfg.Get("chat.stream")
	require.NoError(t, err)
	assert.Equal(t, false, v)
	assert.Equal(t, 200, cfg.Chat.MaxMessageLength)
	assert.Equal(t, 2*time.Second, cfg.API.Timeout.Duration)
	assert.Equal(t, 1.5, cfg.API.RateLimit)

	_, err = cfg.Get("chat.nope")
	assert.Error(t, err)
	assert.Error(t, cfg.Set("chat", "x"))
	assert.Error(t, cfg.Set("chat.max_message_length", "many"))
}

func TestKeys(t *testing.T) {
	keys := Keys()
	assert.Contains(t, keys, "api.base_url")
	assert.Contains(t, keys, "chat.frame_interval")
	assert.Contains(t, keys, "metrics.listen")

	cfg := Default()
	for _, k := range keys {
		_, err := cfg.Get(k)
		assert.NoError(t, err, k)
	}
}

func TestWatcher_ReloadsOnSave(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, SaveTOML(Default(), path))

	w, err := NewWatcher(path, nil)
	require.NoError(t, err)
	w.SetDebounce(20 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *Config, 4)
	go func() { _ = w.Run(ctx, func(c *Config) { changes <- c }) }()

	// Give the watcher a moment to be registered with the kernel.
	time.Sleep(50 * time.Millisecond)
	updated := Default()
	updated.UI.Theme = "light"
	require.NoError(t, SaveTOML(updated, path))

	select {
	case got := <-changes:
		assert.Equal(t, "light", got.UI.Theme)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after save")
	}
}

// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// isolate points HOME and PJAWS_CONFIG somewhere empty so a developer's real
// config file never leaks into a test.
func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv(ConfigPathEnvVar, "")
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Webhook.Bind != "localhost" {
		t.Errorf("Webhook.Bind = %q, want localhost", cfg.Webhook.Bind)
	}
	if cfg.Webhook.Port != 4091 {
		t.Errorf("Webhook.Port = %d, want 4091", cfg.Webhook.Port)
	}
	if len(cfg.Webhook.CORSOrigins) != 0 {
		t.Errorf("Webhook.CORSOrigins = %v, want none", cfg.Webhook.CORSOrigins)
	}
	if cfg.Mapping.MaxAge != 7*24*time.Hour {
		t.Errorf("Mapping.MaxAge = %v, want 168h", cfg.Mapping.MaxAge)
	}
	if cfg.Mapping.URL != DefaultMappingURL {
		t.Errorf("Mapping.URL = %q", cfg.Mapping.URL)
	}
	if cfg.Dispatch.Timeout != 30*time.Second {
		t.Errorf("Dispatch.Timeout = %v, want 30s", cfg.Dispatch.Timeout)
	}
	if cfg.Dispatch.ForwardProgress {
		t.Error("Dispatch.ForwardProgress should be false by default")
	}
	if cfg.AniList.RequestsPerMinute != 80 {
		t.Errorf("AniList.RequestsPerMinute = %d, want 80", cfg.AniList.RequestsPerMinute)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	isolate(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Webhook.Addr() != "localhost:4091" {
		t.Errorf("Addr() = %q, want localhost:4091", cfg.Webhook.Addr())
	}
	if len(cfg.Plex.MissingFields()) != 4 {
		t.Errorf("Plex.MissingFields() = %v, want all four", cfg.Plex.MissingFields())
	}
}

func TestLoad_ExplicitPathMissing(t *testing.T) {
	isolate(t)

	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() with a missing explicit path should fail")
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".config", "pjaws", "config.yaml"), `
webhook:
  port: 5000
plex:
  url: http://plex.local:32400
  token: abcdefghijklmnopqrstuvwxyz
  user: alice
  library: Anime
jellyfin:
  url: https://jf.local
  api_key: key
  user: alice
  library:
    - Anime
    - Anime Movies
mapping:
  max_age: 48h
  overrides:
    anilist:
      "12345": "6789"
`)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Webhook.Port != 5000 {
		t.Errorf("Webhook.Port = %d, want 5000", cfg.Webhook.Port)
	}
	if !reflect.DeepEqual(cfg.Plex.Library, []string{"Anime"}) {
		t.Errorf("Plex.Library = %v, want [Anime]", cfg.Plex.Library)
	}
	if !reflect.DeepEqual(cfg.Jellyfin.Library, []string{"Anime", "Anime Movies"}) {
		t.Errorf("Jellyfin.Library = %v", cfg.Jellyfin.Library)
	}
	if cfg.Mapping.MaxAge != 48*time.Hour {
		t.Errorf("Mapping.MaxAge = %v, want 48h", cfg.Mapping.MaxAge)
	}
	if got := cfg.Mapping.Overrides["anilist"]["12345"]; got != "6789" {
		t.Errorf("override = %q, want 6789", got)
	}
	if len(cfg.Plex.MissingFields()) != 0 {
		t.Errorf("Plex.MissingFields() = %v, want none", cfg.Plex.MissingFields())
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	home := isolate(t)
	path := filepath.Join(home, "custom.yaml")
	writeFile(t, path, "webhook:\n  port: 5000\n")
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("PJAWS_WEBHOOK_PORT", "6000")
	t.Setenv("PJAWS_PLEX_LIBRARY", "Anime, Anime 2")
	t.Setenv("PJAWS_DISPATCH_TIMEOUT", "5s")
	t.Setenv("PJAWS_UNRELATED_SETTING", "ignored")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Webhook.Port != 6000 {
		t.Errorf("Webhook.Port = %d, want 6000", cfg.Webhook.Port)
	}
	if !reflect.DeepEqual(cfg.Plex.Library, []string{"Anime", "Anime 2"}) {
		t.Errorf("Plex.Library = %v", cfg.Plex.Library)
	}
	if cfg.Dispatch.Timeout != 5*time.Second {
		t.Errorf("Dispatch.Timeout = %v, want 5s", cfg.Dispatch.Timeout)
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"PJAWS_PLEX_TOKEN", "plex.token"},
		{"PJAWS_JELLYFIN_API_KEY", "jellyfin.api_key"},
		{"PJAWS_ANILIST_TOKEN", "anilist.token"},
		{"PJAWS_MAPPING_CACHE_DIR", "mapping.cache_dir"},
		{"PJAWS_LOG_LEVEL", "logging.level"},
		{"PJAWS_DISPATCH_FORWARD_PROGRESS", "dispatch.forward_progress"},
		{"PJAWS_CONFIG", ""},
		{"PJAWS_RANDOM", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := envTransformFunc(tt.input); got != tt.expected {
				t.Errorf("envTransformFunc(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(*Config) {}, ""},
		{"port zero", func(c *Config) { c.Webhook.Port = 0 }, "Port"},
		{"port too large", func(c *Config) { c.Webhook.Port = 70000 }, "Port"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "Format"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"plex url with path", func(c *Config) { c.Plex.URL = "http://plex:32400/web" }, "plex.url"},
		{"jellyfin url bad scheme", func(c *Config) { c.Jellyfin.URL = "ftp://jf" }, "jellyfin.url"},
		{"mapping max age zero", func(c *Config) { c.Mapping.MaxAge = 0 }, "mapping.max_age"},
		{"dispatch timeout zero", func(c *Config) { c.Dispatch.Timeout = 0 }, "dispatch.timeout"},
		{"rate limit without window", func(c *Config) { c.Webhook.RateLimitWindow = 0 }, "rate_limit_window"},
		{"mattermost bad url", func(c *Config) { c.Mattermost.WebhookURL = "chat" }, "mattermost.webhook_url"},
		{"empty override", func(c *Config) {
			c.Mapping.Overrides = map[string]map[string]string{"anilist": {"1": ""}}
		}, "mapping.overrides.anilist"},
		{"anilist rate too high", func(c *Config) { c.AniList.RequestsPerMinute = 120 }, "RequestsPerMinute"},
		{"missing plex credentials are fine", func(c *Config) { c.Plex.User = "alice" }, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestSaveFile_RoundTrip(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := defaultConfig()
	cfg.Plex.URL = "http://plex.local:32400"
	cfg.Plex.Token = "abcdefghijklmnopqrstuvwxyz"
	cfg.Plex.User = "alice"
	cfg.Plex.Library = []string{"Anime", "Anime 2"}
	cfg.Dispatch.Timeout = 12 * time.Second
	cfg.Mapping.Overrides = map[string]map[string]string{"anilist": {"12345": "6789"}}

	if err := SaveFile(cfg, path); err != nil {
		t.Fatalf("SaveFile() error: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("file mode = %o, want 600", perm)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(raw), "timeout: 12s") {
		t.Errorf("durations should be written as strings, got:\n%s", raw)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !reflect.DeepEqual(loaded.Plex, cfg.Plex) {
		t.Errorf("Plex = %+v, want %+v", loaded.Plex, cfg.Plex)
	}
	if loaded.Dispatch.Timeout != 12*time.Second {
		t.Errorf("Dispatch.Timeout = %v, want 12s", loaded.Dispatch.Timeout)
	}
	if got := loaded.Mapping.Overrides["anilist"]["12345"]; got != "6789" {
		t.Errorf("override = %q, want 6789", got)
	}
}

func TestMattermostEnabled(t *testing.T) {
	c := MattermostConfig{WebhookURL: "https://chat/hooks/x"}
	if c.Enabled() {
		t.Error("Enabled() should require a channel")
	}
	c.Channel = "anime"
	if !c.Enabled() {
		t.Error("Enabled() = false, want true")
	}
}

// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "PJAWS_CONFIG"

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "PJAWS_"

// DefaultMappingURL is the Kometa community anime id mapping.
const DefaultMappingURL = "https://raw.githubusercontent.com/Kometa-Team/Anime-IDs/master/anime_ids.json"

// DefaultPath returns $HOME/.config/pjaws/config.yaml.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".config", "pjaws", "config.yaml")
	}
	return filepath.Join(home, ".config", "pjaws", "config.yaml")
}

// defaultConfig returns a Config with every default applied.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Webhook: WebhookConfig{
			Bind:              "localhost",
			Port:              4091,
			ReadTimeout:       15 * time.Second,
			RateLimitRequests: 60,
			RateLimitWindow:   time.Minute,
		},
		AniList: AniListConfig{
			URL:               "https://graphql.anilist.co",
			RequestsPerMinute: 80,
		},
		Jellyfin: JellyfinConfig{
			Library: []string{},
		},
		Plex: PlexConfig{
			Library: []string{},
		},
		Mapping: MappingConfig{
			URL:             DefaultMappingURL,
			CacheDir:        "/var/tmp/anidb-watched-sync",
			MaxAge:          7 * 24 * time.Hour,
			RefreshInterval: 24 * time.Hour,
		},
		Dispatch: DispatchConfig{
			Timeout:         30 * time.Second,
			ForwardProgress: false,
			DrainTimeout:    45 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Caller: false,
		},
	}
}

// Load builds the configuration from defaults, the YAML file and PJAWS_*
// environment variables, then validates it.
//
// An explicit path must exist. With an empty path, PJAWS_CONFIG and then
// DefaultPath are tried, and a missing file simply means "defaults + env".
func Load(path string) (*Config, error) {
	k, err := loadKoanf(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadUnvalidated is Load without validation, used by the configure command
// so that an invalid file can still be edited.
func LoadUnvalidated(path string) (*Config, error) {
	k, err := loadKoanf(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	return cfg, nil
}

func loadKoanf(path string) (*koanf.Koanf, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional unless explicit)
	configPath, err := resolveConfigFile(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// PJAWS_PLEX_TOKEN -> plex.token
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Post-process slice fields from comma-separated strings
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	return k, nil
}

// resolveConfigFile returns the file to load, or "" when no file applies.
func resolveConfigFile(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}
	return findConfigFile(), nil
}

// findConfigFile checks PJAWS_CONFIG, then DefaultPath.
func findConfigFile() string {
	for _, path := range []string{os.Getenv(ConfigPathEnvVar), DefaultPath()} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated
// slices. A single YAML string such as `library: Anime` is treated the same way,
// which makes a single library a list of length 1.
var sliceConfigPaths = []string{
	"webhook.cors_origins",
	"jellyfin.library",
	"plex.library",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		// If it's already a slice (from YAML file or defaults), skip
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased variable names (prefix stripped) to koanf paths.
// Unmapped variables are ignored so unrelated PJAWS_* names cannot pollute the config.
var envMappings = map[string]string{
	"webhook_bind":                "webhook.bind",
	"webhook_port":                "webhook.port",
	"webhook_read_timeout":        "webhook.read_timeout",
	"webhook_rate_limit_requests": "webhook.rate_limit_requests",
	"webhook_rate_limit_window":   "webhook.rate_limit_window",
	"webhook_cors_origins":        "webhook.cors_origins",

	"anilist_token":               "anilist.token",
	"anilist_url":                 "anilist.url",
	"anilist_requests_per_minute": "anilist.requests_per_minute",

	"jellyfin_url":     "jellyfin.url",
	"jellyfin_api_key": "jellyfin.api_key",
	"jellyfin_ca_file": "jellyfin.ca_file",
	"jellyfin_user":    "jellyfin.user",
	"jellyfin_library": "jellyfin.library",

	"plex_url":     "plex.url",
	"plex_token":   "plex.token",
	"plex_user":    "plex.user",
	"plex_library": "plex.library",

	"mapping_url":              "mapping.url",
	"mapping_cache_dir":        "mapping.cache_dir",
	"mapping_max_age":          "mapping.max_age",
	"mapping_refresh_interval": "mapping.refresh_interval",

	"dispatch_timeout":          "dispatch.timeout",
	"dispatch_forward_progress": "dispatch.forward_progress",
	"dispatch_drain_timeout":    "dispatch.drain_timeout",

	"mattermost_webhook_url": "mattermost.webhook_url",
	"mattermost_channel":     "mattermost.channel",
	"mattermost_icon_rate":   "mattermost.icon_rate",
	"mattermost_icon_fail":   "mattermost.icon_fail",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - PJAWS_PLEX_TOKEN -> plex.token
//   - PJAWS_JELLYFIN_LIBRARY -> jellyfin.library
//   - PJAWS_LOG_LEVEL -> logging.level
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}

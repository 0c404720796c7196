// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

// Package config loads the pjaws configuration.
//
// Loading order (Koanf v2):
//  1. Defaults: built into defaultConfig
//  2. Config file: YAML, by default $HOME/.config/pjaws/config.yaml
//  3. Environment: PJAWS_* variables override any setting
//
// The returned *Config is built once at startup and passed to every component
// constructor. It is never modified afterwards and is safe for concurrent reads.
//
// A backend section that is incomplete is not a load error. The backend
// reports missing configuration from Init and is disabled for the process
// lifetime.
package config

import (
	"time"
)

// Config holds all application configuration.
type Config struct {
	Webhook    WebhookConfig    `koanf:"webhook"`
	AniList    AniListConfig    `koanf:"anilist"`
	Jellyfin   JellyfinConfig   `koanf:"jellyfin"`
	Plex       PlexConfig       `koanf:"plex"`
	Mapping    MappingConfig    `koanf:"mapping"`
	Dispatch   DispatchConfig   `koanf:"dispatch"`
	Mattermost MattermostConfig `koanf:"mattermost"`
	Logging    LoggingConfig    `koanf:"logging"`
}

// WebhookConfig configures the inbound HTTP listener.
type WebhookConfig struct {
	// Bind is the listen address. Default: localhost
	Bind string `koanf:"bind" validate:"required"`

	// Port is the listen port. Default: 4091
	Port int `koanf:"port" validate:"min=1,max=65535"`

	ReadTimeout time.Duration `koanf:"read_timeout"`

	// RateLimitRequests per RateLimitWindow per client IP on webhook routes.
	// Zero disables inbound rate limiting.
	RateLimitRequests int           `koanf:"rate_limit_requests" validate:"min=0"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`

	// CORSOrigins allowed on the read-only status endpoints. Default: none,
	// which leaves CORS off.
	CORSOrigins []string `koanf:"cors_origins"`
}

// Addr returns the host:port listen address.
func (w *WebhookConfig) Addr() string {
	return joinHostPort(w.Bind, w.Port)
}

// AniListConfig configures the list-tracking backend.
type AniListConfig struct {
	Token string `koanf:"token"`
	URL   string `koanf:"url"`

	// RequestsPerMinute caps outbound GraphQL calls. AniList allows 90.
	RequestsPerMinute int `koanf:"requests_per_minute" validate:"min=1,max=90"`
}

// MissingFields returns the names of required keys that are empty.
func (c *AniListConfig) MissingFields() []string {
	var missing []string
	if c.Token == "" {
		missing = append(missing, "anilist.token")
	}
	return missing
}

// JellyfinConfig configures the Jellyfin server backend and webhook source.
type JellyfinConfig struct {
	URL     string   `koanf:"url"`
	APIKey  string   `koanf:"api_key"`
	CAFile  string   `koanf:"ca_file"`
	User    string   `koanf:"user"`
	Library []string `koanf:"library"`
}

// MissingFields returns the names of required keys that are empty.
func (c *JellyfinConfig) MissingFields() []string {
	var missing []string
	if c.URL == "" {
		missing = append(missing, "jellyfin.url")
	}
	if c.APIKey == "" {
		missing = append(missing, "jellyfin.api_key")
	}
	if c.User == "" {
		missing = append(missing, "jellyfin.user")
	}
	if len(c.Library) == 0 {
		missing = append(missing, "jellyfin.library")
	}
	return missing
}

// WebhookReady reports whether enough is configured to admit Jellyfin events.
func (c *JellyfinConfig) WebhookReady() bool {
	return c.User != "" && len(c.Library) > 0
}

// PlexConfig configures the Plex server backend and webhook source.
type PlexConfig struct {
	URL     string   `koanf:"url"`
	Token   string   `koanf:"token"`
	User    string   `koanf:"user"`
	Library []string `koanf:"library"`
}

// MissingFields returns the names of required keys that are empty.
func (c *PlexConfig) MissingFields() []string {
	var missing []string
	if c.URL == "" {
		missing = append(missing, "plex.url")
	}
	if c.Token == "" {
		missing = append(missing, "plex.token")
	}
	if c.User == "" {
		missing = append(missing, "plex.user")
	}
	if len(c.Library) == 0 {
		missing = append(missing, "plex.library")
	}
	return missing
}

// WebhookReady reports whether enough is configured to admit Plex events.
func (c *PlexConfig) WebhookReady() bool {
	return c.User != "" && len(c.Library) > 0
}

// MappingConfig configures the identifier resolver.
type MappingConfig struct {
	// URL of the community mapping document (anidb id -> ids in other catalogs).
	URL string `koanf:"url"`

	// CacheDir holds mapping.json. Contents are disposable.
	CacheDir string `koanf:"cache_dir" validate:"required"`

	// MaxAge after which the cached document is refreshed. Default: 7 days
	MaxAge time.Duration `koanf:"max_age"`

	// RefreshInterval of the background warm-up service. Zero disables it.
	RefreshInterval time.Duration `koanf:"refresh_interval"`

	// Overrides maps namespace -> source id -> target id, e.g.
	//
	//	overrides:
	//	  anilist:
	//	    "12345": "6789"
	Overrides map[string]map[string]string `koanf:"overrides"`
}

// DispatchConfig configures the reconciliation engine.
type DispatchConfig struct {
	// Timeout bounds each backend call. Default: 30s
	Timeout time.Duration `koanf:"timeout"`

	// ForwardProgress turns non-completed Jellyfin stops into progress
	// updates for backends that support them. Default: false
	ForwardProgress bool `koanf:"forward_progress"`

	// DrainTimeout bounds how long shutdown waits for in-flight dispatches.
	DrainTimeout time.Duration `koanf:"drain_timeout"`
}

// MattermostConfig configures optional chat notifications.
type MattermostConfig struct {
	WebhookURL string `koanf:"webhook_url"`
	Channel    string `koanf:"channel"`
	IconRate   string `koanf:"icon_rate"`
	IconFail   string `koanf:"icon_fail"`
}

// Enabled reports whether notifications should be sent.
func (c *MattermostConfig) Enabled() bool {
	return c.WebhookURL != "" && c.Channel != ""
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: trace, debug, info, warn, error.
	// Default: info
	Level string `koanf:"level"`

	// Format is the output format: json or console.
	// Default: console
	Format string `koanf:"format" validate:"oneof=json console"`

	// Caller includes caller file and line number in logs.
	Caller bool `koanf:"caller"`
}

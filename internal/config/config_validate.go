// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package config

import (
	"fmt"

	"github.com/tomtom215/pjaws/internal/logging"
	"github.com/tomtom215/pjaws/internal/validation"
)

// Validate checks structural rules (struct tags) and then the semantic rules
// of each section. Empty backend credentials are not errors.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c); err != nil {
		return err
	}

	if err := c.validateWebhook(); err != nil {
		return err
	}

	if err := c.validateBackendURLs(); err != nil {
		return err
	}

	if err := c.validateMapping(); err != nil {
		return err
	}

	if err := c.validateDispatch(); err != nil {
		return err
	}

	if err := c.validateMattermost(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateWebhook() error {
	if c.Webhook.RateLimitRequests > 0 && c.Webhook.RateLimitWindow <= 0 {
		return fmt.Errorf("webhook.rate_limit_window must be positive when webhook.rate_limit_requests is set")
	}
	if c.Webhook.ReadTimeout < 0 {
		return fmt.Errorf("webhook.read_timeout must not be negative")
	}
	return nil
}

// validateBackendURLs only checks URLs that are set.
func (c *Config) validateBackendURLs() error {
	if c.AniList.URL != "" {
		if _, err := validateEndpointURL(c.AniList.URL, "anilist.url"); err != nil {
			return err
		}
	}
	if c.Jellyfin.URL != "" {
		if err := validateHTTPURL(c.Jellyfin.URL, "jellyfin.url"); err != nil {
			return err
		}
	}
	if c.Plex.URL != "" {
		if err := validateHTTPURL(c.Plex.URL, "plex.url"); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateMapping() error {
	if _, err := validateEndpointURL(c.Mapping.URL, "mapping.url"); err != nil {
		return err
	}
	if c.Mapping.MaxAge <= 0 {
		return fmt.Errorf("mapping.max_age must be positive, got %s", c.Mapping.MaxAge)
	}
	if c.Mapping.RefreshInterval < 0 {
		return fmt.Errorf("mapping.refresh_interval must not be negative")
	}
	for namespace, pairs := range c.Mapping.Overrides {
		for source, target := range pairs {
			if source == "" || target == "" {
				return fmt.Errorf("mapping.overrides.%s contains an empty id", namespace)
			}
		}
	}
	return nil
}

func (c *Config) validateDispatch() error {
	if c.Dispatch.Timeout <= 0 {
		return fmt.Errorf("dispatch.timeout must be positive, got %s", c.Dispatch.Timeout)
	}
	if c.Dispatch.DrainTimeout < 0 {
		return fmt.Errorf("dispatch.drain_timeout must not be negative")
	}
	return nil
}

func (c *Config) validateMattermost() error {
	if c.Mattermost.WebhookURL == "" {
		return nil
	}
	_, err := validateEndpointURL(c.Mattermost.WebhookURL, "mattermost.webhook_url")
	return err
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("logging.level %q is not a valid level", c.Logging.Level)
	}
	return nil
}

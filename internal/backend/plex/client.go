// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

/*
client.go - Plex Media Server API Client

Minimal client for the library browsing and scrobble endpoints of Plex Media
Server.

Request Configuration:
  - Authentication: X-Plex-Token header on all requests
  - Client identification: X-Plex-Product / X-Plex-Client-Identifier headers
  - JSON Accept: Accept: application/json
  - Rate Limiting: HTTP 429 retried with exponential backoff
  - Every call passes through the "plex-api" circuit breaker
*/

package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pjaws/internal/backend"
	"github.com/tomtom215/pjaws/internal/logging"
	"github.com/tomtom215/pjaws/internal/metrics"
)

const (
	name = "plex"

	requestTimeout = 30 * time.Second

	// libraryIdentifier is the plugin identifier of the media library.
	libraryIdentifier = "com.plexapp.plugins.library"

	// clientIdentifier is sent as X-Plex-Client-Identifier.
	clientIdentifier = "c3afbfaf-1906-4750-8116-1fdcafdf1dbe"

	// typeShow is the Plex metadata type number of TV shows.
	typeShow = "2"
)

// MediaContainer is the envelope of every Plex JSON response.
type MediaContainer struct {
	Size      int         `json:"size"`
	Directory []Directory `json:"Directory,omitempty"`
	Metadata  []Metadata  `json:"Metadata,omitempty"`
	Account   []Account   `json:"Account,omitempty"`
}

type containerResponse struct {
	MediaContainer MediaContainer `json:"MediaContainer"`
}

// Directory is a library section.
type Directory struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
	Agent string `json:"agent"`
}

// Metadata is a show, season or episode.
type Metadata struct {
	RatingKey  string `json:"ratingKey"`
	GUID       string `json:"guid"`
	Type       string `json:"type"`
	Title      string `json:"title"`
	Index      int    `json:"index,omitempty"`
	ViewCount  int    `json:"viewCount,omitempty"`
	ViewOffset int64  `json:"viewOffset,omitempty"`
}

// Account is a server account.
type Account struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Client handles communication with the Plex Media Server API.
type Client struct {
	baseURL        string
	token          string
	httpClient     *http.Client
	breaker        *backend.Breaker
	maxRetries     int
	retryBaseDelay time.Duration
}

// NewClient creates a Plex API client.
//
// Parameters:
//   - baseURL: Plex Media Server URL (e.g., "http://localhost:32400")
//   - token: X-Plex-Token for authentication (find in Settings → Network → Show Advanced)
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: requestTimeout,
		},
		breaker:        backend.NewBreaker(name),
		maxRetries:     5,
		retryBaseDelay: time.Second,
	}
}

// BreakerState returns the circuit breaker state.
func (c *Client) BreakerState() string { return c.breaker.State() }

// GetSections returns all library sections.
func (c *Client) GetSections(ctx context.Context) ([]Directory, error) {
	var resp containerResponse
	if err := c.doRequest(ctx, "/library/sections", nil, &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Directory, nil
}

// GetAccounts returns the accounts known to the server.
func (c *Client) GetAccounts(ctx context.Context) ([]Account, error) {
	var resp containerResponse
	if err := c.doRequest(ctx, "/accounts", nil, &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Account, nil
}

// GetShows returns every show of sectionKey.
func (c *Client) GetShows(ctx context.Context, sectionKey string) ([]Metadata, error) {
	query := url.Values{}
	query.Set("type", typeShow)

	var resp containerResponse
	if err := c.doRequest(ctx, "/library/sections/"+url.PathEscape(sectionKey)+"/all", query, &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Metadata, nil
}

// GetChildren returns the seasons of a show or the episodes of a season.
func (c *Client) GetChildren(ctx context.Context, ratingKey string) ([]Metadata, error) {
	var resp containerResponse
	if err := c.doRequest(ctx, "/library/metadata/"+url.PathEscape(ratingKey)+"/children", nil, &resp); err != nil {
		return nil, err
	}
	return resp.MediaContainer.Metadata, nil
}

// GetMetadata returns a single item.
func (c *Client) GetMetadata(ctx context.Context, ratingKey string) (*Metadata, error) {
	var resp containerResponse
	if err := c.doRequest(ctx, "/library/metadata/"+url.PathEscape(ratingKey), nil, &resp); err != nil {
		return nil, err
	}
	if len(resp.MediaContainer.Metadata) == 0 {
		return nil, fmt.Errorf("plex metadata %s: empty response", ratingKey)
	}
	return &resp.MediaContainer.Metadata[0], nil
}

// Scrobble marks ratingKey as watched.
func (c *Client) Scrobble(ctx context.Context, ratingKey string) error {
	query := url.Values{}
	query.Set("identifier", libraryIdentifier)
	query.Set("key", ratingKey)
	return c.doRequest(ctx, "/:/scrobble", query, nil)
}

// Progress records a stopped playback position for ratingKey.
func (c *Client) Progress(ctx context.Context, ratingKey string, positionMs int64) error {
	query := url.Values{}
	query.Set("identifier", libraryIdentifier)
	query.Set("key", ratingKey)
	query.Set("time", strconv.FormatInt(positionMs, 10))
	query.Set("state", "stopped")
	return c.doRequest(ctx, "/:/progress", query, nil)
}

// doRequest executes a GET through the circuit breaker and decodes the
// response into result when non-nil.
func (c *Client) doRequest(ctx context.Context, path string, query url.Values, result any) error {
	return c.breaker.Execute(func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, http.NoBody)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("X-Plex-Token", c.token)
		req.Header.Set("X-Plex-Product", backend.Product)
		req.Header.Set("X-Plex-Version", backend.ClientVersion)
		req.Header.Set("X-Plex-Client-Identifier", clientIdentifier)
		req.Header.Set("Accept", "application/json")

		if len(query) > 0 {
			req.URL.RawQuery = query.Encode()
		}

		resp, err := c.doRequestWithRateLimit(req)
		if err != nil {
			return err
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
			return backend.ReadError(name, path, resp)
		}

		if result != nil {
			if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
		}
		return nil
	})
}

// doRequestWithRateLimit executes req, retrying HTTP 429 responses with
// exponential backoff (1s, 2s, 4s, ...). A Retry-After header in seconds
// replaces the computed delay.
func (c *Client) doRequestWithRateLimit(req *http.Request) (*http.Response, error) {
	for attempt := 0; ; attempt++ {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordBackendAPIRequest(name, 0)
			return nil, fmt.Errorf("execute request: %w", err)
		}
		metrics.RecordBackendAPIRequest(name, resp.StatusCode)

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		// Rate limited - close response and retry
		_ = resp.Body.Close()

		if attempt == c.maxRetries {
			return nil, &backend.StatusError{
				Backend:  name,
				Endpoint: req.URL.Path,
				Status:   http.StatusTooManyRequests,
				Body:     fmt.Sprintf("rate limit exceeded after %d retries", c.maxRetries),
			}
		}

		retryDelay := c.retryBaseDelay * (1 << attempt)
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := strconv.Atoi(retryAfter); err == nil && seconds >= 0 {
				retryDelay = time.Duration(seconds) * time.Second
			}
		}

		logging.Warn().Dur("retry_delay", retryDelay).Int("attempt", attempt+1).Int("max_retries", c.maxRetries).Msg("Plex API rate limited (HTTP 429), retrying")

		timer := time.NewTimer(retryDelay)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

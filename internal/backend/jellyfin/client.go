// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

/*
client.go - Jellyfin REST API Client

Minimal client for the parts of the Jellyfin API needed to mark episodes as
played: user and library lookup, paged item queries and PlayedItems.

Request Configuration:
  - Authentication: X-Emby-Token plus an X-Emby-Authorization client header
  - 10 second timeout, optional extra CA bundle for self-signed servers
  - Every call passes through the "jellyfin-api" circuit breaker

API Reference: https://api.jellyfin.org/
*/

package jellyfin

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
	"github.com/tomtom215/pjaws/internal/metrics"
)

const (
	name = "jellyfin"

	requestTimeout = 10 * time.Second

	// pageSize of paged /Items queries.
	pageSize = 100
)

var authorizationHeader = fmt.Sprintf(
	`MediaBrowser Client="%s", Device="%s", DeviceId="%s", Version="%s"`,
	backend.Product, backend.Product, backend.Product, backend.ClientVersion,
)

// User is an entry of GET /Users.
type User struct {
	ID   string `json:"Id"`
	Name string `json:"Name"`
}

// UserData is the per-user state of an item.
type UserData struct {
	Played                bool    `json:"Played"`
	PlayedPercentage      float64 `json:"PlayedPercentage,omitempty"`
	PlaybackPositionTicks int64   `json:"PlaybackPositionTicks,omitempty"`
}

// Item is a library view, series or episode.
type Item struct {
	ID                string            `json:"Id"`
	Name              string            `json:"Name"`
	Type              string            `json:"Type"`
	ProviderIDs       map[string]string `json:"ProviderIds,omitempty"`
	IndexNumber       *int              `json:"IndexNumber,omitempty"`
	ParentIndexNumber *int              `json:"ParentIndexNumber,omitempty"`
	UserData          *UserData         `json:"UserData,omitempty"`
}

// ProviderID returns the provider id stored under key, compared
// case-insensitively ("AniDB" and "anidb" both occur in the wild).
func (i *Item) ProviderID(key string) string {
	for k, v := range i.ProviderIDs {
		if strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}

// Played reports the user's played flag.
func (i *Item) Played() bool {
	return i.UserData != nil && i.UserData.Played
}

// ItemsResponse is the envelope of item queries.
type ItemsResponse struct {
	Items            []Item `json:"Items"`
	TotalRecordCount int    `json:"TotalRecordCount"`
}

// Client provides access to the Jellyfin REST API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *backend.Breaker
}

// NewClient creates a Jellyfin API client.
//
// Parameters:
//   - baseURL: Jellyfin server URL (e.g., http://localhost:8096)
//   - apiKey: Jellyfin API key from Admin Dashboard > API Keys
//   - caFile: Optional PEM bundle trusted in addition to the system roots
func NewClient(baseURL, apiKey, caFile string) (*Client, error) {
	httpClient, err := backend.NewHTTPClient(requestTimeout, caFile)
	if err != nil {
		return nil, err
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
		breaker:    backend.NewBreaker(name),
	}, nil
}

// BreakerState returns the circuit breaker state.
func (c *Client) BreakerState() string { return c.breaker.State() }

// GetUsers retrieves all users.
func (c *Client) GetUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.doRequest(ctx, http.MethodGet, "/Users", nil, &users); err != nil {
		return nil, fmt.Errorf("jellyfin users request failed: %w", err)
	}
	return users, nil
}

// GetViews retrieves the libraries visible to userID.
func (c *Client) GetViews(ctx context.Context, userID string) ([]Item, error) {
	var resp ItemsResponse
	if err := c.doRequest(ctx, http.MethodGet, "/Users/"+url.PathEscape(userID)+"/Views", nil, &resp); err != nil {
		return nil, fmt.Errorf("jellyfin views request failed: %w", err)
	}
	return resp.Items, nil
}

// EachItem pages through the items of type itemType below parentID and calls
// fn for each one until fn returns false.
func (c *Client) EachItem(ctx context.Context, userID, parentID, itemType string, fn func(*Item) bool) error {
	endpoint := "/Users/" + url.PathEscape(userID) + "/Items"

	for start := 0; ; start += pageSize {
		query := url.Values{}
		query.Set("ParentId", parentID)
		query.Set("Recursive", "true")
		query.Set("IncludeItemTypes", itemType)
		query.Set("Fields", "ProviderIds")
		query.Set("Limit", strconv.Itoa(pageSize))
		query.Set("StartIndex", strconv.Itoa(start))

		var page ItemsResponse
		if err := c.doRequest(ctx, http.MethodGet, endpoint, query, &page); err != nil {
			return fmt.Errorf("jellyfin items request failed: %w", err)
		}

		for i := range page.Items {
			if !fn(&page.Items[i]) {
				return nil
			}
		}

		if len(page.Items) == 0 || start+pageSize >= page.TotalRecordCount {
			return nil
		}
	}
}

// MarkPlayed marks itemID as played for userID and returns the new state.
func (c *Client) MarkPlayed(ctx context.Context, userID, itemID string) (*UserData, error) {
	endpoint := "/Users/" + url.PathEscape(userID) + "/PlayedItems/" + url.PathEscape(itemID)

	var data UserData
	if err := c.doRequest(ctx, http.MethodPost, endpoint, nil, &data); err != nil {
		return nil, fmt.Errorf("jellyfin mark played failed: %w", err)
	}
	return &data, nil
}

// doRequest performs one API request through the circuit breaker and
// decodes a JSON response into result when non-nil.
func (c *Client) doRequest(ctx context.Context, method, endpoint string, query url.Values, result any) error {
	return c.breaker.Execute(func() error {
		fullURL := c.baseURL + endpoint
		if len(query) > 0 {
			fullURL += "?" + query.Encode()
		}

		req, err := http.NewRequestWithContext(ctx, method, fullURL, http.NoBody)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		req.Header.Set("X-Emby-Token", c.apiKey)
		req.Header.Set("X-Emby-Authorization", authorizationHeader)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordBackendAPIRequest(name, 0)
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		metrics.RecordBackendAPIRequest(name, resp.StatusCode)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return backend.ReadError(name, endpoint, resp)
		}

		if result == nil || resp.StatusCode == http.StatusNoContent {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode %s response: %w", endpoint, err)
		}
		return nil
	})
}

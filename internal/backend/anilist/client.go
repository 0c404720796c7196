// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

/*
client.go - AniList GraphQL API Client

Request Configuration:
  - Authentication: Authorization: Bearer <token>
  - Outbound rate limit: token bucket from golang.org/x/time/rate, the API
    allows 90 requests per minute
  - Every call passes through the "anilist-api" circuit breaker
  - GraphQL errors are surfaced as backend.StatusError carrying the status
    reported by the API (404 for missing list entries)

API Reference: https://docs.anilist.co/
*/

package anilist

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/pjaws/internal/backend"
	"github.com/tomtom215/pjaws/internal/metrics"
)

const (
	name = "anilist"

	requestTimeout = 15 * time.Second

	// maxResponseBody caps decoded responses.
	maxResponseBody = 1 << 20
)

// MediaListStatus is the list an entry belongs to.
type MediaListStatus string

const (
	StatusCurrent   MediaListStatus = "CURRENT"
	StatusPlanning  MediaListStatus = "PLANNING"
	StatusCompleted MediaListStatus = "COMPLETED"
	StatusDropped   MediaListStatus = "DROPPED"
	StatusPaused    MediaListStatus = "PAUSED"
	StatusRepeating MediaListStatus = "REPEATING"
)

const (
	viewerQuery = `query { Viewer { id name } }`

	mediaListQuery = `query ($userId: Int, $mediaId: Int) {
  MediaList(userId: $userId, mediaId: $mediaId, type: ANIME) {
    id
    status
    progress
    media { id episodes siteUrl title { userPreferred } }
  }
}`

	saveEntryMutation = `mutation ($id: Int, $progress: Int, $status: MediaListStatus) {
  SaveMediaListEntry(id: $id, progress: $progress, status: $status) {
    id
    status
    progress
  }
}`
)

// Viewer is the authenticated user.
type Viewer struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Media is the series a list entry refers to. Episodes is nil while the
// total is unknown.
type Media struct {
	ID       int    `json:"id"`
	Episodes *int   `json:"episodes"`
	SiteURL  string `json:"siteUrl"`
	Title    struct {
		UserPreferred string `json:"userPreferred"`
	} `json:"title"`
}

// MediaList is one entry of the user's anime list.
type MediaList struct {
	ID       int             `json:"id"`
	Status   MediaListStatus `json:"status"`
	Progress int             `json:"progress"`
	Media    *Media          `json:"media,omitempty"`
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables,omitempty"`
}

type graphQLError struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []graphQLError  `json:"errors,omitempty"`
}

// Client speaks to the AniList GraphQL endpoint.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *backend.Breaker
}

// NewClient creates a client issuing at most requestsPerMinute requests.
func NewClient(endpoint, token string, requestsPerMinute int) *Client {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 80
	}
	return &Client{
		endpoint:   endpoint,
		token:      token,
		httpClient: &http.Client{Timeout: requestTimeout},
		limiter:    rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 5),
		breaker:    backend.NewBreaker(name),
	}
}

// BreakerState returns the circuit breaker state.
func (c *Client) BreakerState() string { return c.breaker.State() }

// Viewer returns the owner of the token.
func (c *Client) Viewer(ctx context.Context) (*Viewer, error) {
	var data struct {
		Viewer *Viewer `json:"Viewer"`
	}
	if err := c.query(ctx, "Viewer", viewerQuery, nil, &data); err != nil {
		return nil, err
	}
	if data.Viewer == nil {
		return nil, fmt.Errorf("anilist Viewer: empty response")
	}
	return data.Viewer, nil
}

// MediaList returns userID's entry for mediaID. A missing entry is a
// StatusError with status 404.
func (c *Client) MediaList(ctx context.Context, userID, mediaID int) (*MediaList, error) {
	var data struct {
		MediaList *MediaList `json:"MediaList"`
	}
	vars := map[string]any{"userId": userID, "mediaId": mediaID}
	if err := c.query(ctx, "MediaList", mediaListQuery, vars, &data); err != nil {
		return nil, err
	}
	if data.MediaList == nil {
		return nil, &backend.StatusError{Backend: name, Endpoint: "MediaList", Status: http.StatusNotFound, Body: "Not Found."}
	}
	return data.MediaList, nil
}

// SaveMediaListEntry updates progress and status of entry id and returns the
// state stored by the API.
func (c *Client) SaveMediaListEntry(ctx context.Context, id, progress int, status MediaListStatus) (*MediaList, error) {
	var data struct {
		SaveMediaListEntry *MediaList `json:"SaveMediaListEntry"`
	}
	vars := map[string]any{"id": id, "progress": progress, "status": status}
	if err := c.query(ctx, "SaveMediaListEntry", saveEntryMutation, vars, &data); err != nil {
		return nil, err
	}
	if data.SaveMediaListEntry == nil {
		return nil, fmt.Errorf("anilist SaveMediaListEntry: empty response")
	}
	return data.SaveMediaListEntry, nil
}

// query runs one GraphQL operation and decodes its data into result.
func (c *Client) query(ctx context.Context, operation, query string, vars map[string]any, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("anilist rate limiter: %w", err)
	}

	return c.breaker.Execute(func() error {
		body, err := json.Marshal(graphQLRequest{Query: query, Variables: vars})
		if err != nil {
			return fmt.Errorf("encode %s: %w", operation, err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			metrics.RecordBackendAPIRequest(name, 0)
			return err
		}
		defer func() { _ = resp.Body.Close() }()
		metrics.RecordBackendAPIRequest(name, resp.StatusCode)

		raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return fmt.Errorf("read %s response: %w", operation, err)
		}

		var gr graphQLResponse
		decodeErr := json.Unmarshal(raw, &gr)

		if len(gr.Errors) > 0 {
			return graphQLFailure(operation, resp.StatusCode, gr.Errors)
		}
		if resp.StatusCode != http.StatusOK {
			return &backend.StatusError{Backend: name, Endpoint: operation, Status: resp.StatusCode, Body: truncate(string(raw))}
		}
		if decodeErr != nil {
			return fmt.Errorf("decode %s response: %w", operation, decodeErr)
		}
		if err := json.Unmarshal(gr.Data, result); err != nil {
			return fmt.Errorf("decode %s data: %w", operation, err)
		}
		return nil
	})
}

func graphQLFailure(operation string, httpStatus int, errs []graphQLError) error {
	status := errs[0].Status
	if status == 0 {
		status = httpStatus
	}
	if status == 0 || status == http.StatusOK {
		status = http.StatusBadGateway
	}
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Message)
	}
	return &backend.StatusError{Backend: name, Endpoint: operation, Status: status, Body: strings.Join(msgs, "; ")}
}

func truncate(s string) string {
	const limit = 256
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

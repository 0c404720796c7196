// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package models

import (
	"time"
)

// APIResponse is the envelope every HTTP endpoint answers with.
//
// Status field values:
//   - "success": Request accepted, see Data field
//   - "error": Request rejected, see Error field for details
//
// Example webhook acknowledgement:
//
//	{
//	  "status": "success",
//	  "data": {"accepted": true, "filtered": false, "correlation_id": "3fa9c2d1"},
//	  "metadata": {"timestamp": "2026-06-01T12:00:00Z"}
//	}
type APIResponse struct {
	Status   string    `json:"status"`
	Data     any       `json:"data"`
	Metadata Metadata  `json:"metadata"`
	Error    *APIError `json:"error,omitempty"`
}

// Metadata contains response metadata.
type Metadata struct {
	Timestamp   time.Time `json:"timestamp"`
	QueryTimeMS int64     `json:"query_time_ms,omitempty"`
}

// APIError carries a machine-readable code and a human-readable message.
//
// Codes in use:
//   - VALIDATION_ERROR: payload malformed or a required field is missing
//   - NOT_CONFIGURED: the source integration is not configured
//   - RATE_LIMIT_EXCEEDED: too many requests
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// WebhookAck is the Data payload of a webhook response.
type WebhookAck struct {
	Accepted      bool   `json:"accepted"`
	Filtered      bool   `json:"filtered"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// BackendStatus describes one registered backend for /api/v1/backends.
type BackendStatus struct {
	Name      string `json:"name"`
	State     string `json:"state"`
	Reason    string `json:"reason,omitempty"`
	Namespace string `json:"namespace"`
	Breaker   string `json:"breaker,omitempty"`
}

// HealthStatus is returned by /api/v1/health.
type HealthStatus struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	Uptime        string `json:"uptime"`
	ReadyBackends int    `json:"ready_backends"`
}

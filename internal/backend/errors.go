// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// StatusError is a non-2xx response from a backend API.
type StatusError struct {
	Backend  string
	Endpoint string
	Status   int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s returned status %d", e.Backend, e.Endpoint, e.Status)
	}
	return fmt.Sprintf("%s %s returned status %d: %s", e.Backend, e.Endpoint, e.Status, e.Body)
}

// IsClientError reports whether the response was a 4xx other than 429.
func (e *StatusError) IsClientError() bool {
	return e.Status >= 400 && e.Status < 500 && e.Status != http.StatusTooManyRequests
}

// IsStatus reports whether err is a StatusError with the given status.
func IsStatus(err error, status int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == status
}

// countsAsSuccess decides whether err should count against a breaker.
// Client errors and caller cancellation say nothing about backend health.
func countsAsSuccess(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.IsClientError()
	}
	return false
}

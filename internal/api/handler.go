// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

// Package api serves the inbound webhooks and the read-only status endpoints.
//
// A webhook is normalized synchronously and answered as soon as the admission
// decision is made. Backend dispatch runs in the background and never
// influences the response:
//
//	200  accepted, filtered out, or accepted with dispatch still running
//	400  payload malformed or a required field missing
//	503  the source is not configured, or the process is shutting down
package api

import (
	"context"
	"time"

	"github.com/tomtom215/pjaws/internal/models"
)

// Normalizer turns raw webhook bodies into WatchEvents.
type Normalizer interface {
	Plex(ctx context.Context, payload []byte) (*models.WatchEvent, error)
	Jellyfin(ctx context.Context, body []byte) (*models.WatchEvent, error)
}

// Dispatcher hands an admitted event to the backends without blocking.
type Dispatcher interface {
	Dispatch(ctx context.Context, ev *models.WatchEvent) error
}

// StatusSource reports the state of every registered backend.
type StatusSource interface {
	Statuses() []models.BackendStatus
}

// Handler holds the dependencies of all HTTP handlers.
type Handler struct {
	normalizer Normalizer
	dispatcher Dispatcher
	backends   StatusSource
	version    string
	startTime  time.Time
}

// NewHandler creates a Handler.
func NewHandler(normalizer Normalizer, dispatcher Dispatcher, backends StatusSource, version string) *Handler {
	return &Handler{
		normalizer: normalizer,
		dispatcher: dispatcher,
		backends:   backends,
		version:    version,
		startTime:  time.Now(),
	}
}

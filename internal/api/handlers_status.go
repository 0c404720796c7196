// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package api

import (
	"net/http"
	"time"

	"github.com/tomtom215/pjaws/internal/backend"
	"github.com/tomtom215/pjaws/internal/models"
)

// Health handles liveness probe requests
// GET /api/v1/health
//
// Returns 200 while the process is alive, even with every backend disabled.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	ready := 0
	for _, s := range h.backends.Statuses() {
		if s.State == backend.StateReady.String() {
			ready++
		}
	}

	respondSuccess(w, start, models.HealthStatus{
		Status:        "ok",
		Version:       h.version,
		Uptime:        time.Since(h.startTime).Round(time.Second).String(),
		ReadyBackends: ready,
	})
}

// Backends lists every registered backend with its state
// GET /api/v1/backends
func (h *Handler) Backends(w http.ResponseWriter, r *http.Request) {
	respondSuccess(w, time.Now(), h.backends.Statuses())
}

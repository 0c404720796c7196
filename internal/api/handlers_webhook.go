// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/pjaws/internal/engine"
	"github.com/tomtom215/pjaws/internal/logging"
	"github.com/tomtom215/pjaws/internal/metrics"
	"github.com/tomtom215/pjaws/internal/models"
	"github.com/tomtom215/pjaws/internal/normalize"
)

const (
	// Plex posts the episode thumbnail alongside the payload field.
	maxPlexBodyBytes = 16 << 20
	maxFormMemory    = 1 << 20

	maxJellyfinBodyBytes = 1 << 20

	plexUserAgentPrefix = "PlexMediaServer/"
)

// PlexWebhook handles Plex Media Server webhook deliveries
// POST /plex
//
// Plex sends multipart/form-data with the JSON document in the "payload"
// field; urlencoded forms are accepted as well.
func (h *Handler) PlexWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if ua := r.UserAgent(); !strings.HasPrefix(ua, plexUserAgentPrefix) {
		logging.Ctx(r.Context()).Warn().
			Str("user_agent", logging.SanitizeValue(ua)).
			Msg("Plex webhook from unexpected user agent")
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxPlexBodyBytes)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		metrics.RecordWebhook(models.SourcePlex.String(), "malformed")
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "Failed to parse form body", err)
		return
	}

	ev, err := h.normalizer.Plex(r.Context(), []byte(r.PostFormValue("payload")))
	h.acknowledge(w, r, start, models.SourcePlex, ev, err)
}

// JellyfinWebhook handles jellyfin-plugin-webhook deliveries
// POST /jellyfin
func (h *Handler) JellyfinWebhook(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJellyfinBodyBytes))
	if err != nil {
		metrics.RecordWebhook(models.SourceJellyfin.String(), "malformed")
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "Failed to read request body", err)
		return
	}

	ev, err := h.normalizer.Jellyfin(r.Context(), body)
	h.acknowledge(w, r, start, models.SourceJellyfin, ev, err)
}

// acknowledge maps a normalization outcome to the HTTP response and starts
// dispatch for an admitted event.
func (h *Handler) acknowledge(w http.ResponseWriter, r *http.Request, start time.Time, source models.SourceSystem, ev *models.WatchEvent, err error) {
	ctx := r.Context()
	name := source.String()

	switch {
	case errors.Is(err, normalize.ErrNotConfigured):
		metrics.RecordWebhook(name, "not_configured")
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeNotConfigured, name+" integration is not configured", err)
		return
	case err != nil:
		metrics.RecordWebhook(name, "malformed")
		respondError(w, r, http.StatusBadRequest, ErrCodeValidation, "Payload malformed or missing a required field", err)
		return
	case ev == nil:
		metrics.RecordWebhook(name, "filtered")
		respondSuccess(w, start, models.WebhookAck{
			Accepted:      true,
			Filtered:      true,
			CorrelationID: logging.CorrelationIDFromContext(ctx),
		})
		return
	}

	if derr := h.dispatcher.Dispatch(ctx, ev); derr != nil {
		metrics.RecordWebhook(name, "rejected")
		if errors.Is(derr, engine.ErrClosed) {
			respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Shutting down", derr)
			return
		}
		respondError(w, r, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Dispatch unavailable", derr)
		return
	}

	metrics.RecordWebhook(name, "admitted")
	logging.Ctx(ctx).Info().
		Str("source", name).
		Str("event", logging.SanitizeValue(ev.Label())).
		Bool("completed", ev.Completed).
		Msg("Webhook accepted")

	respondSuccess(w, start, models.WebhookAck{
		Accepted:      true,
		CorrelationID: logging.CorrelationIDFromContext(ctx),
	})
}

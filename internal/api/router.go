// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/pjaws/internal/config"
	"github.com/tomtom215/pjaws/internal/middleware"
	"github.com/tomtom215/pjaws/internal/models"
)

// NewRouter builds the chi router.
//
// Route groups:
//   - Webhooks: POST /plex, POST /jellyfin (rate limited per client IP)
//   - Status: GET /api/v1/health, GET /api/v1/backends (CORS when origins are configured)
//   - Metrics: GET /metrics
func NewRouter(h *Handler, cfg *config.WebhookConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware, outermost first
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Correlation)
	r.Use(middleware.PrometheusMetrics)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusNotFound, ErrCodeNotFound, "Not found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, http.StatusMethodNotAllowed, ErrCodeMethodNotAllowed, "Method not allowed", nil)
	})

	r.Group(func(r chi.Router) {
		r.Use(rateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Post("/plex", h.PlexWebhook)
		r.Post("/jellyfin", h.JellyfinWebhook)
	})

	r.Route("/api/v1", func(r chi.Router) {
		if len(cfg.CORSOrigins) > 0 {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: cfg.CORSOrigins,
				AllowedMethods: []string{http.MethodGet, http.MethodOptions},
				AllowedHeaders: []string{"Content-Type"},
				MaxAge:         86400,
			}))
		}
		r.Get("/health", h.Health)
		r.Get("/backends", h.Backends)
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

// rateLimit returns an httprate limiter keyed by client IP. RealIP runs
// first, so proxies setting X-Forwarded-For are honored. A non-positive
// request count disables limiting.
func rateLimit(requests int, window time.Duration) func(http.Handler) http.Handler {
	if requests <= 0 || window <= 0 {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.Limit(
		requests,
		window,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			respondJSON(w, http.StatusTooManyRequests, &models.APIResponse{
				Status:   "error",
				Metadata: models.Metadata{Timestamp: time.Now()},
				Error: &models.APIError{
					Code:    ErrCodeRateLimited,
					Message: "Too many requests",
				},
			})
		}),
	)
}

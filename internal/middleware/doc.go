// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

/*
Package middleware provides the HTTP middleware placed in front of the webhook
and status handlers.

Key Components:

  - Correlation: short per-request correlation id carried by every log line
    produced while handling the request and dispatching its event
  - RequestID: X-Request-ID propagation, generated as a UUID when absent
  - PrometheusMetrics: request count, duration and in-flight instrumentation

Middleware Stack:

The router installs them as chi middleware, outermost first:

	r.Use(middleware.RequestID)
	r.Use(middleware.Correlation)
	r.Use(middleware.PrometheusMetrics)

Correlation IDs:

The correlation id is an 8 hex digit xxhash of the arrival time, request URL
and client address. It is short enough to grep for and unique enough to tell
near-simultaneous deliveries apart. Handlers read it back with
logging.CorrelationIDFromContext and return it in the webhook acknowledgement.

Thread Safety:

All middleware is stateless apart from the prometheus collectors, which are
safe for concurrent use.

See Also:

  - internal/api: router and handlers wrapped by this middleware
  - internal/logging: context helpers the ids are stored with
  - internal/metrics: collector definitions
*/
package middleware

// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/tomtom215/pjaws/internal/logging"
)

// CorrelationHeader is set on every response so that operators can match a
// webhook delivery to its log lines.
const CorrelationHeader = "X-Correlation-ID"

// now is replaced in tests.
var now = time.Now

// Correlation assigns the request a correlation id and stores it in the
// request context for logging.Ctx.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := CorrelationID(now(), r.URL.String(), r.RemoteAddr)
		w.Header().Set(CorrelationHeader, id)

		ctx := logging.ContextWithCorrelationID(r.Context(), id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationID hashes the arrival time, URL and client address into an
// 8 hex digit id.
func CorrelationID(arrival time.Time, url, remoteAddr string) string {
	d := xxhash.New()
	_, _ = d.WriteString(strconv.FormatInt(arrival.UnixNano(), 10))
	_, _ = d.WriteString(url)
	_, _ = d.WriteString(remoteAddr)
	return fmt.Sprintf("%08x", uint32(d.Sum64()))
}

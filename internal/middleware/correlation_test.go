// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package middleware

import (
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/tomtom215/pjaws/internal/logging"
)

var hexID = regexp.MustCompile(`^[0-9a-f]{8}$`)

func TestCorrelationID_Format(t *testing.T) {
	id := CorrelationID(time.Unix(1700000000, 0), "/plex", "10.0.0.1:5555")
	if !hexID.MatchString(id) {
		t.Errorf("CorrelationID() = %q, want 8 hex digits", id)
	}
}

func TestCorrelationID_Inputs(t *testing.T) {
	at := time.Unix(1700000000, 42)
	base := CorrelationID(at, "/plex", "10.0.0.1:5555")

	if again := CorrelationID(at, "/plex", "10.0.0.1:5555"); again != base {
		t.Errorf("same inputs gave %q and %q", base, again)
	}

	tests := []struct {
		name   string
		at     time.Time
		url    string
		remote string
	}{
		{"different time", at.Add(time.Nanosecond), "/plex", "10.0.0.1:5555"},
		{"different url", at, "/jellyfin", "10.0.0.1:5555"},
		{"different client", at, "/plex", "10.0.0.2:5555"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CorrelationID(tt.at, tt.url, tt.remote); got == base {
				t.Errorf("CorrelationID() = %q, want it to differ from %q", got, base)
			}
		})
	}
}

func TestCorrelation_StoresIDInContext(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = time.Now })

	var captured string
	handler := Correlation(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = logging.CorrelationIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/plex", nil)
	req.RemoteAddr = "192.0.2.7:40000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	want := CorrelationID(fixed, req.URL.String(), req.RemoteAddr)
	if captured != want {
		t.Errorf("context correlation id = %q, want %q", captured, want)
	}
	if got := rec.Header().Get(CorrelationHeader); got != want {
		t.Errorf("%s = %q, want %q", CorrelationHeader, got, want)
	}
}

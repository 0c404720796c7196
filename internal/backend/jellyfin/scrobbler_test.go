// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package jellyfin

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pjaws/internal/backend"
	"github.com/tomtom215/pjaws/internal/config"
	"github.com/tomtom215/pjaws/internal/mapping"
	"github.com/tomtom215/pjaws/internal/models"
)

const testAPIKey = "test-key"

func intPtr(i int) *int { return &i }

// fakeServer is a minimal in-memory Jellyfin.
type fakeServer struct {
	mu       sync.Mutex
	series   []Item
	episodes map[string][]Item // series id -> episodes
	played   map[string]bool
	marks    int
	failMark bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		episodes: map[string][]Item{},
		played:   map[string]bool{},
	}
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("X-Emby-Token") != testAPIKey {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if !strings.HasPrefix(r.Header.Get("X-Emby-Authorization"), "MediaBrowser ") {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.URL.Path == "/Users":
		writeJSON(w, []User{{ID: "u0", Name: "bob"}, {ID: "u1", Name: "alice"}})
	case r.URL.Path == "/Users/u1/Views":
		writeJSON(w, ItemsResponse{Items: []Item{{ID: "lib-anime", Name: "Anime"}, {ID: "lib-movies", Name: "Movies"}}})
	case r.URL.Path == "/Users/u1/Items":
		f.serveItems(w, r)
	case strings.HasPrefix(r.URL.Path, "/Users/u1/PlayedItems/") && r.Method == http.MethodPost:
		id := strings.TrimPrefix(r.URL.Path, "/Users/u1/PlayedItems/")
		f.marks++
		if f.failMark {
			writeJSON(w, UserData{Played: false})
			return
		}
		f.played[id] = true
		writeJSON(w, UserData{Played: true})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (f *fakeServer) serveItems(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var all []Item
	switch q.Get("IncludeItemTypes") {
	case itemTypeSeries:
		if q.Get("ParentId") == "lib-anime" {
			all = f.series
		}
	case itemTypeEpisode:
		for _, ep := range f.episodes[q.Get("ParentId")] {
			ep.UserData = &UserData{Played: f.played[ep.ID]}
			all = append(all, ep)
		}
	}

	start, _ := strconv.Atoi(q.Get("StartIndex"))
	limit, _ := strconv.Atoi(q.Get("Limit"))
	end := start + limit
	if start > len(all) {
		start = len(all)
	}
	if end > len(all) {
		end = len(all)
	}
	writeJSON(w, ItemsResponse{Items: all[start:end], TotalRecordCount: len(all)})
}

func (f *fakeServer) isPlayed(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.played[id]
}

func (f *fakeServer) markCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.marks
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// withSeries adds filler series plus the target series "s1" (anidb 12345,
// anilist 6789) with two episodes of season 1.
func (f *fakeServer) withSeries(filler int) *fakeServer {
	for i := 0; i < filler; i++ {
		f.series = append(f.series, Item{
			ID:          fmt.Sprintf("filler-%d", i),
			Name:        fmt.Sprintf("Filler %d", i),
			Type:        itemTypeSeries,
			ProviderIDs: map[string]string{"AniDB": strconv.Itoa(90000 + i)},
		})
	}
	f.series = append(f.series, Item{
		ID:          "s1",
		Name:        "Some Show",
		Type:        itemTypeSeries,
		ProviderIDs: map[string]string{"AniDB": "12345", "AniList": "6789"},
	})
	f.episodes["s1"] = []Item{
		{ID: "e4", Type: itemTypeEpisode, ParentIndexNumber: intPtr(1), IndexNumber: intPtr(4)},
		{ID: "e5", Type: itemTypeEpisode, ParentIndexNumber: intPtr(1), IndexNumber: intPtr(5)},
	}
	return f
}

func newTestBackend(t *testing.T, h http.Handler) *Backend {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	b := New(&config.JellyfinConfig{
		URL:     srv.URL,
		APIKey:  testAPIKey,
		User:    "alice",
		Library: []string{"Anime", "Missing"},
	})
	if err := b.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return b
}

func TestBackend_InitMissingConfig(t *testing.T) {
	b := New(&config.JellyfinConfig{URL: "http://localhost:8096"})
	err := b.Init(context.Background())
	if !errors.Is(err, backend.ErrMissingConfig) {
		t.Fatalf("Init() error = %v, want ErrMissingConfig", err)
	}
	if !strings.Contains(err.Error(), "jellyfin.api_key") {
		t.Errorf("error %q does not name jellyfin.api_key", err)
	}
}

func TestBackend_InitUnknownUser(t *testing.T) {
	srv := httptest.NewServer(newFakeServer())
	defer srv.Close()

	b := New(&config.JellyfinConfig{URL: srv.URL, APIKey: testAPIKey, User: "mallory", Library: []string{"Anime"}})
	err := b.Init(context.Background())
	if !errors.Is(err, errUserNotFound) {
		t.Errorf("Init() error = %v, want errUserNotFound", err)
	}
	if b.BreakerState() != "" {
		t.Errorf("BreakerState() = %q before successful init", b.BreakerState())
	}
}

func TestBackend_InitNoLibraries(t *testing.T) {
	srv := httptest.NewServer(newFakeServer())
	defer srv.Close()

	b := New(&config.JellyfinConfig{URL: srv.URL, APIKey: testAPIKey, User: "alice", Library: []string{"Cartoons"}})
	if err := b.Init(context.Background()); err == nil {
		t.Fatal("Init() error = nil, want error for unknown libraries")
	}
}

func TestBackend_InitUnauthorized(t *testing.T) {
	srv := httptest.NewServer(newFakeServer())
	defer srv.Close()

	b := New(&config.JellyfinConfig{URL: srv.URL, APIKey: "wrong", User: "alice", Library: []string{"Anime"}})
	err := b.Init(context.Background())
	if !backend.IsStatus(err, http.StatusUnauthorized) {
		t.Errorf("Init() error = %v, want 401 StatusError", err)
	}
}

func TestBackend_Scrobble(t *testing.T) {
	fake := newFakeServer().withSeries(150)
	b := newTestBackend(t, fake)
	ctx := context.Background()

	res := b.Scrobble(ctx, "12345", 1, 5)
	if !res.Success || res.Severity != models.SeverityInfo {
		t.Fatalf("Scrobble() = %+v, want success", res)
	}
	if !fake.isPlayed("e5") {
		t.Error("episode e5 not marked played")
	}

	// Second call is a no-op success.
	res = b.Scrobble(ctx, "12345", 1, 5)
	if !res.Success {
		t.Errorf("repeat Scrobble() = %+v, want success", res)
	}
	if n := fake.markCount(); n != 1 {
		t.Errorf("PlayedItems calls = %d, want 1", n)
	}
	if b.BreakerState() != "closed" {
		t.Errorf("BreakerState() = %q, want closed", b.BreakerState())
	}
}

func TestBackend_ScrobbleMisses(t *testing.T) {
	b := newTestBackend(t, newFakeServer().withSeries(0))

	tests := []struct {
		name    string
		key     string
		season  int
		episode int
		want    string
	}{
		{"unknown series", "99999", 1, 1, "could not find series with anidb id 99999"},
		{"unknown episode", "12345", 1, 9, `could not find S1E9 of "Some Show"`},
		{"other season", "12345", 2, 5, `could not find S2E5`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := b.Scrobble(context.Background(), tt.key, tt.season, tt.episode)
			if res.Success || res.Severity != models.SeverityWarn {
				t.Fatalf("Scrobble() = %+v, want warn", res)
			}
			if !strings.Contains(res.Message, tt.want) {
				t.Errorf("Message = %q, want it to contain %q", res.Message, tt.want)
			}
		})
	}
}

func TestBackend_ScrobbleVerifiesPlayedFlag(t *testing.T) {
	fake := newFakeServer().withSeries(0)
	fake.failMark = true
	b := newTestBackend(t, fake)

	res := b.Scrobble(context.Background(), "12345", 1, 4)
	if res.Success || res.Severity != models.SeverityError {
		t.Fatalf("Scrobble() = %+v, want error", res)
	}
	if !strings.Contains(res.Message, "unexpected result") {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestBackend_ScrobbleTransportError(t *testing.T) {
	fake := newFakeServer().withSeries(0)
	var broken bool
	var mu sync.Mutex
	h := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		b := broken
		mu.Unlock()
		if b {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fake.ServeHTTP(w, r)
	})
	b := newTestBackend(t, h)

	mu.Lock()
	broken = true
	mu.Unlock()

	res := b.Scrobble(context.Background(), "12345", 1, 5)
	if res.Success || res.Severity != models.SeverityError {
		t.Fatalf("Scrobble() = %+v, want error", res)
	}
	if !strings.Contains(res.Message, "something went wrong while connecting to jellyfin") {
		t.Errorf("Message = %q", res.Message)
	}
}

func TestBackend_NotInitialized(t *testing.T) {
	b := New(&config.JellyfinConfig{})
	if res := b.Scrobble(context.Background(), "1", 1, 1); res.Severity != models.SeverityError {
		t.Errorf("Scrobble() = %+v, want error", res)
	}
	if _, err := b.LookupNative(context.Background(), "1", mapping.NamespaceAniList); !errors.Is(err, mapping.ErrNotFound) {
		t.Errorf("LookupNative() error = %v, want ErrNotFound", err)
	}
}

func TestBackend_LookupNative(t *testing.T) {
	b := newTestBackend(t, newFakeServer().withSeries(3))
	ctx := context.Background()

	id, err := b.LookupNative(ctx, "12345", mapping.NamespaceAniList)
	if err != nil {
		t.Fatalf("LookupNative() error = %v", err)
	}
	if id != "6789" {
		t.Errorf("LookupNative() = %q, want 6789", id)
	}

	if _, err := b.LookupNative(ctx, "90000", mapping.NamespaceAniList); !errors.Is(err, mapping.ErrNotFound) {
		t.Errorf("series without AniList id: error = %v, want ErrNotFound", err)
	}
	if _, err := b.LookupNative(ctx, "12345", mapping.NamespaceMAL); !errors.Is(err, mapping.ErrNotFound) {
		t.Errorf("mal namespace: error = %v, want ErrNotFound", err)
	}
}

func TestItem_ProviderIDCaseInsensitive(t *testing.T) {
	it := Item{ProviderIDs: map[string]string{"anidb": "1"}}
	if got := it.ProviderID("AniDB"); got != "1" {
		t.Errorf("ProviderID(AniDB) = %q, want 1", got)
	}
	if got := it.ProviderID("AniList"); got != "" {
		t.Errorf("ProviderID(AniList) = %q, want empty", got)
	}
}

func TestBackend_Identity(t *testing.T) {
	b := New(&config.JellyfinConfig{})
	if b.Name() != "jellyfin" || b.Namespace() != mapping.NamespaceAniDB || b.Origin() != models.SourceJellyfin {
		t.Errorf("identity = %s/%s/%s", b.Name(), b.Namespace(), b.Origin())
	}
}

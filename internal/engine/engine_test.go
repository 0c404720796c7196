// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/pjaws/internal/backend"
	"github.com/tomtom215/pjaws/internal/mapping"
	"github.com/tomtom215/pjaws/internal/metrics"
	"github.com/tomtom215/pjaws/internal/models"
)

type call struct {
	key             string
	season, episode int
	positionMs      int64
}

type fakeBackend struct {
	name      string
	namespace string
	origin    models.SourceSystem
	result    models.ScrobbleResult
	panics    bool
	block     bool
	release   chan struct{}

	mu    sync.Mutex
	calls []call
}

func (f *fakeBackend) Name() string                   { return f.name }
func (f *fakeBackend) Namespace() string              { return f.namespace }
func (f *fakeBackend) Origin() models.SourceSystem    { return f.origin }
func (f *fakeBackend) Init(ctx context.Context) error { return nil }

func (f *fakeBackend) Scrobble(ctx context.Context, key string, season, episode int) models.ScrobbleResult {
	f.record(call{key: key, season: season, episode: episode})
	if f.panics {
		panic("kaboom")
	}
	if f.block {
		<-ctx.Done()
		return models.Failed(ctx.Err())
	}
	if f.release != nil {
		<-f.release
	}
	return f.result
}

func (f *fakeBackend) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeBackend) recorded() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

// progressBackend also accepts partial positions.
type progressBackend struct {
	fakeBackend
}

func (p *progressBackend) Progress(ctx context.Context, key string, season, episode int, positionMs int64) models.ScrobbleResult {
	p.record(call{key: key, season: season, episode: episode, positionMs: positionMs})
	return models.Succeeded("progress updated.")
}

var _ backend.ProgressReporter = (*progressBackend)(nil)

type staticBackends []backend.Backend

func (s staticBackends) Ready() []backend.Backend { return s }

// fakeResolver maps anidb keys per namespace; anidb resolves to itself.
type fakeResolver struct {
	ids map[string]string // namespace -> id
	err error
}

func (r *fakeResolver) Resolve(ctx context.Context, key, namespace string) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	if namespace == mapping.NamespaceAniDB {
		return key, nil
	}
	if id, ok := r.ids[namespace]; ok {
		return id, nil
	}
	return "", mapping.ErrNotFound
}

type fakeNotifier struct {
	mu      sync.Mutex
	results map[string]models.ScrobbleResult
}

func (n *fakeNotifier) Notify(ctx context.Context, ev *models.WatchEvent, name string, res models.ScrobbleResult) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.results == nil {
		n.results = map[string]models.ScrobbleResult{}
	}
	n.results[name] = res
}

func completedEvent(source models.SourceSystem) *models.WatchEvent {
	return &models.WatchEvent{
		Source:      source,
		SeriesKey:   "12345",
		Season:      1,
		Episode:     5,
		Completed:   true,
		AccountName: "alice",
		LibraryName: "Anime",
	}
}

func outcomeByBackend(outcomes []Outcome) map[string]models.ScrobbleResult {
	m := make(map[string]models.ScrobbleResult, len(outcomes))
	for _, o := range outcomes {
		m[o.Backend] = o.Result
	}
	return m
}

func TestProcess_ExcludesOrigin(t *testing.T) {
	anilist := &fakeBackend{name: "anilist", namespace: mapping.NamespaceAniList, result: models.Succeeded("ok")}
	jellyfin := &fakeBackend{name: "jellyfin", namespace: mapping.NamespaceAniDB, origin: models.SourceJellyfin, result: models.Succeeded("ok")}
	plex := &fakeBackend{name: "plex", namespace: mapping.NamespaceAniDB, origin: models.SourcePlex, result: models.Succeeded("ok")}

	e := New(staticBackends{anilist, jellyfin, plex}, &fakeResolver{ids: map[string]string{mapping.NamespaceAniList: "6789"}})
	outcomes := e.Process(context.Background(), completedEvent(models.SourcePlex))

	if len(outcomes) != 2 {
		t.Fatalf("got %d outcomes, want 2", len(outcomes))
	}
	if outcomes[0].Backend != "anilist" || outcomes[1].Backend != "jellyfin" {
		t.Errorf("outcome order = %s, %s", outcomes[0].Backend, outcomes[1].Backend)
	}
	if n := len(plex.recorded()); n != 0 {
		t.Errorf("origin backend called %d times", n)
	}

	if got := anilist.recorded(); len(got) != 1 || got[0].key != "6789" {
		t.Errorf("anilist calls = %+v, want key 6789", got)
	}
	if got := jellyfin.recorded(); len(got) != 1 || got[0] != (call{key: "12345", season: 1, episode: 5}) {
		t.Errorf("jellyfin calls = %+v", got)
	}
}

func TestProcess_NotFoundSkipsOnlyThatBackend(t *testing.T) {
	anilist := &fakeBackend{name: "anilist", namespace: mapping.NamespaceAniList, result: models.Succeeded("ok")}
	jellyfin := &fakeBackend{name: "jellyfin", namespace: mapping.NamespaceAniDB, origin: models.SourceJellyfin, result: models.Succeeded("ok")}

	e := New(staticBackends{anilist, jellyfin}, &fakeResolver{})
	got := outcomeByBackend(e.Process(context.Background(), completedEvent(models.SourcePlex)))

	if r := got["anilist"]; r.Success || r.Severity != models.SeverityWarn {
		t.Errorf("anilist = %+v, want warn", r)
	}
	if n := len(anilist.recorded()); n != 0 {
		t.Errorf("anilist called %d times after NotFound", n)
	}
	if r := got["jellyfin"]; !r.Success {
		t.Errorf("jellyfin = %+v, want success", r)
	}
}

func TestProcess_ResolverError(t *testing.T) {
	b := &fakeBackend{name: "anilist", namespace: mapping.NamespaceAniList}
	e := New(staticBackends{b}, &fakeResolver{err: errors.New("disk on fire")})

	got := e.Process(context.Background(), completedEvent(models.SourcePlex))
	if len(got) != 1 || got[0].Result.Severity != models.SeverityError {
		t.Fatalf("outcomes = %+v, want one error", got)
	}
	if !strings.Contains(got[0].Result.Message, "disk on fire") {
		t.Errorf("Message = %q", got[0].Result.Message)
	}
}

func TestProcess_RecoversPanics(t *testing.T) {
	bad := &fakeBackend{name: "engine-panic", namespace: mapping.NamespaceAniDB, panics: true}
	good := &fakeBackend{name: "engine-good", namespace: mapping.NamespaceAniDB, result: models.Succeeded("ok")}

	e := New(staticBackends{bad, good}, &fakeResolver{})
	got := outcomeByBackend(e.Process(context.Background(), completedEvent(models.SourcePlex)))

	if r := got["engine-panic"]; r.Severity != models.SeverityError || !strings.Contains(r.Message, "kaboom") {
		t.Errorf("panicking backend = %+v", r)
	}
	if r := got["engine-good"]; !r.Success {
		t.Errorf("good backend = %+v", r)
	}
	if v := testutil.ToFloat64(metrics.DispatchPanics.WithLabelValues("engine-panic")); v != 1 {
		t.Errorf("panic counter = %v, want 1", v)
	}
}

func TestProcess_Timeout(t *testing.T) {
	slow := &fakeBackend{name: "slow", namespace: mapping.NamespaceAniDB, block: true}
	e := New(staticBackends{slow}, &fakeResolver{}, WithTimeout(20*time.Millisecond))

	start := time.Now()
	got := e.Process(context.Background(), completedEvent(models.SourcePlex))
	if time.Since(start) > 5*time.Second {
		t.Fatal("Process did not honor the timeout")
	}
	if len(got) != 1 || got[0].Result.Severity != models.SeverityError {
		t.Fatalf("outcomes = %+v, want one error", got)
	}
	if !strings.HasPrefix(got[0].Result.Message, "timed out after 20ms") {
		t.Errorf("Message = %q", got[0].Result.Message)
	}
}

func TestProcess_ProgressOnlyToReporters(t *testing.T) {
	plain := &fakeBackend{name: "anilist", namespace: mapping.NamespaceAniList, result: models.Succeeded("ok")}
	reporter := &progressBackend{fakeBackend{name: "plex", namespace: mapping.NamespaceAniDB, origin: models.SourcePlex}}

	ev := completedEvent(models.SourceJellyfin)
	ev.Completed = false
	ev.PositionMs = 61_000

	e := New(staticBackends{plain, reporter}, &fakeResolver{ids: map[string]string{mapping.NamespaceAniList: "6789"}})
	got := e.Process(context.Background(), ev)

	if len(got) != 1 || got[0].Backend != "plex" || !got[0].Result.Success {
		t.Fatalf("outcomes = %+v, want one plex success", got)
	}
	if n := len(plain.recorded()); n != 0 {
		t.Errorf("non-reporter called %d times", n)
	}
	if calls := reporter.recorded(); len(calls) != 1 || calls[0].positionMs != 61_000 {
		t.Errorf("reporter calls = %+v", calls)
	}
}

func TestProcess_NoTargets(t *testing.T) {
	only := &fakeBackend{name: "plex", namespace: mapping.NamespaceAniDB, origin: models.SourcePlex}
	e := New(staticBackends{only}, &fakeResolver{})
	if got := e.Process(context.Background(), completedEvent(models.SourcePlex)); len(got) != 0 {
		t.Errorf("outcomes = %+v, want none", got)
	}
}

func TestProcess_Notifies(t *testing.T) {
	done := models.Succeeded("series marked completed.")
	done.Completed = true
	b := &fakeBackend{name: "anilist", namespace: mapping.NamespaceAniList, result: done}
	n := &fakeNotifier{}

	e := New(staticBackends{b}, &fakeResolver{ids: map[string]string{mapping.NamespaceAniList: "6789"}}, WithNotifier(n))
	e.Process(context.Background(), completedEvent(models.SourcePlex))

	if r, ok := n.results["anilist"]; !ok || !r.Completed {
		t.Errorf("notifier got %+v", n.results)
	}
}

func TestDispatch_FireAndForgetAndDrain(t *testing.T) {
	release := make(chan struct{})
	b := &fakeBackend{name: "jellyfin", namespace: mapping.NamespaceAniDB, result: models.Succeeded("ok"), release: release}
	e := New(staticBackends{b}, &fakeResolver{})

	ctx, cancel := context.WithCancel(context.Background())
	if err := e.Dispatch(ctx, completedEvent(models.SourcePlex)); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	// Cancelling the request context must not abort the dispatch.
	cancel()

	short, cancelShort := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancelShort()
	if err := e.Drain(short); err == nil {
		t.Fatal("Drain() returned before the dispatch finished")
	}

	close(release)
	if err := e.Drain(context.Background()); err != nil {
		t.Fatalf("Drain() error = %v", err)
	}
	if calls := b.recorded(); len(calls) != 1 {
		t.Errorf("backend calls = %d, want 1", len(calls))
	}
	if res := e.Dispatch(context.Background(), completedEvent(models.SourcePlex)); !errors.Is(res, ErrClosed) {
		t.Errorf("Dispatch after Drain error = %v, want ErrClosed", res)
	}
}

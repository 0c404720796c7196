// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package services

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/thejerf/suture/v4"
)

var (
	_ suture.Service = (*HTTPServerService)(nil)
	_ suture.Service = (*DrainService)(nil)
	_ suture.Service = (*MappingRefreshService)(nil)
)

// mockHTTPServer blocks in ListenAndServe until Shutdown, unless listenErr
// is set.
type mockHTTPServer struct {
	listenErr   error
	shutdownErr error
	shutdowns   atomic.Int32
	stopOnce    sync.Once
	stopCh      chan struct{}
}

func newMockHTTPServer() *mockHTTPServer {
	return &mockHTTPServer{stopCh: make(chan struct{})}
}

func (m *mockHTTPServer) ListenAndServe() error {
	if m.listenErr != nil {
		return m.listenErr
	}
	<-m.stopCh
	return http.ErrServerClosed
}

func (m *mockHTTPServer) Shutdown(context.Context) error {
	m.shutdowns.Add(1)
	m.stopOnce.Do(func() { close(m.stopCh) })
	return m.shutdownErr
}

func serveAsync(ctx context.Context, svc suture.Service) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Serve(ctx) }()
	return errCh
}

func awaitResult(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return within 2s")
		return nil
	}
}

func TestHTTPServerService_GracefulShutdown(t *testing.T) {
	server := newMockHTTPServer()
	svc := NewHTTPServerService(server, "localhost:4091", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := serveAsync(ctx, svc)
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := awaitResult(t, errCh); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
	if server.shutdowns.Load() != 1 {
		t.Errorf("Shutdown called %d times, want 1", server.shutdowns.Load())
	}
}

func TestHTTPServerService_ListenFailure(t *testing.T) {
	server := newMockHTTPServer()
	server.listenErr = errors.New("address already in use")
	svc := NewHTTPServerService(server, "localhost:4091", time.Second)

	err := awaitResult(t, serveAsync(context.Background(), svc))
	if err == nil || err.Error() != "http server failed: address already in use" {
		t.Errorf("Serve() error = %v", err)
	}
}

func TestHTTPServerService_ShutdownFailure(t *testing.T) {
	server := newMockHTTPServer()
	server.shutdownErr = errors.New("connections still open")
	svc := NewHTTPServerService(server, "localhost:4091", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := serveAsync(ctx, svc)
	cancel()

	err := awaitResult(t, errCh)
	if err == nil || err.Error() != "http server shutdown failed: connections still open" {
		t.Errorf("Serve() error = %v", err)
	}
}

func TestHTTPServerService_DefaultTimeout(t *testing.T) {
	svc := NewHTTPServerService(newMockHTTPServer(), "", 0)
	if svc.shutdownTimeout != 10*time.Second {
		t.Errorf("shutdownTimeout = %v, want 10s", svc.shutdownTimeout)
	}
	if svc.String() != "http-server" {
		t.Errorf("String() = %q", svc.String())
	}
}

type fakeDrainer struct {
	calls       atomic.Int32
	hadDeadline atomic.Bool
	err         error
}

func (f *fakeDrainer) Drain(ctx context.Context) error {
	f.calls.Add(1)
	_, ok := ctx.Deadline()
	f.hadDeadline.Store(ok)
	return f.err
}

func TestDrainService_DrainsOnShutdownOnly(t *testing.T) {
	drainer := &fakeDrainer{}
	svc := NewDrainService(drainer, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := serveAsync(ctx, svc)

	time.Sleep(20 * time.Millisecond)
	if drainer.calls.Load() != 0 {
		t.Fatal("Drain called before shutdown")
	}
	cancel()

	if err := awaitResult(t, errCh); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
	if drainer.calls.Load() != 1 {
		t.Errorf("Drain called %d times, want 1", drainer.calls.Load())
	}
	if !drainer.hadDeadline.Load() {
		t.Error("Drain context has no deadline")
	}
}

func TestDrainService_DrainTimeoutIsNotFatal(t *testing.T) {
	drainer := &fakeDrainer{err: context.DeadlineExceeded}
	svc := NewDrainService(drainer, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := awaitResult(t, serveAsync(ctx, svc)); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled", err)
	}
	if svc.timeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", svc.timeout)
	}
}

type fakeWarmer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeWarmer) Warm(context.Context) error {
	f.calls.Add(1)
	return f.err
}

func TestMappingRefreshService_WarmsOnStartAndPeriodically(t *testing.T) {
	warmer := &fakeWarmer{err: errors.New("download failed")}
	svc := NewMappingRefreshService(warmer, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := serveAsync(ctx, svc)

	deadline := time.Now().Add(2 * time.Second)
	for warmer.calls.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("warmed %d times, want at least 3", warmer.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()

	if err := awaitResult(t, errCh); !errors.Is(err, context.Canceled) {
		t.Errorf("Serve() error = %v, want context.Canceled (warm errors must not stop the service)", err)
	}
}

func TestMappingRefreshService_ZeroIntervalWarmsOnce(t *testing.T) {
	warmer := &fakeWarmer{}
	svc := NewMappingRefreshService(warmer, 0)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := serveAsync(ctx, svc)
	time.Sleep(30 * time.Millisecond)
	cancel()
	_ = awaitResult(t, errCh)

	if warmer.calls.Load() != 1 {
		t.Errorf("warmed %d times, want 1", warmer.calls.Load())
	}
}

type fakePruner struct {
	calls atomic.Int32
}

func (f *fakePruner) PruneMemo() int {
	f.calls.Add(1)
	return 0
}

func TestMappingRefreshService_PrunesOnEveryRefresh(t *testing.T) {
	warmer := &fakeWarmer{}
	pruner := &fakePruner{}
	svc := NewMappingRefreshService(warmer, 10*time.Millisecond, WithPruner(pruner))

	ctx, cancel := context.WithCancel(context.Background())
	errCh := serveAsync(ctx, svc)

	deadline := time.Now().Add(2 * time.Second)
	for pruner.calls.Load() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("pruned %d times, want at least 2", pruner.calls.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	_ = awaitResult(t, errCh)

	if warmer.calls.Load() < pruner.calls.Load() {
		t.Errorf("warmed %d times but pruned %d times", warmer.calls.Load(), pruner.calls.Load())
	}
}

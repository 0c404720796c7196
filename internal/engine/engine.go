// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

// Package engine fans one normalized watch event out to every ready
// backend except the one that reported it.
//
// Per event and backend the identifier is resolved into the backend's
// namespace first, then the backend update runs under a bounded timeout.
// Every outcome, including panics, becomes a ScrobbleResult that is logged
// with the event's correlation id. Nothing is reported back to the webhook
// caller and nothing is retried.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tomtom215/pjaws/internal/backend"
	"github.com/tomtom215/pjaws/internal/logging"
	"github.com/tomtom215/pjaws/internal/mapping"
	"github.com/tomtom215/pjaws/internal/metrics"
	"github.com/tomtom215/pjaws/internal/models"
	"github.com/tomtom215/pjaws/internal/notifications"
)

// DefaultTimeout bounds one backend call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// ErrClosed is returned by Dispatch once the engine is draining.
var ErrClosed = errors.New("engine closed")

// Backends supplies the currently ready backends.
type Backends interface {
	Ready() []backend.Backend
}

// Resolver maps a source series key into a backend namespace.
type Resolver interface {
	Resolve(ctx context.Context, sourceKey, namespace string) (string, error)
}

// Outcome is the result of one backend for one event.
type Outcome struct {
	Backend  string
	Result   models.ScrobbleResult
	Duration time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithTimeout sets the per-backend call timeout.
func WithTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithNotifier sets the notifier receiving every outcome.
func WithNotifier(n notifications.Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// Engine is safe for concurrent use.
type Engine struct {
	backends Backends
	resolver Resolver
	notifier notifications.Notifier
	timeout  time.Duration

	mu       sync.Mutex
	closed   bool
	inflight sync.WaitGroup
}

// New creates an engine.
func New(backends Backends, resolver Resolver, opts ...Option) *Engine {
	e := &Engine{
		backends: backends,
		resolver: resolver,
		notifier: notifications.Noop{},
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Dispatch processes ev in the background and returns immediately. The
// background work keeps ctx's values (correlation ids) but not its
// cancellation, so it outlives the webhook request.
func (e *Engine) Dispatch(ctx context.Context, ev *models.WatchEvent) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrClosed
	}
	e.inflight.Add(1)
	e.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	go func() {
		defer e.inflight.Done()
		metrics.TrackDispatch(true)
		defer metrics.TrackDispatch(false)
		e.Process(ctx, ev)
	}()
	return nil
}

// Drain stops accepting new events and waits for in-flight ones until ctx
// is done.
func (e *Engine) Drain(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain dispatches: %w", ctx.Err())
	}
}

// Process fans ev out and returns one outcome per target backend, in the
// order the backends were registered.
func (e *Engine) Process(ctx context.Context, ev *models.WatchEvent) []Outcome {
	targets := e.targets(ev)
	l := logging.CtxWith(ctx).
		Str("event", ev.Label()).
		Str("source", ev.Source.String()).
		Logger()

	if len(targets) == 0 {
		l.Warn().Msg("No ready backend to dispatch to")
		return nil
	}

	outcomes := make([]Outcome, len(targets))
	var g errgroup.Group
	for i, b := range targets {
		g.Go(func() error {
			outcomes[i] = e.dispatchOne(ctx, &l, b, ev)
			return nil
		})
	}
	_ = g.Wait()

	return outcomes
}

// targets excludes the originating backend. Progress events only go to
// backends that accept partial positions.
func (e *Engine) targets(ev *models.WatchEvent) []backend.Backend {
	ready := e.backends.Ready()
	out := make([]backend.Backend, 0, len(ready))
	for _, b := range ready {
		if b.Origin() != models.SourceNone && b.Origin() == ev.Source {
			continue
		}
		if !ev.Completed {
			if _, ok := b.(backend.ProgressReporter); !ok {
				continue
			}
		}
		out = append(out, b)
	}
	return out
}

func (e *Engine) dispatchOne(ctx context.Context, parent *zerolog.Logger, b backend.Backend, ev *models.WatchEvent) Outcome {
	start := time.Now()
	l := parent.With().Str("backend", b.Name()).Logger()

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	res := e.run(ctx, &l, b, ev)
	if res.Severity == models.SeverityError && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res.Message = fmt.Sprintf("timed out after %s: %s", e.timeout, res.Message)
	}

	dur := time.Since(start)
	metrics.RecordDispatch(b.Name(), string(res.Severity), dur)
	logResult(&l, res, dur)

	e.notify(ctx, &l, ev, b.Name(), res)

	return Outcome{Backend: b.Name(), Result: res, Duration: dur}
}

// run resolves the identifier and calls the backend. Panics are converted
// into error results.
func (e *Engine) run(ctx context.Context, l *zerolog.Logger, b backend.Backend, ev *models.WatchEvent) (res models.ScrobbleResult) {
	defer func() {
		if p := recover(); p != nil {
			metrics.DispatchPanics.WithLabelValues(b.Name()).Inc()
			l.Error().Interface("panic", p).Msg("Backend panicked")
			res = models.Failedf("backend panicked: %v", p)
		}
	}()

	key, err := e.resolver.Resolve(ctx, ev.SeriesKey, b.Namespace())
	if errors.Is(err, mapping.ErrNotFound) {
		return models.Skipped(fmt.Sprintf("could not find series with anidb id %s on %s.", ev.SeriesKey, b.Name()))
	}
	if err != nil {
		return models.Failedf("identifier resolution failed: %v", err)
	}

	if !ev.Completed {
		pr, ok := b.(backend.ProgressReporter)
		if !ok {
			return models.Skipped("backend does not accept progress updates.")
		}
		return pr.Progress(ctx, key, ev.Season, ev.Episode, ev.PositionMs)
	}
	return b.Scrobble(ctx, key, ev.Season, ev.Episode)
}

// notify hands the result to the notifier without letting it fail the
// dispatch.
func (e *Engine) notify(ctx context.Context, l *zerolog.Logger, ev *models.WatchEvent, name string, res models.ScrobbleResult) {
	defer func() {
		if p := recover(); p != nil {
			l.Error().Interface("panic", p).Msg("Notifier panicked")
		}
	}()
	e.notifier.Notify(context.WithoutCancel(ctx), ev, name, res)
}

func logResult(l *zerolog.Logger, res models.ScrobbleResult, dur time.Duration) {
	var evt *zerolog.Event
	switch res.Severity {
	case models.SeverityError:
		evt = l.Error()
	case models.SeverityWarn:
		evt = l.Warn()
	default:
		evt = l.Info()
	}
	evt.Bool("success", res.Success).
		Str("severity", string(res.Severity)).
		Dur("duration", dur).
		Msg(res.Message)
}

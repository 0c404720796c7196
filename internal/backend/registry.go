// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tomtom215/pjaws/internal/logging"
	"github.com/tomtom215/pjaws/internal/metrics"
	"github.com/tomtom215/pjaws/internal/models"
)

type registryEntry struct {
	backend Backend
	state   State
	reason  error
}

// Registry holds the backends of the process and their states.
// Reads are safe for concurrent use with InitAll and Reinit.
type Registry struct {
	mu      sync.RWMutex
	entries []*registryEntry
}

// NewRegistry registers backends in the given order, all Uninitialized.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{}
	for _, b := range backends {
		r.entries = append(r.entries, &registryEntry{backend: b, state: StateUninitialized})
	}
	return r
}

// InitAll initializes every Uninitialized backend concurrently, each bounded
// by timeout. Failures disable only the failing backend and are logged once.
// It returns the number of Ready backends.
func (r *Registry) InitAll(ctx context.Context, timeout time.Duration) int {
	r.mu.RLock()
	pending := make([]*registryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if e.state == StateUninitialized {
			pending = append(pending, e)
		}
	}
	r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, e := range pending {
		wg.Add(1)
		go func(e *registryEntry) {
			defer wg.Done()
			state, reason := initOne(ctx, e.backend, timeout)
			r.mu.Lock()
			e.state, e.reason = state, reason
			r.mu.Unlock()
		}(e)
	}
	wg.Wait()

	return len(r.Ready())
}

// Reinit retries initialization of a Disabled backend by name.
func (r *Registry) Reinit(ctx context.Context, name string, timeout time.Duration) error {
	r.mu.RLock()
	var target *registryEntry
	for _, e := range r.entries {
		if e.backend.Name() == name {
			target = e
			break
		}
	}
	r.mu.RUnlock()

	if target == nil {
		return fmt.Errorf("backend %q not registered", name)
	}

	state, reason := initOne(ctx, target.backend, timeout)
	r.mu.Lock()
	target.state, target.reason = state, reason
	r.mu.Unlock()
	return reason
}

func initOne(ctx context.Context, b Backend, timeout time.Duration) (state State, reason error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if p := recover(); p != nil {
			state, reason = StateDisabled, fmt.Errorf("panic during init: %v", p)
			logging.Error().Str("backend", b.Name()).Interface("panic", p).Msg("Backend init panicked")
			metrics.SetBackendReady(b.Name(), false)
		}
	}()

	err := b.Init(ctx)
	switch {
	case err == nil:
		logging.Info().Str("backend", b.Name()).Str("namespace", b.Namespace()).Msg("Backend ready")
		metrics.SetBackendReady(b.Name(), true)
		return StateReady, nil
	case errors.Is(err, ErrMissingConfig):
		logging.Info().Str("backend", b.Name()).Str("reason", err.Error()).Msg("Backend disabled")
	default:
		logging.Warn().Err(err).Str("backend", b.Name()).Msg("Backend disabled, initialization failed")
	}
	metrics.SetBackendReady(b.Name(), false)
	return StateDisabled, err
}

// Ready returns the Ready backends in registration order.
func (r *Registry) Ready() []Backend {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ready := make([]Backend, 0, len(r.entries))
	for _, e := range r.entries {
		if e.state == StateReady {
			ready = append(ready, e.backend)
		}
	}
	return ready
}

// State returns the state of the named backend and whether it is registered.
func (r *Registry) State(name string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, e := range r.entries {
		if e.backend.Name() == name {
			return e.state, true
		}
	}
	return StateUninitialized, false
}

// Statuses describes every registered backend.
func (r *Registry) Statuses() []models.BackendStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.BackendStatus, 0, len(r.entries))
	for _, e := range r.entries {
		s := models.BackendStatus{
			Name:      e.backend.Name(),
			State:     e.state.String(),
			Namespace: e.backend.Namespace(),
		}
		if e.reason != nil {
			s.Reason = e.reason.Error()
		}
		if br, ok := e.backend.(BreakerReporter); ok {
			s.Breaker = br.BreakerState()
		}
		out = append(out, s)
	}
	return out
}

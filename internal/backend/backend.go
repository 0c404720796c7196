// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

// Package backend defines the contract every watch-state backend implements
// and the registry holding the backends of one process.
//
// Backends set their session context (user id, library ids) in Init and
// only read it afterwards, so Scrobble may be called concurrently.
package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tomtom215/pjaws/internal/models"
)

// ErrMissingConfig is returned by Init when required settings are empty.
var ErrMissingConfig = errors.New("missing configuration")

// MissingConfig returns an ErrMissingConfig naming the empty keys.
func MissingConfig(fields []string) error {
	return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(fields, ", "))
}

// Backend advances watch state on one external system.
type Backend interface {
	// Name is the short lowercase name used in logs and metrics.
	Name() string

	// Namespace is the identifier space Scrobble expects its key in.
	Namespace() string

	// Origin is the webhook source this backend corresponds to, so that an
	// event is never sent back to the system that reported it. SourceNone
	// for backends that never emit webhooks.
	Origin() models.SourceSystem

	// Init resolves the session context. A returned error disables the
	// backend; errors.Is(err, ErrMissingConfig) marks incomplete settings.
	Init(ctx context.Context) error

	// Scrobble marks episode of season of the series targetKey as watched.
	// Expected conditions are reported through the result, never as panics.
	Scrobble(ctx context.Context, targetKey string, season, episode int) models.ScrobbleResult
}

// ProgressReporter is implemented by backends that accept partial playback
// positions.
type ProgressReporter interface {
	Progress(ctx context.Context, targetKey string, season, episode int, positionMs int64) models.ScrobbleResult
}

// BreakerReporter exposes the circuit breaker state for status endpoints.
type BreakerReporter interface {
	BreakerState() string
}

// State is a backend's registry state.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateDisabled
)

// String returns the lowercase state name.
func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDisabled:
		return "disabled"
	default:
		return "uninitialized"
	}
}

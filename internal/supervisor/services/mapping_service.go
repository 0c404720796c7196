// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package services

import (
	"context"
	"time"

	"github.com/tomtom215/pjaws/internal/logging"
)

// Warmer refreshes a cache if it is stale.
type Warmer interface {
	Warm(ctx context.Context) error
}

// Pruner drops expired entries from an in-memory memo.
type Pruner interface {
	PruneMemo() int
}

// MappingRefreshOption configures a MappingRefreshService.
type MappingRefreshOption func(*MappingRefreshService)

// WithPruner sweeps p on every refresh.
func WithPruner(p Pruner) MappingRefreshOption {
	return func(m *MappingRefreshService) {
		m.pruner = p
	}
}

// MappingRefreshService warms the identifier mapping cache at startup and
// then every interval, so that the first webhook after a quiet week does not
// pay for the download. A zero interval warms once.
//
// Failures are logged and not returned: the resolver falls back to the stale
// document or to native lookups, so there is nothing to restart for.
type MappingRefreshService struct {
	warmer   Warmer
	pruner   Pruner
	interval time.Duration
}

// NewMappingRefreshService creates a MappingRefreshService.
func NewMappingRefreshService(warmer Warmer, interval time.Duration, opts ...MappingRefreshOption) *MappingRefreshService {
	m := &MappingRefreshService{warmer: warmer, interval: interval}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Serve implements suture.Service.
func (m *MappingRefreshService) Serve(ctx context.Context) error {
	m.warm(ctx)

	if m.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.warm(ctx)
		}
	}
}

func (m *MappingRefreshService) warm(ctx context.Context) {
	if err := m.warmer.Warm(ctx); err != nil && ctx.Err() == nil {
		logging.Warn().Err(err).Msg("Mapping cache warm-up failed")
	}
	if m.pruner != nil {
		m.pruner.PruneMemo()
	}
}

// String implements fmt.Stringer for suture's logs.
func (m *MappingRefreshService) String() string {
	return "mapping-refresh"
}

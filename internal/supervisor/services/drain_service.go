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

// Drainer stops accepting work and waits for in-flight work until ctx ends.
type Drainer interface {
	Drain(ctx context.Context) error
}

// DrainService idles until shutdown, then drains the dispatcher. Events
// admitted before shutdown get up to timeout to reach their backends. Events
// arriving afterwards are rejected by the dispatcher.
type DrainService struct {
	drainer Drainer
	timeout time.Duration
}

// NewDrainService creates a DrainService.
func NewDrainService(drainer Drainer, timeout time.Duration) *DrainService {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &DrainService{drainer: drainer, timeout: timeout}
}

// Serve implements suture.Service.
func (d *DrainService) Serve(ctx context.Context) error {
	<-ctx.Done()

	drainCtx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	start := time.Now()
	if err := d.drainer.Drain(drainCtx); err != nil {
		logging.Warn().Err(err).Dur("waited", time.Since(start)).Msg("Shutdown with dispatches still in flight")
	} else {
		logging.Info().Dur("waited", time.Since(start)).Msg("Dispatches drained")
	}
	return ctx.Err()
}

// String implements fmt.Stringer for suture's logs.
func (d *DrainService) String() string {
	return "dispatch-drain"
}

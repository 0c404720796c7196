// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

// Package normalize turns raw webhook bodies into canonical WatchEvents.
//
// Each source method returns one of three outcomes:
//   - (event, nil): every admission check passed
//   - (nil, nil): the delivery was filtered out (logged at debug)
//   - (nil, err): ErrNotConfigured or ErrMalformed
//
// A returned event is always fully populated.
package normalize

import (
	"errors"
	"slices"

	"github.com/rs/zerolog"

	"github.com/tomtom215/pjaws/internal/config"
	"github.com/tomtom215/pjaws/internal/logging"
)

var (
	// ErrMalformed marks a payload that cannot be parsed or that passed
	// admission but lacks a usable id, season or episode.
	ErrMalformed = errors.New("malformed payload")

	// ErrNotConfigured marks a delivery for a source with no account or
	// library configured.
	ErrNotConfigured = errors.New("source not configured")
)

// sourceRules are the admission settings of one source.
type sourceRules struct {
	user      string
	libraries []string
}

func (r sourceRules) configured() bool {
	return r.user != "" && len(r.libraries) > 0
}

func (r sourceRules) allowsLibrary(name string) bool {
	return slices.Contains(r.libraries, name)
}

// Normalizer holds the admission rules of every source. It is immutable and
// safe for concurrent use.
type Normalizer struct {
	plex            sourceRules
	jellyfin        sourceRules
	forwardProgress bool
}

// New builds a Normalizer from cfg.
func New(cfg *config.Config) *Normalizer {
	return &Normalizer{
		plex: sourceRules{
			user:      cfg.Plex.User,
			libraries: slices.Clone(cfg.Plex.Library),
		},
		jellyfin: sourceRules{
			user:      cfg.Jellyfin.User,
			libraries: slices.Clone(cfg.Jellyfin.Library),
		},
		forwardProgress: cfg.Dispatch.ForwardProgress,
	}
}

// PlexConfigured reports whether Plex deliveries can be admitted.
func (n *Normalizer) PlexConfigured() bool { return n.plex.configured() }

// JellyfinConfigured reports whether Jellyfin deliveries can be admitted.
func (n *Normalizer) JellyfinConfigured() bool { return n.jellyfin.configured() }

// filtered logs an admission drop.
func filtered(l *zerolog.Logger, reason string) {
	l.Debug().Str("reason", reason).Msg("Webhook filtered")
}

func safe(s string) string {
	return logging.SanitizeValue(s)
}

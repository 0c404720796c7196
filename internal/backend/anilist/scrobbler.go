// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

// Package anilist advances list progress on AniList.
//
// Only entries on the Watching (CURRENT) or Planning list are touched:
//
//   - Watching: progress moves forward only, never past the episode count;
//     reaching the last episode completes the entry.
//   - Planning: only the first episode is accepted and promotes the entry
//     to Watching (or straight to Completed for single-episode media).
//
// Every update is verified against the state returned by the API.
package anilist

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pjaws/internal/backend"
	"github.com/tomtom215/pjaws/internal/config"
	"github.com/tomtom215/pjaws/internal/mapping"
	"github.com/tomtom215/pjaws/internal/models"
)

var (
	_ backend.Backend         = (*Backend)(nil)
	_ backend.BreakerReporter = (*Backend)(nil)
)

type session struct {
	client *Client
	userID int
}

// Backend is the AniList list-tracking adapter.
type Backend struct {
	cfg     config.AniListConfig
	session atomic.Pointer[session]
}

// New creates an uninitialized AniList backend.
func New(cfg *config.AniListConfig) *Backend {
	return &Backend{cfg: *cfg}
}

func (b *Backend) Name() string                { return name }
func (b *Backend) Namespace() string           { return mapping.NamespaceAniList }
func (b *Backend) Origin() models.SourceSystem { return models.SourceNone }

// BreakerState returns the API circuit breaker state, or "" before Init.
func (b *Backend) BreakerState() string {
	if s := b.session.Load(); s != nil {
		return s.client.BreakerState()
	}
	return ""
}

// Init resolves the profile id of the token owner.
func (b *Backend) Init(ctx context.Context) error {
	if missing := b.cfg.MissingFields(); len(missing) > 0 {
		return backend.MissingConfig(missing)
	}

	client := NewClient(b.cfg.URL, b.cfg.Token, b.cfg.RequestsPerMinute)
	viewer, err := client.Viewer(ctx)
	if err != nil {
		return fmt.Errorf("anilist profile lookup failed: %w", err)
	}
	if viewer.ID == 0 {
		return errors.New("anilist profile lookup returned no id")
	}

	b.session.Store(&session{client: client, userID: viewer.ID})
	return nil
}

// Scrobble records episode as watched on the list entry of mediaKey.
func (b *Backend) Scrobble(ctx context.Context, mediaKey string, season, episode int) models.ScrobbleResult {
	s := b.session.Load()
	if s == nil {
		return models.Failedf("not initialized!")
	}

	if season != 1 {
		return models.Skipped("can only scrobble normal episodes (season != 1).")
	}

	mediaID, err := strconv.Atoi(mediaKey)
	if err != nil || mediaID <= 0 {
		return models.Failedf("invalid anilist id %q", mediaKey)
	}

	entry, err := s.client.MediaList(ctx, s.userID, mediaID)
	if backend.IsStatus(err, http.StatusNotFound) {
		return notTracked()
	}
	if err != nil {
		return connectionFailed(err)
	}

	progress, status, skip := nextState(entry, episode)
	if skip != nil {
		return *skip
	}

	saved, err := s.client.SaveMediaListEntry(ctx, entry.ID, progress, status)
	if err != nil {
		return connectionFailed(err)
	}

	if saved.Status != status || saved.Progress != progress {
		raw, _ := json.Marshal(saved)
		return models.Failedf("API returned unexpected result: %s", raw)
	}

	if saved.Status == StatusCompleted {
		res := models.Succeeded("series marked completed.")
		res.Completed = true
		if entry.Media != nil {
			res.Link = entry.Media.SiteURL
		}
		return res
	}
	return models.Succeeded("successful.")
}

// nextState applies the list rules to entry. A non-nil result means the
// update must be skipped.
func nextState(entry *MediaList, episode int) (int, MediaListStatus, *models.ScrobbleResult) {
	var total *int
	if entry.Media != nil {
		total = entry.Media.Episodes
	}

	switch entry.Status {
	case StatusCurrent:
		if entry.Progress >= episode {
			return skipped("skipping update, anilist progress >= current episode.")
		}
		// Airing shows have no episode total yet; progress still advances.
		if total != nil && episode > *total {
			return skipped("skipping update, current episode is > max episodes.")
		}
		if total != nil && episode == *total {
			return episode, StatusCompleted, nil
		}
		return episode, StatusCurrent, nil

	case StatusPlanning:
		if episode != 1 {
			return skipped(`skipping update, anime on "Planning" list but this is not the first episode.`)
		}
		if total != nil && *total == 1 {
			return 1, StatusCompleted, nil
		}
		return 1, StatusCurrent, nil

	default:
		r := notTracked()
		return 0, "", &r
	}
}

func skipped(msg string) (int, MediaListStatus, *models.ScrobbleResult) {
	r := models.Skipped(msg)
	return 0, "", &r
}

func notTracked() models.ScrobbleResult {
	return models.Skipped(`series not on "Watching" or "Planning" list.`)
}

func connectionFailed(err error) models.ScrobbleResult {
	return models.Failedf("something went wrong while connecting to anilist: %v", err)
}

// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

// Package jellyfin marks episodes as played on a Jellyfin server and looks
// up AniList ids stored in series provider metadata.
package jellyfin

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tomtom215/pjaws/internal/backend"
	"github.com/tomtom215/pjaws/internal/config"
	"github.com/tomtom215/pjaws/internal/logging"
	"github.com/tomtom215/pjaws/internal/mapping"
	"github.com/tomtom215/pjaws/internal/models"
)

const (
	itemTypeSeries  = "Series"
	itemTypeEpisode = "Episode"

	providerAniDB   = "AniDB"
	providerAniList = "AniList"
)

var (
	_ backend.Backend         = (*Backend)(nil)
	_ backend.BreakerReporter = (*Backend)(nil)
	_ mapping.NativeLookup    = (*Backend)(nil)
)

var errUserNotFound = errors.New("user not found")

// session is resolved by Init and never modified afterwards.
type session struct {
	client     *Client
	userID     string
	libraryIDs []string
}

// Backend is the Jellyfin media-server adapter.
type Backend struct {
	cfg     config.JellyfinConfig
	session atomic.Pointer[session]
}

// New creates an uninitialized Jellyfin backend.
func New(cfg *config.JellyfinConfig) *Backend {
	return &Backend{cfg: *cfg}
}

func (b *Backend) Name() string                { return name }
func (b *Backend) Namespace() string           { return mapping.NamespaceAniDB }
func (b *Backend) Origin() models.SourceSystem { return models.SourceJellyfin }

// BreakerState returns the API circuit breaker state, or "" before Init.
func (b *Backend) BreakerState() string {
	if s := b.session.Load(); s != nil {
		return s.client.BreakerState()
	}
	return ""
}

// Init resolves the configured user and libraries to their ids.
func (b *Backend) Init(ctx context.Context) error {
	if missing := b.cfg.MissingFields(); len(missing) > 0 {
		return backend.MissingConfig(missing)
	}

	client, err := NewClient(b.cfg.URL, b.cfg.APIKey, b.cfg.CAFile)
	if err != nil {
		return err
	}

	users, err := client.GetUsers(ctx)
	if err != nil {
		return err
	}
	var userID string
	for _, u := range users {
		if u.Name == b.cfg.User {
			userID = u.ID
			break
		}
	}
	if userID == "" {
		return fmt.Errorf("%w: %s", errUserNotFound, b.cfg.User)
	}

	views, err := client.GetViews(ctx, userID)
	if err != nil {
		return err
	}
	libraryIDs := make([]string, 0, len(b.cfg.Library))
	for _, lib := range b.cfg.Library {
		found := false
		for _, v := range views {
			if v.Name == lib {
				libraryIDs = append(libraryIDs, v.ID)
				found = true
			}
		}
		if !found {
			logging.Warn().Str("backend", name).Str("library", lib).Msg("Configured library not found on server")
		}
	}
	if len(libraryIDs) == 0 {
		return fmt.Errorf("none of the configured libraries exist for user %s", b.cfg.User)
	}

	b.session.Store(&session{client: client, userID: userID, libraryIDs: libraryIDs})
	return nil
}

// Scrobble marks the episode as played. Already played episodes are left
// untouched.
func (b *Backend) Scrobble(ctx context.Context, anidbKey string, season, episode int) models.ScrobbleResult {
	s := b.session.Load()
	if s == nil {
		return models.Failedf("not initialized!")
	}

	series, err := s.findSeries(ctx, anidbKey)
	if err != nil {
		return connectionFailed(err)
	}
	if series == nil {
		return models.Skipped(fmt.Sprintf("could not find series with anidb id %s on server.", anidbKey))
	}

	ep, err := s.findEpisode(ctx, series.ID, season, episode)
	if err != nil {
		return connectionFailed(err)
	}
	if ep == nil {
		return models.Skipped(fmt.Sprintf("could not find S%dE%d of %q on server.", season, episode, series.Name))
	}

	if ep.Played() {
		return models.Succeeded("already marked as watched.")
	}

	data, err := s.client.MarkPlayed(ctx, s.userID, ep.ID)
	if err != nil {
		return connectionFailed(err)
	}
	if !data.Played {
		return models.Failedf("API returned unexpected result: played=%t", data.Played)
	}

	return models.Succeeded("successful.")
}

// LookupNative returns the AniList id stored on the series carrying
// anidbKey. Only the anilist namespace is supported.
func (b *Backend) LookupNative(ctx context.Context, anidbKey, namespace string) (string, error) {
	if namespace != mapping.NamespaceAniList {
		return "", mapping.ErrNotFound
	}
	s := b.session.Load()
	if s == nil {
		return "", mapping.ErrNotFound
	}

	series, err := s.findSeries(ctx, anidbKey)
	if err != nil {
		return "", err
	}
	if series == nil {
		return "", mapping.ErrNotFound
	}
	if id := series.ProviderID(providerAniList); id != "" {
		return id, nil
	}
	return "", mapping.ErrNotFound
}

// findSeries scans every configured library for a series whose AniDB
// provider id equals anidbKey. A nil item means no match.
func (s *session) findSeries(ctx context.Context, anidbKey string) (*Item, error) {
	var match *Item
	for _, libraryID := range s.libraryIDs {
		err := s.client.EachItem(ctx, s.userID, libraryID, itemTypeSeries, func(it *Item) bool {
			if it.ProviderID(providerAniDB) == anidbKey {
				found := *it
				match = &found
				return false
			}
			return true
		})
		if err != nil || match != nil {
			return match, err
		}
	}
	return nil, nil
}

func (s *session) findEpisode(ctx context.Context, seriesID string, season, episode int) (*Item, error) {
	var match *Item
	err := s.client.EachItem(ctx, s.userID, seriesID, itemTypeEpisode, func(it *Item) bool {
		if it.ParentIndexNumber == nil || it.IndexNumber == nil {
			return true
		}
		if *it.ParentIndexNumber == season && *it.IndexNumber == episode {
			found := *it
			match = &found
			return false
		}
		return true
	})
	return match, err
}

func connectionFailed(err error) models.ScrobbleResult {
	return models.Failedf("something went wrong while connecting to jellyfin: %v", err)
}

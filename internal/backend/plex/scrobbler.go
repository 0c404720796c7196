// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

// Package plex marks episodes as watched on a Plex Media Server whose anime
// libraries use the HAMA agent.
package plex

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/tomtom215/pjaws/internal/backend"
	"github.com/tomtom215/pjaws/internal/config"
	"github.com/tomtom215/pjaws/internal/logging"
	"github.com/tomtom215/pjaws/internal/mapping"
	"github.com/tomtom215/pjaws/internal/models"
)

// hamaAgent is the agent of libraries whose GUIDs carry AniDB ids, in the
// form com.plexapp.agents.hama://anidb-<aid>/<season>/<episode>?lang=<lang>.
const hamaAgent = "com.plexapp.agents.hama"

var (
	_ backend.Backend          = (*Backend)(nil)
	_ backend.ProgressReporter = (*Backend)(nil)
	_ backend.BreakerReporter  = (*Backend)(nil)
)

var errUserNotFound = errors.New("user not found")

type session struct {
	client      *Client
	sectionKeys []string
}

// Backend is the Plex media-server adapter.
type Backend struct {
	cfg     config.PlexConfig
	session atomic.Pointer[session]
}

// New creates an uninitialized Plex backend.
func New(cfg *config.PlexConfig) *Backend {
	return &Backend{cfg: *cfg}
}

func (b *Backend) Name() string                { return name }
func (b *Backend) Namespace() string           { return mapping.NamespaceAniDB }
func (b *Backend) Origin() models.SourceSystem { return models.SourcePlex }

// BreakerState returns the API circuit breaker state, or "" before Init.
func (b *Backend) BreakerState() string {
	if s := b.session.Load(); s != nil {
		return s.client.BreakerState()
	}
	return ""
}

// Init resolves the configured HAMA libraries and checks the account.
func (b *Backend) Init(ctx context.Context) error {
	if missing := b.cfg.MissingFields(); len(missing) > 0 {
		return backend.MissingConfig(missing)
	}

	client := NewClient(b.cfg.URL, b.cfg.Token)

	sections, err := client.GetSections(ctx)
	if err != nil {
		return fmt.Errorf("plex sections request failed: %w", err)
	}
	var keys []string
	for _, s := range sections {
		if s.Agent != hamaAgent || !slices.Contains(b.cfg.Library, s.Title) {
			continue
		}
		keys = append(keys, s.Key)
	}
	if len(keys) == 0 {
		return fmt.Errorf("none of the configured libraries use the %s agent", hamaAgent)
	}
	if len(keys) < len(b.cfg.Library) {
		logging.Warn().Str("backend", name).Strs("libraries", b.cfg.Library).Int("found", len(keys)).
			Msg("Some configured libraries were not found or do not use the HAMA agent")
	}

	accounts, err := client.GetAccounts(ctx)
	if err != nil {
		return fmt.Errorf("plex accounts request failed: %w", err)
	}
	if !slices.ContainsFunc(accounts, func(a Account) bool { return a.Name == b.cfg.User }) {
		return fmt.Errorf("%w: %s", errUserNotFound, b.cfg.User)
	}

	b.session.Store(&session{client: client, sectionKeys: keys})
	return nil
}

// Scrobble marks the episode as watched and verifies the view count.
func (b *Backend) Scrobble(ctx context.Context, anidbKey string, season, episode int) models.ScrobbleResult {
	s := b.session.Load()
	if s == nil {
		return models.Failedf("not initialized!")
	}

	ep, err := s.findEpisode(ctx, anidbKey, season, episode)
	if err != nil {
		return connectionFailed(err)
	}
	if ep == nil {
		return notFound(anidbKey, season, episode)
	}
	if ep.ViewCount >= 1 {
		return models.Succeeded("already marked as watched.")
	}

	if err := s.client.Scrobble(ctx, ep.RatingKey); err != nil {
		return connectionFailed(err)
	}

	after, err := s.client.GetMetadata(ctx, ep.RatingKey)
	if err != nil {
		return connectionFailed(err)
	}
	if after.ViewCount < 1 {
		return models.Failedf("API returned unexpected result: viewCount=%d", after.ViewCount)
	}

	return models.Succeeded("successful.")
}

// Progress stores a partial playback position. Watched episodes are left
// alone so a later partial replay does not reset them.
func (b *Backend) Progress(ctx context.Context, anidbKey string, season, episode int, positionMs int64) models.ScrobbleResult {
	s := b.session.Load()
	if s == nil {
		return models.Failedf("not initialized!")
	}

	ep, err := s.findEpisode(ctx, anidbKey, season, episode)
	if err != nil {
		return connectionFailed(err)
	}
	if ep == nil {
		return notFound(anidbKey, season, episode)
	}
	if ep.ViewCount >= 1 {
		return models.Succeeded("already marked as watched.")
	}

	if err := s.client.Progress(ctx, ep.RatingKey, positionMs); err != nil {
		return connectionFailed(err)
	}
	return models.Succeeded("progress updated.")
}

// findEpisode walks sections, shows, seasons and episodes by GUID prefix.
// A nil item means no match.
func (s *session) findEpisode(ctx context.Context, anidbKey string, season, episode int) (*Metadata, error) {
	seriesGUID := fmt.Sprintf("%s://anidb-%s?lang=", hamaAgent, anidbKey)
	seasonGUID := fmt.Sprintf("%s://anidb-%s/%d?lang=", hamaAgent, anidbKey, season)
	episodeGUID := fmt.Sprintf("%s://anidb-%s/%d/%d?lang=", hamaAgent, anidbKey, season, episode)

	for _, key := range s.sectionKeys {
		shows, err := s.client.GetShows(ctx, key)
		if err != nil {
			return nil, err
		}
		for _, show := range shows {
			if !strings.HasPrefix(show.GUID, seriesGUID) {
				continue
			}
			seasons, err := s.client.GetChildren(ctx, show.RatingKey)
			if err != nil {
				return nil, err
			}
			for _, se := range seasons {
				if !strings.HasPrefix(se.GUID, seasonGUID) {
					continue
				}
				episodes, err := s.client.GetChildren(ctx, se.RatingKey)
				if err != nil {
					return nil, err
				}
				for i := range episodes {
					if strings.HasPrefix(episodes[i].GUID, episodeGUID) {
						return &episodes[i], nil
					}
				}
			}
		}
	}
	return nil, nil
}

func notFound(anidbKey string, season, episode int) models.ScrobbleResult {
	return models.Skipped(fmt.Sprintf("could not find S%dE%d of series with anidb id %s on server.", season, episode, anidbKey))
}

func connectionFailed(err error) models.ScrobbleResult {
	return models.Failedf("something went wrong while connecting to plex: %v", err)
}

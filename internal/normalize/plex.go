// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package normalize

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pjaws/internal/logging"
	"github.com/tomtom215/pjaws/internal/models"
	"github.com/tomtom215/pjaws/internal/validation"
)

// HamaAgentPrefix is the guid prefix written by the HAMA anime agent.
const HamaAgentPrefix = "com.plexapp.agents.hama"

// hamaGUIDPattern extracts the AniDB series id and language from an episode
// or series guid such as com.plexapp.agents.hama://anidb-12345/1/5?lang=en.
var hamaGUIDPattern = regexp.MustCompile(`(?i)^com\.plexapp\.agents\.hama://anidb-(\d+)(?:/\d+/\d+)?\?lang=(\w+)$`)

// ParseHamaGUID returns the series id and language of a HAMA guid.
func ParseHamaGUID(guid string) (seriesKey, lang string, ok bool) {
	m := hamaGUIDPattern.FindStringSubmatch(guid)
	if len(m) != 3 {
		return "", "", false
	}
	return m[1], m[2], true
}

// Plex normalizes the JSON document found in the "payload" form field.
func (n *Normalizer) Plex(ctx context.Context, payload []byte) (*models.WatchEvent, error) {
	if !n.plex.configured() {
		return nil, ErrNotConfigured
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: empty payload field", ErrMalformed)
	}

	var hook models.PlexWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if verr := validation.ValidateStruct(&hook); verr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, verr)
	}

	l := logging.CtxWith(ctx).
		Str("source", "plex").
		Str("event", safe(hook.Event)).
		Str("account", safe(hook.GetUsername())).
		Str("library", safe(hook.GetLibrary())).
		Logger()

	// Admission filter
	switch {
	case hook.Event != models.PlexEventScrobble:
		filtered(&l, "not a media.scrobble event")
		return nil, nil
	case !hook.IsEpisode():
		filtered(&l, "not an episode in a show library")
		return nil, nil
	case hook.Account.Title != n.plex.user:
		filtered(&l, "account is not the configured user")
		return nil, nil
	case !n.plex.allowsLibrary(hook.Metadata.LibrarySectionTitle):
		filtered(&l, "library is not configured")
		return nil, nil
	case !strings.HasPrefix(strings.ToLower(hook.Metadata.GUID), HamaAgentPrefix):
		filtered(&l, "episode metadata not provided by HAMA agent")
		return nil, nil
	}

	meta := hook.Metadata
	seriesKey, lang, ok := ParseHamaGUID(meta.GUID)
	if !ok {
		l.Error().Str("guid", safe(meta.GUID)).Msg("Unable to extract anidb id from guid")
		return nil, fmt.Errorf("%w: unable to extract anidb id from guid", ErrMalformed)
	}

	season := 1
	if meta.ParentIndex != nil {
		season = *meta.ParentIndex
	}
	if season < 0 || meta.Index == nil || *meta.Index < 1 {
		l.Error().Str("guid", safe(meta.GUID)).Msg("Failed to extract usable season and episode")
		return nil, fmt.Errorf("%w: missing or invalid season/episode", ErrMalformed)
	}

	event := &models.WatchEvent{
		Source:      models.SourcePlex,
		SeriesKey:   seriesKey,
		Language:    strings.ToLower(lang),
		Season:      season,
		Episode:     *meta.Index,
		Completed:   true,
		AccountName: hook.Account.Title,
		LibraryName: meta.LibrarySectionTitle,
		SeriesTitle: meta.GrandparentTitle,
	}

	l.Info().
		Str("series_key", event.SeriesKey).
		Str("title", safe(hook.GetContentTitle())).
		Int("season", event.Season).
		Int("episode", event.Episode).
		Msg("Webhook normalized")

	return event, nil
}

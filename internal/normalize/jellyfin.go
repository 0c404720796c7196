// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package normalize

import (
	"context"
	"fmt"
	"regexp"

	"github.com/goccy/go-json"

	"github.com/tomtom215/pjaws/internal/logging"
	"github.com/tomtom215/pjaws/internal/models"
	"github.com/tomtom215/pjaws/internal/validation"
)

var anidbIDPattern = regexp.MustCompile(`^\d+$`)

// Jellyfin normalizes a jellyfin-plugin-webhook JSON body.
//
// Only PlaybackStop with PlayedToCompletion is admitted, unless progress
// forwarding is enabled, in which case an incomplete stop yields an event
// with Completed=false and PositionMs set.
func (n *Normalizer) Jellyfin(ctx context.Context, body []byte) (*models.WatchEvent, error) {
	if !n.jellyfin.configured() {
		return nil, ErrNotConfigured
	}

	var hook models.JellyfinWebhook
	if err := json.Unmarshal(body, &hook); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if verr := validation.ValidateStruct(&hook); verr != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, verr)
	}

	l := logging.CtxWith(ctx).
		Str("source", "jellyfin").
		Str("event", safe(hook.NotificationType)).
		Str("account", safe(hook.NotificationUsername)).
		Str("library", safe(hook.LibraryName)).
		Logger()

	// Admission filter
	switch {
	case hook.NotificationType != models.JellyfinNotificationPlaybackStop:
		filtered(&l, "not a PlaybackStop notification")
		return nil, nil
	case !hook.PlayedToCompletion && !n.forwardProgress:
		filtered(&l, "playback not completed")
		return nil, nil
	case !hook.IsEpisode():
		filtered(&l, "not an episode")
		return nil, nil
	case hook.NotificationUsername != n.jellyfin.user:
		filtered(&l, "account is not the configured user")
		return nil, nil
	case !n.jellyfin.allowsLibrary(hook.LibraryName):
		filtered(&l, "library is not configured")
		return nil, nil
	case hook.ProviderAniDB == "":
		filtered(&l, "item has no AniDB provider id")
		return nil, nil
	}

	if !anidbIDPattern.MatchString(hook.ProviderAniDB) {
		l.Error().Str("provider_anidb", safe(hook.ProviderAniDB)).Msg("Unable to extract anidb id from provider metadata")
		return nil, fmt.Errorf("%w: invalid Provider_anidb", ErrMalformed)
	}

	season := 1
	if hook.SeasonNumber != nil {
		season = *hook.SeasonNumber
	}
	if season < 0 || hook.EpisodeNumber == nil || *hook.EpisodeNumber < 1 {
		l.Error().Str("provider_anidb", hook.ProviderAniDB).Msg("Failed to extract usable season and episode")
		return nil, fmt.Errorf("%w: missing or invalid season/episode", ErrMalformed)
	}

	event := &models.WatchEvent{
		Source:      models.SourceJellyfin,
		SeriesKey:   hook.ProviderAniDB,
		Season:      season,
		Episode:     *hook.EpisodeNumber,
		Completed:   hook.PlayedToCompletion,
		AccountName: hook.NotificationUsername,
		LibraryName: hook.LibraryName,
		SeriesTitle: hook.SeriesName,
	}
	if !event.Completed {
		event.PositionMs = hook.PositionMs()
	}

	l.Info().
		Str("series_key", event.SeriesKey).
		Str("title", safe(hook.GetContentTitle())).
		Int("season", event.Season).
		Int("episode", event.Episode).
		Bool("completed", event.Completed).
		Msg("Webhook normalized")

	return event, nil
}

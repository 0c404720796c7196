// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package models

import "fmt"

// Jellyfin webhook plugin notification types relevant to watch-state sync.
const (
	JellyfinNotificationPlaybackStop = "PlaybackStop"
	JellyfinItemTypeEpisode          = "Episode"
)

// ticksPerMillisecond converts Jellyfin's 100ns ticks.
const ticksPerMillisecond = 10_000

// JellyfinWebhook represents the payload sent by jellyfin-plugin-webhook using
// the "Generic" destination template. LibraryName is not part of the stock
// template and has to be added as {{LibraryName}} by the operator.
type JellyfinWebhook struct {
	NotificationType      string `json:"NotificationType" validate:"required"`
	NotificationUsername  string `json:"NotificationUsername"`
	UserID                string `json:"UserId,omitempty"`
	ServerName            string `json:"ServerName,omitempty"`
	ItemID                string `json:"ItemId,omitempty"`
	ItemType              string `json:"ItemType"`
	Name                  string `json:"Name,omitempty"`
	SeriesName            string `json:"SeriesName,omitempty"`
	LibraryName           string `json:"LibraryName,omitempty"`
	SeasonNumber          *int   `json:"SeasonNumber,omitempty"`
	EpisodeNumber         *int   `json:"EpisodeNumber,omitempty"`
	PlayedToCompletion    bool   `json:"PlayedToCompletion"`
	PlaybackPositionTicks int64  `json:"PlaybackPositionTicks,omitempty"`
	RunTimeTicks          int64  `json:"RunTimeTicks,omitempty"`
	ProviderAniDB         string `json:"Provider_anidb,omitempty"`
	ProviderAniList       string `json:"Provider_anilist,omitempty"`
}

// GetContentTitle returns "Series - S01E05 - Name" for episodes.
func (w *JellyfinWebhook) GetContentTitle() string {
	if w.SeriesName == "" {
		return w.Name
	}
	season, episode := 0, 0
	if w.SeasonNumber != nil {
		season = *w.SeasonNumber
	}
	if w.EpisodeNumber != nil {
		episode = *w.EpisodeNumber
	}
	return fmt.Sprintf("%s - S%02dE%02d - %s", w.SeriesName, season, episode, w.Name)
}

// PositionMs returns the stop position in milliseconds.
func (w *JellyfinWebhook) PositionMs() int64 {
	return w.PlaybackPositionTicks / ticksPerMillisecond
}

// IsEpisode reports whether the item is a TV episode.
func (w *JellyfinWebhook) IsEpisode() bool {
	return w.ItemType == JellyfinItemTypeEpisode
}

// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package models

import "fmt"

// PlexEventScrobble is sent once playback passes the watched threshold.
const PlexEventScrobble = "media.scrobble"

// PlexWebhook represents the JSON document Plex posts in the multipart
// "payload" form field.
// Documentation: https://support.plex.tv/articles/115002267687-webhooks/
type PlexWebhook struct {
	Event    string               `json:"event" validate:"required"`
	User     bool                 `json:"user"`
	Owner    bool                 `json:"owner"`
	Account  PlexWebhookAccount   `json:"Account"`
	Server   PlexWebhookServer    `json:"Server"`
	Player   PlexWebhookPlayer    `json:"Player"`
	Metadata *PlexWebhookMetadata `json:"Metadata,omitempty"`
}

// PlexWebhookAccount is the account that triggered the event.
type PlexWebhookAccount struct {
	ID    int    `json:"id"`
	Title string `json:"title"`
}

// PlexWebhookServer identifies the emitting server.
type PlexWebhookServer struct {
	Title string `json:"title"`
	UUID  string `json:"uuid"`
}

// PlexWebhookPlayer identifies the client device.
type PlexWebhookPlayer struct {
	Local         bool   `json:"local"`
	PublicAddress string `json:"publicAddress"`
	Title         string `json:"title"`
	UUID          string `json:"uuid"`
}

// PlexWebhookMetadata describes the item the event refers to.
// ParentIndex and Index are pointers so that an absent season can be told
// apart from season 0 (specials).
type PlexWebhookMetadata struct {
	LibrarySectionType  string `json:"librarySectionType"`
	LibrarySectionTitle string `json:"librarySectionTitle"`
	LibrarySectionID    int    `json:"librarySectionID"`
	RatingKey           string `json:"ratingKey"`
	Key                 string `json:"key"`
	GUID                string `json:"guid"`
	Type                string `json:"type"`
	Title               string `json:"title"`
	GrandparentTitle    string `json:"grandparentTitle"`
	ParentTitle         string `json:"parentTitle"`
	Index               *int   `json:"index,omitempty"`
	ParentIndex         *int   `json:"parentIndex,omitempty"`
	ViewOffset          int64  `json:"viewOffset,omitempty"`
	Duration            int64  `json:"duration,omitempty"`
}

// GetUsername returns the account title, the Plex display name.
func (w *PlexWebhook) GetUsername() string {
	return w.Account.Title
}

// GetLibrary returns the library section title or "" when no metadata was sent.
func (w *PlexWebhook) GetLibrary() string {
	if w.Metadata == nil {
		return ""
	}
	return w.Metadata.LibrarySectionTitle
}

// GetContentTitle returns "Show - S01E05 - Title" for episodes.
func (w *PlexWebhook) GetContentTitle() string {
	if w.Metadata == nil {
		return ""
	}
	m := w.Metadata
	if m.GrandparentTitle == "" {
		return m.Title
	}
	season, episode := 0, 0
	if m.ParentIndex != nil {
		season = *m.ParentIndex
	}
	if m.Index != nil {
		episode = *m.Index
	}
	return fmt.Sprintf("%s - S%02dE%02d - %s", m.GrandparentTitle, season, episode, m.Title)
}

// IsEpisode reports whether the item is a TV episode inside a show library.
func (w *PlexWebhook) IsEpisode() bool {
	return w.Metadata != nil &&
		w.Metadata.LibrarySectionType == "show" &&
		w.Metadata.Type == "episode"
}

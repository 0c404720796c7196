// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package models

import "fmt"

// SourceSystem identifies the media server that emitted a webhook.
type SourceSystem int

const (
	// SourceNone is used by backends that never emit events (list trackers).
	SourceNone SourceSystem = iota
	// SourcePlex is a Plex Media Server webhook.
	SourcePlex
	// SourceJellyfin is a jellyfin-plugin-webhook delivery.
	SourceJellyfin
)

// String returns the lowercase source name used in logs and metric labels.
func (s SourceSystem) String() string {
	switch s {
	case SourcePlex:
		return "plex"
	case SourceJellyfin:
		return "jellyfin"
	default:
		return "none"
	}
}

// WatchEvent is the canonical form of an admitted webhook. It is built only
// by the normalizer, after every admission check passed, and is never
// modified afterwards.
type WatchEvent struct {
	Source      SourceSystem `json:"source"`
	SeriesKey   string       `json:"series_key"`
	Language    string       `json:"language,omitempty"`
	Season      int          `json:"season"`
	Episode     int          `json:"episode"`
	Completed   bool         `json:"completed"`
	PositionMs  int64        `json:"position_ms,omitempty"`
	AccountName string       `json:"account_name"`
	LibraryName string       `json:"library_name"`
	SeriesTitle string       `json:"series_title,omitempty"`
}

// Label returns "Title - S1E5", falling back to the series key when no title
// was present in the payload.
func (e *WatchEvent) Label() string {
	title := e.SeriesTitle
	if title == "" {
		title = "anidb-" + e.SeriesKey
	}
	return fmt.Sprintf("%s - S%dE%d", title, e.Season, e.Episode)
}

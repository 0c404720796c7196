// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package mapping

import (
	"fmt"
	"strconv"

	"github.com/goccy/go-json"
)

// Identifier namespaces.
const (
	NamespaceAniDB   = "anidb"
	NamespaceAniList = "anilist"
	NamespaceMAL     = "mal"
	NamespaceTVDB    = "tvdb"
	NamespaceIMDB    = "imdb"
)

// Entry is one record of the community mapping document.
type Entry struct {
	TVDBID       *int   `json:"tvdb_id,omitempty"`
	TVDBSeason   *int   `json:"tvdb_season,omitempty"`
	TVDBEpOffset *int   `json:"tvdb_epoffset,omitempty"`
	MALID        *int   `json:"mal_id,omitempty"`
	AniListID    *int   `json:"anilist_id,omitempty"`
	IMDBID       string `json:"imdb_id,omitempty"`
}

// ID returns the entry's id in namespace.
func (e *Entry) ID(namespace string) (string, bool) {
	var id *int
	switch namespace {
	case NamespaceAniList:
		id = e.AniListID
	case NamespaceMAL:
		id = e.MALID
	case NamespaceTVDB:
		id = e.TVDBID
	case NamespaceIMDB:
		return e.IMDBID, e.IMDBID != ""
	}
	if id == nil || *id <= 0 {
		return "", false
	}
	return strconv.Itoa(*id), true
}

// Document maps an AniDB series id to its ids in other catalogs.
type Document map[string]Entry

// ParseDocument decodes a mapping document. An empty document is rejected
// because it cannot answer anything and usually means a truncated download.
func ParseDocument(data []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode mapping document: %w", err)
	}
	if len(doc) == 0 {
		return nil, fmt.Errorf("decode mapping document: no entries")
	}
	return doc, nil
}

// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

// Package main is the pjaws command.
//
// pjaws receives "episode watched" webhooks from Plex and Jellyfin and
// propagates them to the other configured backends: the AniList list tracker
// and whichever media server did not emit the event.
//
// # Commands
//
//	pjaws webhook     serve the webhook endpoints
//	pjaws configure   write settings to the configuration file
//	pjaws version     print the build version
//
// # Configuration
//
// Settings are read from $HOME/.config/pjaws/config.yaml (or --config, or
// PJAWS_CONFIG) and may be overridden by PJAWS_* environment variables:
//
//	export PJAWS_ANILIST_TOKEN=...
//	export PJAWS_PLEX_URL=http://plex:32400
//	export PJAWS_PLEX_LIBRARY=Anime,Anime Movies
//	pjaws webhook
//
// A backend whose settings are incomplete is disabled at startup; the others
// keep working.
//
// # Signal Handling
//
// SIGINT and SIGTERM stop the listener, then in-flight dispatches get
// dispatch.drain_timeout to finish.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

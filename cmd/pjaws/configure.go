// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/tomtom215/pjaws/internal/config"
	"github.com/tomtom215/pjaws/internal/logging"
)

// configureFlags holds the settings the configure command can write.
type configureFlags struct {
	bind string
	port int

	anilistToken string

	jellyfinURL     string
	jellyfinAPIKey  string
	jellyfinCAFile  string
	jellyfinUser    string
	jellyfinLibrary []string

	plexURL     string
	plexToken   string
	plexUser    string
	plexLibrary []string

	mattermostURL     string
	mattermostChannel string

	forwardProgress bool
}

func (f *configureFlags) register(flagSet *pflag.FlagSet) {
	flagSet.StringVar(&f.bind, "bind", "", "Webhook listen address")
	flagSet.IntVar(&f.port, "port", 0, "Webhook listen port")

	flagSet.StringVar(&f.anilistToken, "anilist-token", "", "AniList API token")

	flagSet.StringVar(&f.jellyfinURL, "jellyfin-url", "", "Jellyfin server URL")
	flagSet.StringVar(&f.jellyfinAPIKey, "jellyfin-api-key", "", "Jellyfin API key")
	flagSet.StringVar(&f.jellyfinCAFile, "jellyfin-ca-file", "", "PEM bundle trusted for the Jellyfin server")
	flagSet.StringVar(&f.jellyfinUser, "jellyfin-user", "", "Jellyfin user whose playback is synced")
	flagSet.StringSliceVar(&f.jellyfinLibrary, "jellyfin-library", nil, "Jellyfin libraries to sync (repeatable)")

	flagSet.StringVar(&f.plexURL, "plex-url", "", "Plex Media Server URL")
	flagSet.StringVar(&f.plexToken, "plex-token", "", "Plex token")
	flagSet.StringVar(&f.plexUser, "plex-user", "", "Plex account whose playback is synced")
	flagSet.StringSliceVar(&f.plexLibrary, "plex-library", nil, "Plex libraries to sync (repeatable)")

	flagSet.StringVar(&f.mattermostURL, "mattermost-webhook-url", "", "Mattermost incoming webhook URL")
	flagSet.StringVar(&f.mattermostChannel, "mattermost-channel", "", "Mattermost channel")

	flagSet.BoolVar(&f.forwardProgress, "forward-progress", false, "Forward partial Jellyfin progress to backends that support it")
}

// apply copies every flag the user set onto cfg.
func (f *configureFlags) apply(flagSet *pflag.FlagSet, cfg *config.Config) int {
	changed := 0
	set := func(name string, fn func()) {
		if flagSet.Changed(name) {
			fn()
			changed++
		}
	}

	set("bind", func() { cfg.Webhook.Bind = f.bind })
	set("port", func() { cfg.Webhook.Port = f.port })
	set("anilist-token", func() { cfg.AniList.Token = f.anilistToken })
	set("jellyfin-url", func() { cfg.Jellyfin.URL = f.jellyfinURL })
	set("jellyfin-api-key", func() { cfg.Jellyfin.APIKey = f.jellyfinAPIKey })
	set("jellyfin-ca-file", func() { cfg.Jellyfin.CAFile = f.jellyfinCAFile })
	set("jellyfin-user", func() { cfg.Jellyfin.User = f.jellyfinUser })
	set("jellyfin-library", func() { cfg.Jellyfin.Library = f.jellyfinLibrary })
	set("plex-url", func() { cfg.Plex.URL = f.plexURL })
	set("plex-token", func() { cfg.Plex.Token = f.plexToken })
	set("plex-user", func() { cfg.Plex.User = f.plexUser })
	set("plex-library", func() { cfg.Plex.Library = f.plexLibrary })
	set("mattermost-webhook-url", func() { cfg.Mattermost.WebhookURL = f.mattermostURL })
	set("mattermost-channel", func() { cfg.Mattermost.Channel = f.mattermostChannel })
	set("forward-progress", func() { cfg.Dispatch.ForwardProgress = f.forwardProgress })

	return changed
}

func newConfigureCommand(ctx *commandContext) *cobra.Command {
	var flags configureFlags

	cmd := &cobra.Command{
		Use:         "configure",
		Short:       "Write settings to the configuration file",
		Long:        "Loads the current configuration file (if any), applies the given flags and writes it back with mode 0600.",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigLoad: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := configureTarget(ctx.configPath())

			source := target
			if _, err := os.Stat(target); errors.Is(err, fs.ErrNotExist) {
				source = ""
			} else if err != nil {
				return fmt.Errorf("check config path: %w", err)
			}

			cfg, err := config.LoadUnvalidated(source)
			if err != nil {
				return err
			}

			changed := flags.apply(cmd.Flags(), cfg)

			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("refusing to write invalid configuration: %w", err)
			}
			if err := config.SaveFile(cfg, target); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote configuration to %s (%d settings changed)\n", target, changed)
			for _, section := range []struct {
				name    string
				missing []string
			}{
				{"anilist", cfg.AniList.MissingFields()},
				{"jellyfin", cfg.Jellyfin.MissingFields()},
				{"plex", cfg.Plex.MissingFields()},
			} {
				if len(section.missing) > 0 {
					fmt.Fprintf(out, "  %s will be disabled, missing: %v\n", section.name, section.missing)
				}
			}
			logging.Debug().Str("path", target).Int("changed", changed).Msg("Configuration written")
			return nil
		},
	}

	flags.register(cmd.Flags())
	return cmd
}

// configureTarget picks the file to write: --config, then PJAWS_CONFIG, then
// the default location.
func configureTarget(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if env := os.Getenv(config.ConfigPathEnvVar); env != "" {
		return env
	}
	return config.DefaultPath()
}

// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/pjaws/internal/api"
	"github.com/tomtom215/pjaws/internal/backend"
	"github.com/tomtom215/pjaws/internal/backend/anilist"
	"github.com/tomtom215/pjaws/internal/backend/jellyfin"
	"github.com/tomtom215/pjaws/internal/backend/plex"
	"github.com/tomtom215/pjaws/internal/cache"
	"github.com/tomtom215/pjaws/internal/config"
	"github.com/tomtom215/pjaws/internal/engine"
	"github.com/tomtom215/pjaws/internal/logging"
	"github.com/tomtom215/pjaws/internal/mapping"
	"github.com/tomtom215/pjaws/internal/normalize"
	"github.com/tomtom215/pjaws/internal/notifications"
	"github.com/tomtom215/pjaws/internal/supervisor"
	"github.com/tomtom215/pjaws/internal/supervisor/services"
)

const (
	mappingFetchTimeout   = 2 * time.Minute
	httpShutdownTimeout   = 10 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeoutMargin = 15 * time.Second

	// Native lookups scan a media server library, so hits are kept for a while.
	nativeMemoSize = 1024
	nativeMemoTTL  = 6 * time.Hour
)

func newWebhookCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "webhook",
		Short: "Serve the Plex and Jellyfin webhook endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runWebhook(runCtx, cfg)
		},
	}
}

// app is the wired set of components behind the webhook server.
type app struct {
	registry *backend.Registry
	cache    *mapping.Cache
	resolver *mapping.Resolver
	engine   *engine.Engine
	router   http.Handler
}

// buildApp constructs every component from cfg. Nothing touches the network.
func buildApp(cfg *config.Config) *app {
	jellyfinBackend := jellyfin.New(&cfg.Jellyfin)
	registry := backend.NewRegistry(
		anilist.New(&cfg.AniList),
		jellyfinBackend,
		plex.New(&cfg.Plex),
	)

	mappingCache := mapping.NewCache(&cfg.Mapping, mapping.NewHTTPFetcher(mappingFetchTimeout, backend.Product+"/"+version))
	resolver := mapping.NewResolver(
		cfg.Mapping.Overrides,
		mappingCache,
		mapping.WithNativeLookup(mapping.NamespaceAniList, jellyfinBackend),
		mapping.WithNativeMemo(cache.NewLRU[string](nativeMemoSize, nativeMemoTTL)),
	)

	eng := engine.New(registry, resolver,
		engine.WithTimeout(cfg.Dispatch.Timeout),
		engine.WithNotifier(notifications.New(&cfg.Mattermost)),
	)

	handler := api.NewHandler(normalize.New(cfg), eng, registry, version)

	return &app{
		registry: registry,
		cache:    mappingCache,
		resolver: resolver,
		engine:   eng,
		router:   api.NewRouter(handler, &cfg.Webhook),
	}
}

func runWebhook(ctx context.Context, cfg *config.Config) error {
	logging.Info().
		Str("version", version).
		Str("addr", cfg.Webhook.Addr()).
		Bool("forward_progress", cfg.Dispatch.ForwardProgress).
		Msg("Starting pjaws webhook server")

	a := buildApp(cfg)

	// Backends are initialized once. A disabled backend stays disabled until
	// the process restarts.
	if ready := a.registry.InitAll(ctx, cfg.Dispatch.Timeout); ready == 0 {
		logging.Warn().Msg("No backend is ready; webhooks will be accepted but not propagated")
	} else {
		logging.Info().Int("ready", ready).Msg("Backends initialized")
	}

	server := &http.Server{
		Addr:              cfg.Webhook.Addr(),
		Handler:           a.router,
		ReadTimeout:       cfg.Webhook.ReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	tree := supervisor.NewSupervisorTree(slog.New(logging.NewSlogHandler()), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Dispatch.DrainTimeout + shutdownTimeoutMargin,
	})
	tree.AddResolverService(services.NewMappingRefreshService(a.cache, cfg.Mapping.RefreshInterval,
		services.WithPruner(a.resolver),
	))
	tree.AddDispatchService(services.NewDrainService(a.engine, cfg.Dispatch.DrainTimeout))
	tree.AddAPIService(services.NewHTTPServerService(server, server.Addr, httpShutdownTimeout))

	err := tree.Serve(ctx)

	if unstopped, rerr := tree.UnstoppedServiceReport(); rerr == nil {
		for _, svc := range unstopped {
			logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logging.Info().Msg("pjaws stopped")
	return nil
}

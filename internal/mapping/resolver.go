// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

// Package mapping resolves AniDB series ids into the id space of a target
// backend.
//
// Resolution order, first hit wins:
//  1. Identity, when the target consumes AniDB ids itself
//  2. Static overrides from configuration
//  3. The cached community mapping document (see Cache)
//  4. Backend-native lookups registered for the namespace
//
// Native hits can be memoized (WithNativeMemo) since each one may cost a
// library scan on the media server.
//
// A miss is reported as ErrNotFound and is never fatal.
package mapping

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/tomtom215/pjaws/internal/cache"
	"github.com/tomtom215/pjaws/internal/logging"
	"github.com/tomtom215/pjaws/internal/metrics"
)

// ErrNotFound is returned when no step yields an id.
var ErrNotFound = errors.New("identifier not found")

// Lookup answers "which id does sourceKey have in namespace".
type Lookup interface {
	Lookup(ctx context.Context, sourceKey, namespace string) (string, error)
}

// NativeLookup is implemented by backends that can search their own library
// for a series carrying a given AniDB id.
type NativeLookup interface {
	// Name identifies the lookup in logs.
	Name() string
	LookupNative(ctx context.Context, sourceKey, namespace string) (string, error)
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithNativeLookup registers a last-resort lookup for namespace.
func WithNativeLookup(namespace string, l NativeLookup) Option {
	return func(r *Resolver) {
		r.native[namespace] = append(r.native[namespace], l)
	}
}

// WithNativeMemo remembers successful native lookups in memo. Misses are not
// remembered, so a series added to the library later is still found.
func WithNativeMemo(memo *cache.LRU[string]) Option {
	return func(r *Resolver) {
		r.memo = memo
	}
}

// Resolver is safe for concurrent use. Only the optional memo mutates after
// construction.
type Resolver struct {
	overrides map[string]map[string]string
	cache     Lookup
	native    map[string][]NativeLookup
	memo      *cache.LRU[string]
	logger    zerolog.Logger
}

// NewResolver builds a resolver. cache may be nil to disable step 3.
func NewResolver(overrides map[string]map[string]string, cache Lookup, opts ...Option) *Resolver {
	r := &Resolver{
		overrides: make(map[string]map[string]string, len(overrides)),
		cache:     cache,
		native:    make(map[string][]NativeLookup),
		logger:    logging.WithComponent("mapping"),
	}
	for ns, pairs := range overrides {
		copied := make(map[string]string, len(pairs))
		for k, v := range pairs {
			copied[k] = v
		}
		r.overrides[ns] = copied
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// PruneMemo drops expired native lookup hits, publishes the memo state and
// returns how many entries were dropped.
func (r *Resolver) PruneMemo() int {
	if r.memo == nil {
		return 0
	}
	removed := r.memo.CleanupExpired()
	stats := r.memo.Stats()
	metrics.RecordNativeMemo(stats.Size, stats.HitRate, removed)
	if removed > 0 {
		r.logger.Debug().Int("expired", removed).Int("entries", stats.Size).Msg("Pruned native lookup memo")
	}
	return removed
}

// Resolve returns the id of sourceKey in namespace, or ErrNotFound.
func (r *Resolver) Resolve(ctx context.Context, sourceKey, namespace string) (string, error) {
	l := logging.CtxWith(ctx).Str("component", "mapping").
		Str("series_key", sourceKey).
		Str("namespace", namespace).
		Logger()

	if namespace == NamespaceAniDB {
		metrics.RecordResolve(namespace, "identity")
		return sourceKey, nil
	}

	if id, ok := r.overrides[namespace][sourceKey]; ok {
		metrics.RecordResolve(namespace, "override")
		l.Debug().Str("target_key", id).Msg("Resolved from override")
		return id, nil
	}

	if r.cache != nil {
		id, err := r.cache.Lookup(ctx, sourceKey, namespace)
		if err == nil {
			metrics.RecordResolve(namespace, "cache")
			l.Debug().Str("target_key", id).Msg("Resolved from mapping cache")
			return id, nil
		}
		l.Debug().Err(err).Msg("Mapping cache miss")
	}

	memoKey := namespace + "/" + sourceKey
	if r.memo != nil && len(r.native[namespace]) > 0 {
		if id, ok := r.memo.Get(memoKey); ok {
			metrics.RecordResolve(namespace, "native")
			l.Debug().Str("target_key", id).Msg("Resolved from backend lookup memo")
			return id, nil
		}
	}

	for _, native := range r.native[namespace] {
		id, err := native.LookupNative(ctx, sourceKey, namespace)
		if err == nil && id != "" {
			if r.memo != nil {
				r.memo.Add(memoKey, id)
			}
			metrics.RecordResolve(namespace, "native")
			l.Debug().Str("target_key", id).Str("lookup", native.Name()).Msg("Resolved from backend")
			return id, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			l.Warn().Err(err).Str("lookup", native.Name()).Msg("Backend lookup failed")
		}
	}

	metrics.RecordResolve(namespace, "not_found")
	return "", ErrNotFound
}

// pjaws - Plex/Jellyfin/AniList watched sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pjaws

package mapping

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/tomtom215/pjaws/internal/config"
	"github.com/tomtom215/pjaws/internal/logging"
	"github.com/tomtom215/pjaws/internal/metrics"
)

const (
	cacheFileName = "mapping.json"
	lockFileName  = "mapping.json.lock"

	// maxCorruptionRetries bounds how often an unparseable cache file is
	// deleted and fetched again within one lookup.
	maxCorruptionRetries = 1

	lockTimeout    = 10 * time.Second
	lockRetryDelay = 250 * time.Millisecond
)

var errCorrupt = errors.New("mapping cache corrupt")

// Cache is the on-disk community mapping document plus its parsed form.
//
// The file is replaced atomically (write to temp, rename) so readers never
// see a partial document. Refreshes are deduplicated within the process
// with singleflight and across processes with a lock file. A failed refresh
// never removes a cached copy; stale data is preferred over none.
type Cache struct {
	dir      string
	path     string
	lockPath string
	url      string
	maxAge   time.Duration
	fetcher  Fetcher
	now      func() time.Time
	logger   zerolog.Logger

	group singleflight.Group

	mu      sync.RWMutex
	doc     Document
	docMod  time.Time
	docSize int64
}

// NewCache returns a cache stored under cfg.CacheDir.
func NewCache(cfg *config.MappingConfig, fetcher Fetcher) *Cache {
	return &Cache{
		dir:      cfg.CacheDir,
		path:     filepath.Join(cfg.CacheDir, cacheFileName),
		lockPath: filepath.Join(cfg.CacheDir, lockFileName),
		url:      cfg.URL,
		maxAge:   cfg.MaxAge,
		fetcher:  fetcher,
		now:      time.Now,
		logger:   logging.WithComponent("mapping"),
	}
}

// Path returns the cache file location.
func (c *Cache) Path() string { return c.path }

// Lookup returns the id of sourceKey in namespace. Every failure, including
// "no document could be obtained", matches ErrNotFound.
func (c *Cache) Lookup(ctx context.Context, sourceKey, namespace string) (string, error) {
	for attempt := 0; attempt <= maxCorruptionRetries; attempt++ {
		doc, err := c.load(ctx)
		if errors.Is(err, errCorrupt) {
			c.discard(err)
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNotFound, err)
		}

		entry, ok := doc[sourceKey]
		if !ok {
			return "", ErrNotFound
		}
		id, ok := entry.ID(namespace)
		if !ok {
			return "", ErrNotFound
		}
		return id, nil
	}
	return "", fmt.Errorf("%w: cache unparseable after retry", ErrNotFound)
}

// Warm makes sure a fresh document is on disk and parsed.
func (c *Cache) Warm(ctx context.Context) error {
	for attempt := 0; attempt <= maxCorruptionRetries; attempt++ {
		_, err := c.load(ctx)
		if errors.Is(err, errCorrupt) {
			c.discard(err)
			continue
		}
		return err
	}
	return errCorrupt
}

// load returns the parsed document, refreshing it first when the file is
// missing or older than maxAge.
func (c *Cache) load(ctx context.Context) (Document, error) {
	info, statErr := os.Stat(c.path)
	if statErr != nil || c.expired(info) {
		doc, err := c.refresh(ctx)
		if err == nil {
			return doc, nil
		}
		if statErr != nil {
			return nil, fmt.Errorf("no cached mapping document: %w", err)
		}
		c.logger.Warn().Err(err).
			Dur("age", c.now().Sub(info.ModTime())).
			Msg("Mapping refresh failed, using stale cache")
	}
	return c.read()
}

func (c *Cache) expired(info os.FileInfo) bool {
	return c.now().Sub(info.ModTime()) > c.maxAge
}

// read parses the file, reusing the previous parse while the file is unchanged.
func (c *Cache) read() (Document, error) {
	info, err := os.Stat(c.path)
	if err != nil {
		return nil, fmt.Errorf("stat mapping cache: %w", err)
	}
	metrics.MappingAgeSeconds.Set(c.now().Sub(info.ModTime()).Seconds())

	c.mu.RLock()
	if c.doc != nil && c.docMod.Equal(info.ModTime()) && c.docSize == info.Size() {
		doc := c.doc
		c.mu.RUnlock()
		return doc, nil
	}
	c.mu.RUnlock()

	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, fmt.Errorf("read mapping cache: %w", err)
	}
	doc, err := ParseDocument(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCorrupt, err)
	}

	c.remember(doc, info)
	return doc, nil
}

func (c *Cache) remember(doc Document, info os.FileInfo) {
	c.mu.Lock()
	c.doc = doc
	c.docMod = info.ModTime()
	c.docSize = info.Size()
	c.mu.Unlock()
	metrics.MappingEntries.Set(float64(len(doc)))
}

// discard deletes an unparseable cache file.
func (c *Cache) discard(cause error) {
	metrics.MappingCorruptions.Inc()
	c.logger.Warn().Err(cause).Str("path", c.path).Msg("Deleting corrupt mapping cache")

	c.mu.Lock()
	c.doc = nil
	c.mu.Unlock()

	if err := os.Remove(c.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		c.logger.Error().Err(err).Str("path", c.path).Msg("Failed to delete corrupt mapping cache")
	}
}

// refresh downloads the document once per process at a time.
func (c *Cache) refresh(ctx context.Context) (Document, error) {
	v, err, _ := c.group.Do("refresh", func() (any, error) {
		return c.download(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(Document), nil
}

func (c *Cache) download(ctx context.Context) (Document, error) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	lock := flock.New(c.lockPath)
	locked, err := lock.TryLockContext(lockCtx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock mapping cache: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock mapping cache: %s is held by another process", c.lockPath)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to release mapping cache lock")
		}
	}()

	// Another process may have refreshed the file while we waited.
	if info, err := os.Stat(c.path); err == nil && !c.expired(info) {
		if doc, err := c.read(); err == nil {
			return doc, nil
		}
	}

	start := time.Now()
	data, err := c.fetcher.Fetch(ctx, c.url)
	if err == nil {
		var doc Document
		doc, err = ParseDocument(data)
		if err != nil {
			err = fmt.Errorf("%w: %v", errCorrupt, err)
		} else {
			err = c.write(data)
		}
		if err == nil {
			metrics.RecordMappingRefresh(nil)
			info, statErr := os.Stat(c.path)
			if statErr == nil {
				c.remember(doc, info)
			}
			c.logger.Info().
				Int("entries", len(doc)).
				Dur("duration", time.Since(start)).
				Msg("Mapping document refreshed")
			return doc, nil
		}
	}

	metrics.RecordMappingRefresh(err)
	return nil, fmt.Errorf("refresh mapping document: %w", err)
}

// write replaces the cache file atomically.
func (c *Cache) write(data []byte) error {
	tmp, err := os.CreateTemp(c.dir, ".mapping-*.json")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, c.path); err != nil {
		return fmt.Errorf("replace mapping cache: %w", err)
	}
	return nil
}

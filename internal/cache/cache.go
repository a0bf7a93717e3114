// Package cache provides a file-backed response cache with TTL freshness
// checks based on file modification times.
package cache

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Config holds configuration for the cache.
type Config struct {
	// Dir is the cache directory. If empty, the cache is disabled:
	// writes are no-ops and reads always miss.
	Dir string

	// Domain is an optional namespace prefix for cache file names.
	// When set, entries are stored as "{domain}.{name}".
	Domain string

	// TTL is the default freshness window for cache entries.
	TTL time.Duration

	// CleanOnInit sweeps stale files from Dir at construction.
	CleanOnInit bool

	// Logger for cache operations.
	Logger zerolog.Logger

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Cache is a file-backed key/value store. An entry is considered fresh
// while its mtime plus the effective TTL is in the future.
type Cache struct {
	dir    string
	domain string
	ttl    time.Duration
	logger zerolog.Logger
	now    func() time.Time
}

// New creates a new cache. If cfg.CleanOnInit is set, stale files in the
// cache directory are removed immediately.
func New(cfg Config) *Cache {
	dir := cfg.Dir
	if dir != "" {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	c := &Cache{
		dir:    dir,
		domain: cfg.Domain,
		ttl:    cfg.TTL,
		logger: cfg.Logger,
		now:    now,
	}

	if cfg.CleanOnInit {
		if err := c.CleanDir(0); err != nil {
			c.logger.Warn().Err(err).Str("dir", dir).Msg("cache directory cleanup failed")
		}
	}

	return c
}

// filePath derives the on-disk path for an entry name.
func (c *Cache) filePath(name string) string {
	if c.domain != "" {
		name = c.domain + "." + name
	}
	return filepath.Join(c.dir, name)
}

// effectiveTTL returns the larger of the per-call override and the
// configured default.
func (c *Cache) effectiveTTL(override time.Duration) time.Duration {
	if override > c.ttl {
		return override
	}
	return c.ttl
}

// IsCached reports whether a fresh regular file exists for name.
func (c *Cache) IsCached(name string, ttlOverride time.Duration) bool {
	if c.dir == "" {
		return false
	}

	fi, err := os.Stat(c.filePath(name))
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}

	return fi.ModTime().Add(c.effectiveTTL(ttlOverride)).After(c.now())
}

// CachedFor returns the age of an existing entry, regardless of freshness.
// The second return value is false if the entry does not exist.
func (c *Cache) CachedFor(name string) (time.Duration, bool) {
	if c.dir == "" {
		return 0, false
	}

	fi, err := os.Stat(c.filePath(name))
	if err != nil || !fi.Mode().IsRegular() {
		return 0, false
	}

	return c.now().Sub(fi.ModTime()), true
}

// Read returns the cached content for name iff the entry is fresh.
func (c *Cache) Read(name string, ttlOverride time.Duration) (string, bool) {
	if !c.IsCached(name, ttlOverride) {
		return "", false
	}

	path := c.filePath(name)
	b, err := os.ReadFile(path)
	if err != nil {
		c.logger.Warn().Err(err).Str("path", path).Msg("failed to read cache file")
		return "", false
	}

	c.logger.Debug().Str("path", path).Msg("read cache file")
	return string(b), true
}

// Save writes content to the cache, creating the cache directory if needed
// and overwriting any existing entry. No-op when no directory is configured.
func (c *Cache) Save(name, content string) error {
	if c.dir == "" {
		return nil
	}

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return err
	}

	path := c.filePath(name)
	c.logger.Debug().Str("path", path).Msg("store cache file")
	return os.WriteFile(path, []byte(content), 0o644)
}

// CleanDir removes every file in the cache directory whose age exceeds the
// effective TTL. Files disappearing concurrently are not an error.
func (c *Cache) CleanDir(ttlOverride time.Duration) error {
	if c.dir == "" {
		return nil
	}

	entries, err := os.ReadDir(c.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	ttl := c.effectiveTTL(ttlOverride)
	now := c.now()
	c.logger.Debug().Str("dir", c.dir).Msg("cleaning cache directory")

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		fi, err := entry.Info()
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return err
		}

		if !fi.ModTime().Add(ttl).After(now) {
			err := os.Remove(filepath.Join(c.dir, entry.Name()))
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
		}
	}

	return nil
}

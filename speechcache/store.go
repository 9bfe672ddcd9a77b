package speechcache

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bellhopd/bellhop/logger"
	metrics "github.com/bellhopd/bellhop/metrics/prometheus"
	"github.com/bellhopd/bellhop/tts"
)

const (
	// DefaultMaxEntries caps the cache before oldest-first eviction kicks in.
	DefaultMaxEntries = 100

	// artifactExt is the extension of cached playback artifacts.
	artifactExt = ".mp3"

	cacheDirPermissions = 0o755
)

// Store is the on-disk speech cache. Artifacts are addressed by Key; the
// index holds metadata and eviction order. Index or disk failures degrade
// to cache misses, never to synthesis failures.
type Store struct {
	dir        string
	maxEntries int
	index      Index

	mu sync.Mutex

	hits          int64
	misses        int64
	invalidations int64
	evictions     int64
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithMaxEntries sets the entry cap. Default is DefaultMaxEntries.
func WithMaxEntries(n int) StoreOption {
	return func(s *Store) {
		s.maxEntries = n
	}
}

// WithIndex sets the metadata index. Default is an in-memory index.
func WithIndex(index Index) StoreOption {
	return func(s *Store) {
		s.index = index
	}
}

// NewStore creates a speech cache rooted at dir, creating it if needed.
func NewStore(dir string, opts ...StoreOption) (*Store, error) {
	s := &Store{
		dir:        dir,
		maxEntries: DefaultMaxEntries,
		index:      NewMemoryIndex(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, cacheDirPermissions); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return s, nil
}

// PathFor returns the artifact path for a cache key. Synthesis writes the
// artifact here before Commit records it.
func (s *Store) PathFor(key string) string {
	return filepath.Join(s.dir, key+artifactExt)
}

// Lookup returns the artifact path for a synthesis request if a valid
// cached artifact exists. An entry whose file is missing or empty is
// invalidated and reported as a miss; index failures are also misses.
func (s *Store) Lookup(ctx context.Context, text, provider string, params tts.Params) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(text, provider, params)
	entry, err := s.index.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("cache index lookup failed, treating as miss",
				"key", key, "error", err)
		}
		s.misses++
		metrics.RecordCacheLookup("miss")
		return "", false
	}

	info, statErr := os.Stat(entry.Path)
	if statErr != nil || info.Size() == 0 {
		logger.Debug("cache entry invalid, removing", "key", key, "path", entry.Path)
		s.invalidateLocked(ctx, entry)
		return "", false
	}

	// Entries carrying metadata must still hash to their own key; a drifted
	// or corrupted record never serves another request's audio. Rehydrated
	// entries have no metadata to check.
	if entry.Text != "" && keyFrom(entry.Text, entry.Provider, entry.Params) != entry.Key {
		logger.Warn("cache entry metadata does not match its key, removing",
			"key", key, "provider", entry.Provider)
		s.invalidateLocked(ctx, entry)
		return "", false
	}

	s.hits++
	metrics.RecordCacheLookup("hit")
	return entry.Path, true
}

// invalidateLocked drops a bad entry and its artifact, counting the lookup
// as an invalidation miss. Caller holds s.mu.
func (s *Store) invalidateLocked(ctx context.Context, entry *Entry) {
	if err := s.index.Delete(ctx, entry.Key); err != nil {
		logger.Warn("cache invalidation failed", "key", entry.Key, "error", err)
	}
	if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to remove invalid artifact", "path", entry.Path, "error", err)
	}
	s.invalidations++
	s.misses++
	metrics.RecordCacheLookup("invalidated")
	s.refreshGauge(ctx)
}

// Commit records a freshly synthesized artifact at PathFor(key) and evicts
// oldest entries past the cap. The artifact must already be on disk.
func (s *Store) Commit(ctx context.Context, text, provider string, params tts.Params) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := Key(text, provider, params)
	path := s.PathFor(key)

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("artifact missing at commit: %w", err)
	}
	if info.Size() == 0 {
		_ = os.Remove(path)
		return "", fmt.Errorf("artifact empty at commit: %s", path)
	}

	entry := &Entry{
		Key:       key,
		Path:      path,
		Provider:  provider,
		Text:      NormalizeText(text),
		Params:    params.Canonical(),
		Size:      info.Size(),
		CreatedAt: time.Now(),
	}
	if err := s.index.Put(ctx, entry); err != nil {
		return "", fmt.Errorf("cache index put failed: %w", err)
	}

	if err := s.evictLocked(ctx); err != nil {
		logger.Warn("cache eviction failed", "error", err)
	}
	s.refreshGauge(ctx)
	return path, nil
}

// evictLocked removes oldest entries until the cap holds. Caller holds s.mu.
func (s *Store) evictLocked(ctx context.Context) error {
	if s.maxEntries <= 0 {
		return nil
	}
	count, err := s.index.Len(ctx)
	if err != nil || count <= s.maxEntries {
		return err
	}

	entries, err := s.index.All(ctx)
	if err != nil {
		return err
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].CreatedAt.Before(entries[j].CreatedAt)
	})

	evicted := 0
	for _, entry := range entries[:count-s.maxEntries] {
		if err := s.index.Delete(ctx, entry.Key); err != nil {
			return err
		}
		if err := os.Remove(entry.Path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove evicted artifact",
				"path", entry.Path, "error", err)
		}
		evicted++
		logger.Debug("evicted cache entry", "key", entry.Key,
			"age", time.Since(entry.CreatedAt))
	}

	s.evictions += int64(evicted)
	metrics.RecordCacheEviction(evicted)
	return nil
}

// Rehydrate scans the cache directory and indexes artifacts left by earlier
// runs, using file mtime for eviction order. Returns the number of entries
// recovered.
func (s *Store) Rehydrate(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read cache directory: %w", err)
	}

	recovered := 0
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), artifactExt) {
			continue
		}
		info, err := de.Info()
		if err != nil || info.Size() == 0 {
			continue
		}

		key := strings.TrimSuffix(de.Name(), artifactExt)
		entry := &Entry{
			Key:       key,
			Path:      filepath.Join(s.dir, de.Name()),
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
		}
		if err := s.index.Put(ctx, entry); err != nil {
			logger.Warn("failed to index rehydrated artifact",
				"key", key, "error", err)
			continue
		}
		recovered++
	}

	if err := s.evictLocked(ctx); err != nil {
		logger.Warn("cache eviction failed during rehydration", "error", err)
	}
	s.refreshGauge(ctx)

	logger.Info("speech cache rehydrated", "entries", recovered, "dir", s.dir)
	return recovered, nil
}

func (s *Store) refreshGauge(ctx context.Context) {
	if n, err := s.index.Len(ctx); err == nil {
		metrics.SetCacheEntries(n)
	}
}

// Stats is a point-in-time snapshot of cache activity.
type Stats struct {
	Entries       int
	TotalSize     int64
	Hits          int64
	Misses        int64
	Invalidations int64
	Evictions     int64
}

// Stats returns cache activity counters and current occupancy.
func (s *Store) Stats(ctx context.Context) Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		Hits:          s.hits,
		Misses:        s.misses,
		Invalidations: s.invalidations,
		Evictions:     s.evictions,
	}
	entries, err := s.index.All(ctx)
	if err != nil {
		return stats
	}
	stats.Entries = len(entries)
	for _, entry := range entries {
		stats.TotalSize += entry.Size
	}
	return stats
}

// Close releases the index.
func (s *Store) Close() error {
	return s.index.Close()
}

package artcache

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/whatsnowplaying/artcache/internal/errors"
	"github.com/whatsnowplaying/artcache/internal/observability/metrics"
)

// ErrBlobMissing is returned by Get when the key has no blob behind it,
// typically because capacity eviction reclaimed it. Callers repair the
// index via the strike mechanism rather than treating this as a failure.
var ErrBlobMissing = errors.NewStd("blob not in store")

type blobStat struct {
	size int64
	hits uint64
}

// BlobStore is a capacity-bounded disk store for artwork blobs, one file
// per opaque key. When the aggregate size exceeds the byte budget the
// least-frequently-used blobs are evicted silently; eviction is expected
// steady-state behavior, not an error. Hit counts live in memory and are
// rebuilt (as zero) from a directory scan on open, so blobs untouched
// since the last restart are evicted first.
type BlobStore struct {
	mu      sync.Mutex
	dir     string
	limit   int64
	size    int64
	blobs   map[string]*blobStat
	metrics *metrics.ArtworkCacheMetrics
	log     *slog.Logger
}

// NewBlobStore opens (or creates) a blob store rooted at dir with the
// given byte budget.
func NewBlobStore(dir string, limit int64, m *metrics.ArtworkCacheMetrics, log *slog.Logger) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, errors.New(err).
			Component("artcache").
			Category(errors.CategoryFileIO).
			Context("operation", "create-blob-directory").
			Context("path", dir).
			Build()
	}

	s := &BlobStore{
		dir:     dir,
		limit:   limit,
		blobs:   make(map[string]*blobStat),
		metrics: m,
		log:     log,
	}

	if err := s.scan(); err != nil {
		return nil, err
	}
	return s, nil
}

// scan rebuilds the in-memory index from the blob directory.
func (s *BlobStore) scan() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return errors.New(err).
			Component("artcache").
			Category(errors.CategoryFileIO).
			Context("operation", "scan-blob-directory").
			Context("path", s.dir).
			Build()
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		s.blobs[entry.Name()] = &blobStat{size: info.Size()}
		s.size += info.Size()
	}

	s.updateSizeMetric()
	return nil
}

// Put writes a blob under key and evicts least-frequently-used blobs if
// the store is over budget afterwards.
func (s *BlobStore) Put(key string, data []byte) error {
	if err := os.WriteFile(s.path(key), data, 0o600); err != nil {
		return errors.New(err).
			Component("artcache").
			Category(errors.CategoryFileIO).
			Context("operation", "write-blob").
			Context("cache_key", key).
			Build()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.blobs[key]; ok {
		s.size -= old.size
	}
	s.blobs[key] = &blobStat{size: int64(len(data))}
	s.size += int64(len(data))

	s.evictLocked(key)
	s.updateSizeMetric()
	return nil
}

// Get returns the blob stored under key, bumping its use count.
func (s *BlobStore) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobMissing
		}
		return nil, errors.New(err).
			Component("artcache").
			Category(errors.CategoryFileIO).
			Context("operation", "read-blob").
			Context("cache_key", key).
			Build()
	}

	s.mu.Lock()
	if stat, ok := s.blobs[key]; ok {
		stat.hits++
	} else {
		// Written by another handle; adopt it.
		s.blobs[key] = &blobStat{size: int64(len(data)), hits: 1}
		s.size += int64(len(data))
	}
	s.mu.Unlock()

	return data, nil
}

// Delete removes the blob under key, if present.
func (s *BlobStore) Delete(key string) error {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return errors.New(err).
			Component("artcache").
			Category(errors.CategoryFileIO).
			Context("operation", "delete-blob").
			Context("cache_key", key).
			Build()
	}

	s.mu.Lock()
	if stat, ok := s.blobs[key]; ok {
		s.size -= stat.size
		delete(s.blobs, key)
	}
	s.updateSizeMetric()
	s.mu.Unlock()
	return nil
}

// Clear removes every blob from the store.
func (s *BlobStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.blobs {
		if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
			return errors.New(err).
				Component("artcache").
				Category(errors.CategoryFileIO).
				Context("operation", "clear-blob-store").
				Context("cache_key", key).
				Build()
		}
		delete(s.blobs, key)
	}
	s.size = 0
	s.updateSizeMetric()
	return nil
}

// Close releases the store handle. The store keeps no open file handles
// between operations, so this only exists for lifecycle symmetry.
func (s *BlobStore) Close() error {
	return nil
}

// Size returns the aggregate size of all stored blobs in bytes.
func (s *BlobStore) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.size
}

// evictLocked drops least-frequently-used blobs until the store fits the
// byte budget again. The just-written key is spared unless it is the only
// blob left. Caller must hold s.mu.
func (s *BlobStore) evictLocked(justAdded string) {
	for s.size > s.limit && len(s.blobs) > 1 {
		victim := ""
		var victimHits uint64
		for key, stat := range s.blobs {
			if key == justAdded {
				continue
			}
			if victim == "" || stat.hits < victimHits {
				victim = key
				victimHits = stat.hits
			}
		}
		if victim == "" {
			return
		}

		if err := os.Remove(s.path(victim)); err != nil && !os.IsNotExist(err) {
			s.log.Warn("Failed to evict blob", "cache_key", victim, "error", err)
			return
		}
		s.size -= s.blobs[victim].size
		delete(s.blobs, victim)
		if s.metrics != nil {
			s.metrics.IncrementEvictions()
		}
		s.log.Debug("Evicted blob", "cache_key", victim, "hits", victimHits, "store_size", s.size)
	}
}

func (s *BlobStore) path(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *BlobStore) updateSizeMetric() {
	if s.metrics != nil {
		s.metrics.SetStoreSize(float64(s.size))
	}
}

// Package artcache implements the disk-backed artwork cache: a
// capacity-bounded blob store fronted by a durable index, fed by a
// bounded concurrent download pipeline.
package artcache

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/whatsnowplaying/artcache/internal/conf"
	"github.com/whatsnowplaying/artcache/internal/datastore"
	"github.com/whatsnowplaying/artcache/internal/logging"
	"github.com/whatsnowplaying/artcache/internal/observability/metrics"
)

const (
	// negativeTTL bounds how long a "no image available" answer is
	// memoized. Long enough to spare the catalog from overlay render
	// loops, short enough that freshly downloaded artwork shows up
	// within a few poll cycles.
	negativeTTL     = 30 * time.Second
	negativeCleanup = 5 * time.Minute
)

// Cache ties the blob store, the index, and the download pipeline together
// behind the consumer-facing interface.
type Cache struct {
	settings *conf.Settings
	index    datastore.Interface
	store    *BlobStore
	dl       *downloader
	negative *gocache.Cache
	metrics  *metrics.ArtworkCacheMetrics
	log      *slog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New creates the artwork cache under the configured cache directory. The
// blob store directory and the catalog must be creatable; that is the one
// condition that aborts startup. The index must already be open.
func New(settings *conf.Settings, index datastore.Interface, m *metrics.ArtworkCacheMetrics) (*Cache, error) {
	log := logging.ForService("artcache")

	dir, err := settings.DefaultCacheDir()
	if err != nil {
		return nil, err
	}

	store, err := NewBlobStore(filepath.Join(dir, "blobs"), settings.Cache.SizeLimit, m, log)
	if err != nil {
		return nil, err
	}

	c := &Cache{
		settings: settings,
		index:    index,
		store:    store,
		negative: gocache.New(negativeTTL, negativeCleanup),
		metrics:  m,
		log:      log,
	}
	c.dl = newDownloader(settings, index, store, m, log)
	return c, nil
}

// RandomImageFor returns a random cached image for the artist and image
// type, or ok=false when none is available. A missing blob behind an index
// row is repaired lazily: the row takes a strike (which may delete it) and
// another row is drawn, so capacity eviction in the store never surfaces
// as an error to the consumer.
func (c *Cache) RandomImageFor(artist, imageType string) (data []byte, ok bool) {
	negKey := negativeKey(artist, imageType)
	if _, found := c.negative.Get(negKey); found {
		if c.metrics != nil {
			c.metrics.IncrementCacheMisses()
		}
		return nil, false
	}

	for {
		entry, err := c.index.RandomResolved(artist, imageType)
		if err != nil {
			c.negative.SetDefault(negKey, true)
			if c.metrics != nil {
				c.metrics.IncrementCacheMisses()
			}
			return nil, false
		}

		cacheKey := *entry.CacheKey
		blob, err := c.store.Get(cacheKey)
		if err != nil {
			c.log.Debug("Cached artwork blob missing, striking entry",
				"artist", artist, "image_type", imageType, "cache_key", cacheKey)
			if c.metrics != nil {
				c.metrics.IncrementStrikes()
			}
			if serr := c.index.Strike(cacheKey); serr != nil {
				c.log.Debug("Strike failed", "cache_key", cacheKey, "error", serr)
			}
			continue
		}

		if uerr := c.index.Unstrike(cacheKey); uerr != nil {
			c.log.Debug("Unstrike failed", "cache_key", cacheKey, "error", uerr)
		}
		if c.metrics != nil {
			c.metrics.IncrementCacheHits()
		}
		return blob, true
	}
}

// Stop requests control loop shutdown by inserting the sentinel row, waits
// for the loop to drain, and closes the blob store. It is idempotent.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		c.log.Debug("Artwork cache stop requested")
		if err := c.index.UpsertPending(SentinelURL, SentinelURL, SentinelURL); err != nil {
			c.log.Debug("Failed to insert sentinel", "error", err)
		}
		c.wg.Wait()
		// The loop normally removes the sentinel itself; cover the case
		// where it had already exited (context cancellation).
		if err := c.index.DeleteByURL(SentinelURL); err != nil {
			c.log.Debug("Failed to remove sentinel", "error", err)
		}
		_ = c.store.Close()
	})
}

// Clear wipes the blob store and the index together. They hold weak
// references into each other, so re-initializing one without the other
// would leave dangling keys.
func (c *Cache) Clear() error {
	c.log.Info("Re-initializing artwork cache")
	if err := c.index.Clear(); err != nil {
		return err
	}
	if err := c.store.Clear(); err != nil {
		return err
	}
	c.negative.Flush()
	return nil
}

// Store exposes the underlying blob store.
func (c *Cache) Store() *BlobStore {
	return c.store
}

func negativeKey(artist, imageType string) string {
	return artist + "|" + imageType
}

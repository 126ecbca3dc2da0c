package artcache

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"golang.org/x/time/rate"

	"github.com/whatsnowplaying/artcache/internal/buildinfo"
	"github.com/whatsnowplaying/artcache/internal/conf"
	"github.com/whatsnowplaying/artcache/internal/datastore"
	"github.com/whatsnowplaying/artcache/internal/errors"
	"github.com/whatsnowplaying/artcache/internal/imaging"
	"github.com/whatsnowplaying/artcache/internal/observability/metrics"
)

// maxImageBytes caps a single downloaded payload. Artwork beyond this is
// not worth caching and is treated like any other bad payload.
const maxImageBytes = 32 << 20

// downloader fetches pending artwork entries with a bounded worker pool.
// Workers share no mutable state beyond the store and index, both of which
// are safe for concurrent use, so a failed download never affects its
// batch mates.
type downloader struct {
	index      datastore.Interface
	store      *BlobStore
	client     *http.Client
	limiter    *rate.Limiter
	maxWorkers int
	userAgent  string
	metrics    *metrics.ArtworkCacheMetrics
	log        *slog.Logger
}

func newDownloader(settings *conf.Settings, index datastore.Interface, store *BlobStore, m *metrics.ArtworkCacheMetrics, log *slog.Logger) *downloader {
	return &downloader{
		index:      index,
		store:      store,
		client:     &http.Client{Timeout: settings.Cache.FetchTimeout},
		limiter:    rate.NewLimiter(rate.Limit(settings.Cache.RateLimit), settings.Cache.MaxWorkers),
		maxWorkers: settings.Cache.MaxWorkers,
		userAgent:  buildUserAgent(),
		metrics:    m,
		log:        log,
	}
}

// buildUserAgent constructs the identifying user-agent header for artwork
// provider requests.
func buildUserAgent() string {
	return fmt.Sprintf("nowplaying-artcache/%s (+https://whatsnowplaying.github.io/)", buildinfo.Version)
}

// ProcessBatch downloads every entry in the batch, bounded by the worker
// count. It returns once all dispatched downloads have finished.
func (d *downloader) ProcessBatch(ctx context.Context, batch []datastore.ArtworkEntry) {
	p := pool.New().WithMaxGoroutines(d.maxWorkers)
	for _, entry := range batch {
		p.Go(func() {
			d.fetchOne(ctx, &entry)
		})
	}
	p.Wait()
}

// fetchOne downloads, normalizes, and commits a single pending entry.
// Failure policy, in order:
//   - transport errors (timeout, connection refused): the URL is treated
//     as permanently bad and its row is deleted; re-discovery by an
//     upstream provider is the only retry path
//   - non-success status: logged and skipped, the row stays pending and a
//     later poll may re-attempt it
//   - undecodable payload: permanently bad, row deleted
func (d *downloader) fetchOne(ctx context.Context, entry *datastore.ArtworkEntry) {
	if err := d.limiter.Wait(ctx); err != nil {
		return
	}

	d.log.Debug("Downloading artwork", "url", entry.URL, "artist", entry.Artist, "image_type", entry.ImageType)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, entry.URL, http.NoBody)
	if err != nil {
		d.discard(entry, "invalid URL", err)
		return
	}
	req.Header.Set("User-Agent", d.userAgent)

	resp, err := d.client.Do(req)
	if err != nil {
		d.discard(entry, "download failed", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		d.log.Debug("Artwork download not successful, leaving pending",
			"url", entry.URL, "status_code", resp.StatusCode)
		return
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		d.discard(entry, "read failed", err)
		return
	}

	if d.metrics != nil {
		d.metrics.ObserveDownloadDuration(time.Since(start).Seconds())
	}

	data, err := imaging.Normalize(body)
	if err != nil {
		d.discard(entry, "not a usable image", err)
		return
	}

	// Cache keys are opaque and never derived from the URL, so a future
	// re-download of the same URL cannot collide with an evicted key.
	cacheKey := uuid.NewString()
	if err := d.store.Put(cacheKey, data); err != nil {
		d.log.Error("Failed to store artwork blob", "url", entry.URL, "error", err)
		return
	}

	if err := d.index.Resolve(entry.Artist, entry.URL, entry.ImageType, cacheKey); err != nil {
		// Orphaned blob; capacity eviction reclaims it eventually.
		d.log.Error("Failed to resolve artwork entry", "url", entry.URL, "error", err)
		return
	}

	if d.metrics != nil {
		d.metrics.IncrementImageDownloads()
	}
	d.log.Debug("Artwork cached", "url", entry.URL, "cache_key", cacheKey, "bytes", len(data))
}

// discard drops a permanently bad URL from the index.
func (d *downloader) discard(entry *datastore.ArtworkEntry, reason string, err error) {
	if d.metrics != nil {
		d.metrics.IncrementDownloadErrors()
	}
	ferr := errors.New(err).
		Component("artcache").
		Category(errors.CategoryImageFetch).
		Context("url", entry.URL).
		Context("image_type", entry.ImageType).
		Build()
	d.log.Debug("Discarding artwork URL", "reason", reason, "error", ferr)
	if derr := d.index.DeleteByURL(entry.URL); derr != nil {
		d.log.Debug("Failed to delete artwork entry", "url", entry.URL, "error", derr)
	}
}

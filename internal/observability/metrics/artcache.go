// Package metrics provides custom Prometheus metrics for the artwork cache components.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// ArtworkCacheMetrics contains all Prometheus metrics related to artwork cache operations.
type ArtworkCacheMetrics struct {
	StoreSize        prometheus.Gauge
	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	ImageDownloads   prometheus.Counter
	DownloadErrors   prometheus.Counter
	DownloadDuration prometheus.Histogram
	Evictions        prometheus.Counter
	Strikes          prometheus.Counter
	registry         *prometheus.Registry
}

// NewArtworkCacheMetrics creates a new instance of ArtworkCacheMetrics.
// It requires a Prometheus registry to register the metrics.
// It returns an error if metric registration fails.
func NewArtworkCacheMetrics(registry *prometheus.Registry) (*ArtworkCacheMetrics, error) {
	m := &ArtworkCacheMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register ArtworkCache metrics: %w", err)
	}
	return m, nil
}

// initMetrics initializes all metrics for ArtworkCacheMetrics.
func (m *ArtworkCacheMetrics) initMetrics() {
	m.StoreSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "artcache_store_size_bytes",
		Help: "Current size of the artwork blob store in bytes.",
	})

	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "artcache_hits_total",
		Help: "Total number of artwork cache hits.",
	})

	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "artcache_misses_total",
		Help: "Total number of artwork cache misses.",
	})

	m.ImageDownloads = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "artcache_downloads_total",
		Help: "Total number of artwork downloads.",
	})

	m.DownloadErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "artcache_download_errors_total",
		Help: "Total number of artwork download errors.",
	})

	m.DownloadDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "artcache_download_duration_seconds",
		Help:    "Duration of artwork downloads in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	m.Evictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "artcache_evictions_total",
		Help: "Total number of blobs evicted from the artwork store.",
	})

	m.Strikes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "artcache_strikes_total",
		Help: "Total number of strikes recorded against cached artwork entries.",
	})
}

// SetStoreSize updates the current size of the blob store in bytes.
func (m *ArtworkCacheMetrics) SetStoreSize(sizeBytes float64) {
	m.StoreSize.Set(sizeBytes)
}

// IncrementCacheHits increases the cache hit counter by one.
func (m *ArtworkCacheMetrics) IncrementCacheHits() {
	m.CacheHits.Inc()
}

// IncrementCacheMisses increases the cache miss counter by one.
func (m *ArtworkCacheMetrics) IncrementCacheMisses() {
	m.CacheMisses.Inc()
}

// IncrementImageDownloads increases the image download counter by one.
func (m *ArtworkCacheMetrics) IncrementImageDownloads() {
	m.ImageDownloads.Inc()
}

// IncrementDownloadErrors increases the download error counter by one.
func (m *ArtworkCacheMetrics) IncrementDownloadErrors() {
	m.DownloadErrors.Inc()
}

// ObserveDownloadDuration records the duration of an artwork download.
// The duration should be provided in seconds.
func (m *ArtworkCacheMetrics) ObserveDownloadDuration(durationSeconds float64) {
	m.DownloadDuration.Observe(durationSeconds)
}

// IncrementEvictions increases the eviction counter by one.
func (m *ArtworkCacheMetrics) IncrementEvictions() {
	m.Evictions.Inc()
}

// IncrementStrikes increases the strike counter by one.
func (m *ArtworkCacheMetrics) IncrementStrikes() {
	m.Strikes.Inc()
}

// Collect implements the prometheus.Collector interface.
func (m *ArtworkCacheMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.StoreSize
	ch <- m.CacheHits
	ch <- m.CacheMisses
	ch <- m.ImageDownloads
	ch <- m.DownloadErrors
	ch <- m.DownloadDuration
	ch <- m.Evictions
	ch <- m.Strikes
}

// Describe implements the prometheus.Collector interface.
func (m *ArtworkCacheMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.StoreSize.Desc()
	ch <- m.CacheHits.Desc()
	ch <- m.CacheMisses.Desc()
	ch <- m.ImageDownloads.Desc()
	ch <- m.DownloadErrors.Desc()
	ch <- m.DownloadDuration.Desc()
	ch <- m.Evictions.Desc()
	ch <- m.Strikes.Desc()
}

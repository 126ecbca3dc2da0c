// Package observability provides Prometheus metrics functionality for monitoring the artwork cache.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/whatsnowplaying/artcache/internal/observability/metrics"
)

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry     *prometheus.Registry
	ArtworkCache *metrics.ArtworkCacheMetrics
}

// NewMetrics creates a new instance of Metrics, initializing all metric collectors.
// It returns an error if any metric collector fails to initialize.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	artworkCacheMetrics, err := metrics.NewArtworkCacheMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create ArtworkCache metrics: %w", err)
	}

	return &Metrics{
		registry:     registry,
		ArtworkCache: artworkCacheMetrics,
	}, nil
}

// GetRegistry returns the Prometheus registry holding all collectors.
func (m *Metrics) GetRegistry() *prometheus.Registry {
	return m.registry
}

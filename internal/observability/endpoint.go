package observability

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/whatsnowplaying/artcache/internal/conf"
	"github.com/whatsnowplaying/artcache/internal/errors"
	"github.com/whatsnowplaying/artcache/internal/logging"
)

// Endpoint serves the Prometheus exposition format over HTTP.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
}

// NewEndpoint creates a new metrics endpoint from the application settings.
// It returns an error if the metrics listener is not enabled.
func NewEndpoint(settings *conf.Settings, metrics *Metrics) (*Endpoint, error) {
	if !settings.Metrics.Enabled {
		return nil, errors.Newf("metrics endpoint not enabled in settings").
			Component("observability").
			Category(errors.CategoryConfiguration).
			Build()
	}

	return &Endpoint{
		listenAddress: settings.Metrics.Listen,
		metrics:       metrics,
	}, nil
}

// Start runs the HTTP server for the metrics endpoint until an error occurs.
// It is intended to be run from a goroutine.
func (e *Endpoint) Start() {
	log := logging.ForService("observability")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(e.metrics.GetRegistry(), promhttp.HandlerOpts{}))

	e.server = &http.Server{
		Addr:         e.listenAddress,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info("Starting metrics endpoint", "listen", e.listenAddress)
	if err := e.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("Metrics endpoint failed", "error", err)
	}
}

// Stop shuts the metrics endpoint down gracefully.
func (e *Endpoint) Stop(ctx context.Context) error {
	if e.server == nil {
		return nil
	}
	return e.server.Shutdown(ctx)
}

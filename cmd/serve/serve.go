// Package serve implements the command running the cache control loop.
package serve

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/whatsnowplaying/artcache/internal/artcache"
	"github.com/whatsnowplaying/artcache/internal/conf"
	"github.com/whatsnowplaying/artcache/internal/datastore"
	"github.com/whatsnowplaying/artcache/internal/logging"
	"github.com/whatsnowplaying/artcache/internal/observability"
)

// Command creates the serve command, which runs the download control loop
// until the process is signalled to stop.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the artwork download loop",
		Long:  "Poll the catalog for pending artwork, download and normalize images, and serve them until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func runServe(settings *conf.Settings) error {
	log := logging.ForService("serve")

	if settings.Main.Log.Enabled {
		fileLogger, closeLogger, err := logging.NewFileLogger(settings.Main.Log.Path, "serve", slog.LevelInfo)
		if err != nil {
			log.Warn("File logging disabled", "path", settings.Main.Log.Path, "error", err)
		} else {
			log = fileLogger
			defer func() {
				if err := closeLogger(); err != nil {
					logging.Error("Failed to close log file", "error", err)
				}
			}()
		}
	}

	metrics, err := observability.NewMetrics()
	if err != nil {
		return fmt.Errorf("failed to set up metrics: %w", err)
	}

	index, err := datastore.New(settings)
	if err != nil {
		return fmt.Errorf("failed to set up catalog: %w", err)
	}
	if err := index.Open(); err != nil {
		return fmt.Errorf("failed to open catalog: %w", err)
	}
	defer func() {
		if err := index.Close(); err != nil {
			log.Error("Failed to close catalog", "error", err)
		}
	}()

	cache, err := artcache.New(settings, index, metrics.ArtworkCache)
	if err != nil {
		return fmt.Errorf("failed to set up cache: %w", err)
	}

	var endpoint *observability.Endpoint
	if settings.Metrics.Enabled {
		endpoint, err = observability.NewEndpoint(settings, metrics)
		if err != nil {
			return fmt.Errorf("failed to set up metrics endpoint: %w", err)
		}
		go endpoint.Start()
	}

	cache.Start(context.Background())
	log.Info("Artwork cache started", "cachedir", settings.Cache.Dir, "workers", settings.Cache.MaxWorkers)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("Shutting down", "signal", sig.String())

	cache.Stop()

	if endpoint != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := endpoint.Stop(ctx); err != nil {
			log.Error("Failed to stop metrics endpoint", "error", err)
		}
	}

	return nil
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().IntVar(&settings.Cache.MaxWorkers, "maxworkers", viper.GetInt("cache.maxworkers"), "Number of concurrent image downloads")
	cmd.Flags().DurationVar(&settings.Cache.PollInterval, "pollinterval", viper.GetDuration("cache.pollinterval"), "Catalog poll interval")
	cmd.Flags().Int64Var(&settings.Cache.SizeLimit, "sizelimit", viper.GetInt64("cache.sizelimit"), "Image store size limit in bytes")
	cmd.Flags().BoolVar(&settings.Metrics.Enabled, "metrics", viper.GetBool("metrics.enabled"), "Enable Prometheus metrics endpoint")
	cmd.Flags().StringVar(&settings.Metrics.Listen, "listen", viper.GetString("metrics.listen"), "Listen address and port of the metrics endpoint")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}

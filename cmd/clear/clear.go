// Package clear implements the command wiping the cache for a fresh start.
package clear

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/whatsnowplaying/artcache/internal/artcache"
	"github.com/whatsnowplaying/artcache/internal/conf"
	"github.com/whatsnowplaying/artcache/internal/datastore"
	"github.com/whatsnowplaying/artcache/internal/logging"
	"github.com/whatsnowplaying/artcache/internal/observability"
)

// Command creates the clear command, which drops every cached image and
// catalog row.
func Command(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Wipe the image store and its catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runClear(settings)
		},
	}
}

func runClear(settings *conf.Settings) error {
	log := logging.ForService("clear")

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

	if err := cache.Clear(); err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	log.Info("Cache cleared", "cachedir", settings.Cache.Dir)
	return nil
}

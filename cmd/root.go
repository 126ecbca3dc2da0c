// Package cmd assembles the command line interface.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/whatsnowplaying/artcache/cmd/clear"
	"github.com/whatsnowplaying/artcache/cmd/serve"
	"github.com/whatsnowplaying/artcache/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "artcache",
		Short: "Artist artwork cache for whatsnowplaying",
	}

	// Set up the global flags for the root command.
	if err := setupFlags(rootCmd, settings); err != nil {
		panic(err)
	}

	serveCmd := serve.Command(settings)
	clearCmd := clear.Command(settings)

	subcommands := []*cobra.Command{
		serveCmd,
		clearCmd,
	}

	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags defines flags that are global to the command line interface
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) error {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", viper.GetBool("debug"), "Enable debug output")
	rootCmd.PersistentFlags().StringVar(&settings.Cache.Dir, "cachedir", viper.GetString("cache.dir"), "Directory holding the image store and its catalog")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}

	return nil
}

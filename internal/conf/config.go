// Package conf handles the configuration of the artwork cache
package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/whatsnowplaying/artcache/internal/errors"
)

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled    bool   // true to enable this log
	Path       string // path to log file
	MaxSize    int    // maximum size in megabytes before rotation
	MaxBackups int    // maximum number of rotated files to keep
	MaxAge     int    // maximum age in days to keep a rotated file
}

// CacheSettings contains the artwork cache subsystem settings
type CacheSettings struct {
	Dir          string        // cache directory, empty for platform default
	SizeLimit    int64         // blob store byte budget
	MaxWorkers   int           // concurrent download workers
	FetchTimeout time.Duration // per-download HTTP timeout
	PollInterval time.Duration // control loop poll interval
	BatchSize    int           // pending rows fetched per poll
	RateLimit    float64       // downloads per second across all workers
}

// ArtistExtrasSettings contains per-image-type download caps
type ArtistExtrasSettings struct {
	Logos      int
	Banners    int
	Thumbnails int
	Fanart     int
}

// MetricsSettings contains the Prometheus exposition settings
type MetricsSettings struct {
	Enabled bool
	Listen  string // host:port for the metrics listener
}

// Settings contains all application settings
type Settings struct {
	Debug bool // true to enable debug logging

	Main struct {
		Name string    // name of the node/instance
		Log  LogConfig // log file settings
	}

	Cache        CacheSettings
	ArtistExtras ArtistExtrasSettings
	Metrics      MetricsSettings

	Version string `mapstructure:"-"` // build version, set at runtime
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration into the global settings instance
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	if err := viper.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal-settings").
			Build()
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with defaults and reads the configuration file
func initViper() error {
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return err
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	setDefaultConfig()

	// A missing config file is not an error, defaults apply
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return errors.New(err).
				Component("conf").
				Category(errors.CategoryConfiguration).
				Context("operation", "read-config-file").
				Build()
		}
	}

	return nil
}

// Setting returns the global settings instance, loading it on first use
func Setting() *Settings {
	settingsMutex.RLock()
	if settingsInstance != nil {
		defer settingsMutex.RUnlock()
		return settingsInstance
	}
	settingsMutex.RUnlock()

	once.Do(func() {
		if _, err := Load(); err != nil {
			panic(fmt.Sprintf("error loading settings: %v", err))
		}
	})

	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// ValidateSettings checks settings for values the subsystem cannot run with
func ValidateSettings(settings *Settings) error {
	switch {
	case settings.Cache.MaxWorkers < 1:
		return validationError("cache.maxworkers must be at least 1", "maxworkers", settings.Cache.MaxWorkers)
	case settings.Cache.SizeLimit <= 0:
		return validationError("cache.sizelimit must be positive", "sizelimit", settings.Cache.SizeLimit)
	case settings.Cache.BatchSize < 1:
		return validationError("cache.batchsize must be at least 1", "batchsize", settings.Cache.BatchSize)
	case settings.Cache.PollInterval <= 0:
		return validationError("cache.pollinterval must be positive", "pollinterval", settings.Cache.PollInterval)
	case settings.Cache.FetchTimeout <= 0:
		return validationError("cache.fetchtimeout must be positive", "fetchtimeout", settings.Cache.FetchTimeout)
	}

	for name, cap := range map[string]int{
		"logos":      settings.ArtistExtras.Logos,
		"banners":    settings.ArtistExtras.Banners,
		"thumbnails": settings.ArtistExtras.Thumbnails,
		"fanart":     settings.ArtistExtras.Fanart,
	} {
		if cap < 0 {
			return validationError("artistextras caps must not be negative", name, cap)
		}
	}

	return nil
}

func validationError(msg, key string, value any) error {
	return errors.Newf("%s", msg).
		Component("conf").
		Category(errors.CategoryValidation).
		Context(key, value).
		Build()
}

// GetDefaultConfigPaths returns the default configuration paths for the current operating system
func GetDefaultConfigPaths() ([]string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "get-home-directory").
			Build()
	}

	var configPaths []string
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			appData = filepath.Join(homeDir, "AppData", "Roaming")
		}
		configPaths = []string{filepath.Join(appData, "artcache"), "."}
	default:
		configPaths = []string{
			filepath.Join(homeDir, ".config", "artcache"),
			homeDir,
			".",
		}
	}

	return configPaths, nil
}

// DefaultCacheDir resolves the cache directory, falling back to the
// platform user-cache location when the setting is empty.
func (s *Settings) DefaultCacheDir() (string, error) {
	if s.Cache.Dir != "" {
		return s.Cache.Dir, nil
	}

	base, err := os.UserCacheDir()
	if err != nil {
		return "", errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "get-user-cache-dir").
			Build()
	}
	return filepath.Join(base, "nowplaying", "artcache"), nil
}

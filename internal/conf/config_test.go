package conf

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func defaultSettings(t *testing.T) *Settings {
	t.Helper()
	viper.Reset()
	setDefaultConfig()

	settings := &Settings{}
	require.NoError(t, viper.Unmarshal(settings))
	return settings
}

func TestDefaults(t *testing.T) {
	settings := defaultSettings(t)

	assert.Equal(t, 5, settings.Cache.MaxWorkers)
	assert.Equal(t, 5*time.Second, settings.Cache.FetchTimeout)
	assert.Equal(t, time.Second, settings.Cache.PollInterval)
	assert.Equal(t, 10, settings.Cache.BatchSize)
	assert.Equal(t, int64(1)<<30, settings.Cache.SizeLimit)

	assert.Equal(t, 3, settings.ArtistExtras.Logos)
	assert.Equal(t, 3, settings.ArtistExtras.Banners)
	assert.Equal(t, 3, settings.ArtistExtras.Thumbnails)
	assert.Equal(t, 20, settings.ArtistExtras.Fanart)

	assert.NoError(t, ValidateSettings(settings))
}

func TestValidateSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr bool
	}{
		{"valid defaults", func(s *Settings) {}, false},
		{"zero workers", func(s *Settings) { s.Cache.MaxWorkers = 0 }, true},
		{"zero size limit", func(s *Settings) { s.Cache.SizeLimit = 0 }, true},
		{"zero batch size", func(s *Settings) { s.Cache.BatchSize = 0 }, true},
		{"zero poll interval", func(s *Settings) { s.Cache.PollInterval = 0 }, true},
		{"zero fetch timeout", func(s *Settings) { s.Cache.FetchTimeout = 0 }, true},
		{"negative fanart cap", func(s *Settings) { s.ArtistExtras.Fanart = -1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := defaultSettings(t)
			tt.mutate(settings)

			err := ValidateSettings(settings)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDefaultCacheDir(t *testing.T) {
	settings := defaultSettings(t)

	settings.Cache.Dir = "/tmp/explicit"
	dir, err := settings.DefaultCacheDir()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/explicit", dir)

	settings.Cache.Dir = ""
	dir, err = settings.DefaultCacheDir()
	require.NoError(t, err)
	assert.Contains(t, dir, "artcache")
}

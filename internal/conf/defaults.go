// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "nowplaying-artcache")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "artcache.log")
	viper.SetDefault("main.log.maxsize", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxage", 28)

	viper.SetDefault("cache.dir", "")
	viper.SetDefault("cache.sizelimit", int64(1)<<30)
	viper.SetDefault("cache.maxworkers", 5)
	viper.SetDefault("cache.fetchtimeout", 5*time.Second)
	viper.SetDefault("cache.pollinterval", 1*time.Second)
	viper.SetDefault("cache.batchsize", 10)
	viper.SetDefault("cache.ratelimit", 10.0)

	viper.SetDefault("artistextras.logos", 3)
	viper.SetDefault("artistextras.banners", 3)
	viper.SetDefault("artistextras.thumbnails", 3)
	viper.SetDefault("artistextras.fanart", 20)

	viper.SetDefault("metrics.enabled", false)
	viper.SetDefault("metrics.listen", "localhost:9090")
}

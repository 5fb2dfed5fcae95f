package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	BackendURL  string `mapstructure:"BACKEND_URL"`
	SocketURL   string `mapstructure:"SOCKET_URL"`
	AuthToken   string `mapstructure:"AUTH_TOKEN"`
	FrontendURL string `mapstructure:"FRONTEND_URL"`
	CachePath   string `mapstructure:"CACHE_PATH"`

	// Sync tunables. The dedup bucket/tolerance pair is a heuristic carried
	// over from the original client: the durable copy and the transport echo
	// of one logical message land in the same minute bucket and within a few
	// seconds of each other. Under clock skew or rapid identical sends it can
	// over- or under-merge, which is why it is configurable rather than
	// hard-coded.
	StoreTimeoutSeconds   int `mapstructure:"STORE_TIMEOUT_SECONDS"`
	ReconnectDelaySeconds int `mapstructure:"RECONNECT_DELAY_SECONDS"`
	ReconnectMaxAttempts  int `mapstructure:"RECONNECT_MAX_ATTEMPTS"`
	TypingQuietSeconds    int `mapstructure:"TYPING_QUIET_SECONDS"`
	DedupBucketSeconds    int `mapstructure:"DEDUP_BUCKET_SECONDS"`
	DedupToleranceSeconds int `mapstructure:"DEDUP_TOLERANCE_SECONDS"`
	MarkReadDelayMillis   int `mapstructure:"MARK_READ_DELAY_MILLIS"`
}

var AppConfig *Config

func Load() {
	viper.SetConfigFile(".env")
	viper.AutomaticEnv()

	viper.SetDefault("PORT", "8090")
	viper.SetDefault("BACKEND_URL", "http://localhost:5000")
	viper.SetDefault("SOCKET_URL", "ws://localhost:5000/ws")
	viper.SetDefault("FRONTEND_URL", "http://localhost:5173")
	viper.SetDefault("CACHE_PATH", "horizon-sync.db")
	viper.SetDefault("STORE_TIMEOUT_SECONDS", 10)
	viper.SetDefault("RECONNECT_DELAY_SECONDS", 2)
	viper.SetDefault("RECONNECT_MAX_ATTEMPTS", 3)
	viper.SetDefault("TYPING_QUIET_SECONDS", 3)
	viper.SetDefault("DEDUP_BUCKET_SECONDS", 60)
	viper.SetDefault("DEDUP_TOLERANCE_SECONDS", 5)
	viper.SetDefault("MARK_READ_DELAY_MILLIS", 1000)

	if err := viper.ReadInConfig(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	if err := viper.Unmarshal(&AppConfig); err != nil {
		log.Fatalf("Unable to decode config: %v", err)
	}
}

func (c *Config) StoreTimeout() time.Duration {
	return time.Duration(c.StoreTimeoutSeconds) * time.Second
}

func (c *Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelaySeconds) * time.Second
}

func (c *Config) TypingQuiet() time.Duration {
	return time.Duration(c.TypingQuietSeconds) * time.Second
}

func (c *Config) DedupBucket() time.Duration {
	return time.Duration(c.DedupBucketSeconds) * time.Second
}

func (c *Config) DedupTolerance() time.Duration {
	return time.Duration(c.DedupToleranceSeconds) * time.Second
}

func (c *Config) MarkReadDelay() time.Duration {
	return time.Duration(c.MarkReadDelayMillis) * time.Millisecond
}

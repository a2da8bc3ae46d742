package config

import (
	"runtime"
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server Server `mapstructure:"server"`
	Cache  Cache  `mapstructure:"cache"`
	Render Render `mapstructure:"render"`
	Token  Token  `mapstructure:"token"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort      string `mapstructure:"http_port"`       // HTTP port to listen on
	StaticURLPath string `mapstructure:"static_url_path"` // public mount of the static root
	AsyncURLPath  string `mapstructure:"async_url_path"`  // mount of the async rendition endpoint
}

// Cache holds the rendition cache layout and eviction policy.
type Cache struct {
	Root          string        `mapstructure:"root"`           // static folder the cache lives under
	Subdir        string        `mapstructure:"subdir"`         // rendition subdirectory within the root
	MaxAge        time.Duration `mapstructure:"max_age"`        // idle age before a rendition expires
	SweepInterval time.Duration `mapstructure:"sweep_interval"` // how often the janitor runs
}

// Render holds worker-pool and delivery-protocol tuning.
type Render struct {
	Workers       int           `mapstructure:"workers"`        // render pool size
	DefaultFilter string        `mapstructure:"default_filter"` // resample filter when the spec names none
	RetryCeiling  int           `mapstructure:"retry_ceiling"`  // async polls before the placeholder
	PollDelay     time.Duration `mapstructure:"poll_delay"`     // server-side pause per async redirect
}

// Token holds the signing secret for pending-rendition tokens.
type Token struct {
	Secret string `mapstructure:"secret"`
}

// mustBindEnv binds critical environment variables to Viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv() {
	bindings := map[string]string{
		"server.http_port": "HTTP_PORT",
		"cache.root":       "CACHE_ROOT",
		"token.secret":     "TOKEN_SECRET",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

func setDefaults() {
	viper.SetDefault("server.http_port", ":8080")
	viper.SetDefault("server.static_url_path", "/static")
	viper.SetDefault("server.async_url_path", "/_async")
	viper.SetDefault("cache.subdir", "_img")
	viper.SetDefault("cache.max_age", 30*24*time.Hour)
	viper.SetDefault("cache.sweep_interval", time.Hour)
	viper.SetDefault("render.workers", runtime.NumCPU())
	viper.SetDefault("render.default_filter", "lanczos")
	viper.SetDefault("render.retry_ceiling", 10)
	viper.SetDefault("render.poll_delay", 250*time.Millisecond)
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration file cannot be loaded or unmarshaled.
func MustLoad(path string) *Config {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to read config")
	}

	mustBindEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		zlog.Logger.Panic().Err(err).Msgf("failed to unmarshal config: %v", err)
	}

	if cfg.Token.Secret == "" {
		zlog.Logger.Panic().Msg("token.secret is required")
	}

	return &cfg
}

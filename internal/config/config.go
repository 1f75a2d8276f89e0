package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Auth    AuthConfig    `mapstructure:"auth"`
	Feed    FeedConfig    `mapstructure:"feed"`
	Serve   ServeConfig   `mapstructure:"serve"`
	History HistoryConfig `mapstructure:"history"`
	Publish PublishConfig `mapstructure:"publish"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type AuthConfig struct {
	AuthHost     string `mapstructure:"auth_host"`
	APIHost      string `mapstructure:"api_host"`
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RefreshToken string `mapstructure:"refresh_token"`
	TokenCache   string `mapstructure:"token_cache"`
	TimeoutSec   int    `mapstructure:"timeout_sec"`
}

type FeedConfig struct {
	KeepaliveSec   int `mapstructure:"keepalive_sec"`
	AuthTimeoutSec int `mapstructure:"auth_timeout_sec"`
	WindowSec      int `mapstructure:"window_sec"`
	SpotTimeoutSec int `mapstructure:"spot_timeout_sec"`
	StrikesAbove   int `mapstructure:"strikes_above"`
	StrikesBelow   int `mapstructure:"strikes_below"`
}

type ServeConfig struct {
	Listen         string   `mapstructure:"listen"`
	IntervalSec    int      `mapstructure:"interval_sec"`
	Workers        int      `mapstructure:"workers"`
	Underlyings    []string `mapstructure:"underlyings"`
	Timezone       string   `mapstructure:"timezone"`
	MarketDaysOnly bool     `mapstructure:"market_days_only"`
}

type HistoryConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
}

type PublishConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	URL           string `mapstructure:"url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

type LoggingConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
	Level     string `mapstructure:"level"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("auth.auth_host", "https://api.tastytrade.com")
	v.SetDefault("auth.api_host", "https://api.tastyworks.com")
	v.SetDefault("auth.token_cache", "tokens.json")
	v.SetDefault("auth.timeout_sec", 10)
	v.SetDefault("feed.keepalive_sec", 60)
	v.SetDefault("feed.auth_timeout_sec", 10)
	v.SetDefault("feed.window_sec", 15)
	v.SetDefault("feed.spot_timeout_sec", 5)
	v.SetDefault("feed.strikes_above", 25)
	v.SetDefault("feed.strikes_below", 25)
	v.SetDefault("serve.listen", ":8080")
	v.SetDefault("serve.interval_sec", 300)
	v.SetDefault("serve.workers", 2)
	v.SetDefault("serve.underlyings", []string{"SPX"})
	v.SetDefault("serve.timezone", "America/New_York")
	v.SetDefault("serve.market_days_only", true)
	v.SetDefault("history.enabled", true)
	v.SetDefault("history.directory", "history")
	v.SetDefault("publish.enabled", false)
	v.SetDefault("publish.subject_prefix", "gex")
	v.SetDefault("logging.enabled", true)
	v.SetDefault("logging.directory", "logs")
	v.SetDefault("logging.level", "info")

	// Environment variable support
	v.SetEnvPrefix("GEXSTREAM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Explicitly bind credential keys to env vars
	_ = v.BindEnv("auth.client_id", "GEXSTREAM_CLIENT_ID")
	_ = v.BindEnv("auth.client_secret", "GEXSTREAM_CLIENT_SECRET")
	_ = v.BindEnv("auth.refresh_token", "GEXSTREAM_REFRESH_TOKEN")

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("default")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Auth.ClientID == "" {
		return fmt.Errorf("auth client_id is required (set GEXSTREAM_CLIENT_ID env var)")
	}
	if c.Auth.ClientSecret == "" {
		return fmt.Errorf("auth client_secret is required (set GEXSTREAM_CLIENT_SECRET env var)")
	}
	if c.Auth.RefreshToken == "" {
		return fmt.Errorf("auth refresh_token is required (set GEXSTREAM_REFRESH_TOKEN env var)")
	}
	if c.Feed.WindowSec < 1 {
		return fmt.Errorf("feed window_sec must be >= 1")
	}
	if c.Serve.Workers < 1 {
		return fmt.Errorf("serve workers must be >= 1")
	}
	return nil
}

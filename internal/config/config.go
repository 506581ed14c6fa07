package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration
type Config struct {
	Version  int            `toml:"version"`
	API      APIConfig      `toml:"api"`
	Pipeline PipelineConfig `toml:"pipeline"`
	Cache    CacheConfig    `toml:"cache"`
	Watch    WatchConfig    `toml:"watch"`
}

// APIConfig configures the scoring backend
type APIConfig struct {
	BaseURL        string  `toml:"base_url"`
	APIKey         string  `toml:"api_key"`
	Model          string  `toml:"model"`
	Temperature    float32 `toml:"temperature"`
	TopP           float32 `toml:"top_p"`
	MaxTokens      int     `toml:"max_tokens"`
	Streaming      bool    `toml:"streaming"`
	TimeoutSeconds int     `toml:"timeout_seconds"`
}

// PipelineConfig configures the rating pipeline
type PipelineConfig struct {
	MaxRetries      int    `toml:"max_retries"`
	CallSpacingMs   int    `toml:"call_spacing_ms"`
	SettleDelayMs   int    `toml:"settle_delay_ms"`
	FilterDelayMs   int    `toml:"filter_delay_ms"`
	MediaRetryMs    int    `toml:"media_retry_ms"`
	MaxContextDepth int    `toml:"max_context_depth"`
	Instructions    string `toml:"instructions"`
}

// CacheConfig configures the rating cache persistence
type CacheConfig struct {
	DebounceMs int    `toml:"debounce_ms"`
	DBPath     string `toml:"db_path"` // empty = <data dir>/ratings.db
}

// WatchConfig configures the live feed watcher
type WatchConfig struct {
	Enabled         bool   `toml:"enabled"`
	FeedURL         string `toml:"feed_url"`
	PollIntervalSec int    `toml:"poll_interval_sec"`
	Headless        bool   `toml:"headless"`
	CookiePath      string `toml:"cookie_path"` // empty = <config dir>/cookies.json
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		Version: 1,
		API: APIConfig{
			BaseURL:        "https://openrouter.ai/api/v1",
			Model:          "openai/gpt-4.1-nano",
			Temperature:    0.5,
			TopP:           0.9,
			MaxTokens:      1200,
			Streaming:      true,
			TimeoutSeconds: 120,
		},
		Pipeline: PipelineConfig{
			MaxRetries:      3,
			CallSpacingMs:   500,
			SettleDelayMs:   600,
			FilterDelayMs:   250,
			MediaRetryMs:    50,
			MaxContextDepth: 20,
		},
		Cache: CacheConfig{
			DebounceMs: 1500,
		},
		Watch: WatchConfig{
			Enabled:         true,
			FeedURL:         "https://x.com/home",
			PollIntervalSec: 5,
			Headless:        true,
		},
	}
}

// ConfigDir returns the platform-appropriate config directory
func ConfigDir() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "tweetfilter"), nil
}

// ConfigPath returns the full path to the config file
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the directory used for persistent pipeline data
func DataDir() (string, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(cacheDir, "tweetfilter"), nil
}

// DBPath returns the configured rating cache database path, falling
// back to the default location under DataDir.
func (c *Config) DBPath() (string, error) {
	if c.Cache.DBPath != "" {
		return c.Cache.DBPath, nil
	}
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "ratings.db"), nil
}

// CookiePath returns the configured session cookie file path, falling
// back to the default location under ConfigDir.
func (c *Config) CookiePath() (string, error) {
	if c.Watch.CookiePath != "" {
		return c.Watch.CookiePath, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cookies.json"), nil
}

// Load reads config from disk
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Save writes config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}

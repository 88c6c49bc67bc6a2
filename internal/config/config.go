// Package config loads the bot configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/latoulicious/cozycat/pkg/database"
	"github.com/latoulicious/cozycat/pkg/pipeline"
)

var (
	ErrDiscordTokenNotSet = errors.New("DISCORD_TOKEN is not set")
	ErrInvalidPlaylistMax = errors.New("PLAYLIST_MAX must be positive")
	ErrInvalidCandidates  = errors.New("SEARCH_CANDIDATES must be between 1 and 10")
	ErrInvalidRateLimit   = errors.New("EXTRACTOR_RPS and EXTRACTOR_BURST must be positive")
	ErrInvalidProxy       = errors.New("YT_PROXY must use http, https or socks5")
	ErrPartialSpotify     = errors.New("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set together")
)

// Config is the complete bot configuration.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN"`
	GuildID      string `env:"GUILD_ID"`

	PlaylistMax      int `env:"PLAYLIST_MAX" envDefault:"100"`
	SearchCandidates int `env:"SEARCH_CANDIDATES" envDefault:"3"`

	YouTubeCookie  string  `env:"YT_COOKIE"`
	YouTubeProxy   string  `env:"YT_PROXY"`
	ExtractorRPS   float64 `env:"EXTRACTOR_RPS" envDefault:"5"`
	ExtractorBurst int     `env:"EXTRACTOR_BURST" envDefault:"10"`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`

	MetricsAddr string `env:"METRICS_ADDR"`

	History  database.HistoryConfig  `envPrefix:"HISTORY_"`
	Logging  pipeline.LoggingConfig  `envPrefix:"LOG_"`
	Pipeline pipeline.PipelineConfig `envPrefix:"PIPELINE_"`
}

// LoadConfig reads .env when present, then parses the environment.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv parses and validates the process environment.
func FromEnv() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SpotifyEnabled reports whether Spotify credentials are configured.
func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}

// Validate checks ranges and combinations.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DiscordToken) == "" {
		return ErrDiscordTokenNotSet
	}
	if c.PlaylistMax <= 0 {
		return ErrInvalidPlaylistMax
	}
	if c.SearchCandidates < 1 || c.SearchCandidates > 10 {
		return ErrInvalidCandidates
	}
	if c.ExtractorRPS <= 0 || c.ExtractorBurst <= 0 {
		return ErrInvalidRateLimit
	}
	if c.YouTubeProxy != "" {
		scheme, _, _ := strings.Cut(c.YouTubeProxy, "://")
		switch strings.ToLower(scheme) {
		case "http", "https", "socks5":
		default:
			return ErrInvalidProxy
		}
	}
	if (c.SpotifyClientID == "") != (c.SpotifyClientSecret == "") {
		return ErrPartialSpotify
	}
	if c.History.Enabled() {
		if err := c.History.Validate(); err != nil {
			return fmt.Errorf("invalid history configuration: %w", err)
		}
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("invalid logging configuration: %w", err)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("invalid pipeline configuration: %w", err)
	}
	return nil
}

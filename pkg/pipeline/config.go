package pipeline

import (
	"fmt"
	"time"
)

// PipelineConfig contains configuration for the audio pipeline
type PipelineConfig struct {
	FFmpeg  FFmpegConfig  `envPrefix:"FFMPEG_"`
	Opus    OpusConfig    `envPrefix:"OPUS_"`
	Discord DiscordConfig `envPrefix:"DISCORD_"`

	// FirstByteTimeout bounds how long an acquired stream may take to
	// produce its first byte before the strategy counts as failed.
	FirstByteTimeout time.Duration `env:"FIRST_BYTE_TIMEOUT" envDefault:"15s"`
	// ReadTimeout bounds a single PCM frame read while playing.
	ReadTimeout time.Duration `env:"READ_TIMEOUT" envDefault:"10s"`
}

// FFmpegConfig contains configuration for FFmpeg processing
type FFmpegConfig struct {
	BinaryPath        string `env:"PATH" envDefault:"ffmpeg"`
	ReconnectDelayMax int    `env:"RECONNECT_DELAY_MAX" envDefault:"5"`
	LogLevel          string `env:"LOG_LEVEL" envDefault:"error"`
}

// OpusConfig contains configuration for Opus encoding
type OpusConfig struct {
	SampleRate int `env:"SAMPLE_RATE" envDefault:"48000"`
	Channels   int `env:"CHANNELS" envDefault:"2"`
	Bitrate    int `env:"BITRATE" envDefault:"128000"`
	FrameSize  int `env:"FRAME_SIZE" envDefault:"960"`
}

// DiscordConfig contains configuration for Discord integration
type DiscordConfig struct {
	SendTimeout  time.Duration `env:"SEND_TIMEOUT" envDefault:"1s"`
	ReadyTimeout time.Duration `env:"READY_TIMEOUT" envDefault:"10s"`
}

// LoggingConfig contains configuration for logging
type LoggingConfig struct {
	Level      string `env:"LEVEL" envDefault:"info"`
	Format     string `env:"FORMAT" envDefault:"text"`
	Output     string `env:"OUTPUT" envDefault:"stdout"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"10"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"5"`
	MaxAgeDays int    `env:"MAX_AGE_DAYS" envDefault:"28"`
	Compress   bool   `env:"COMPRESS" envDefault:"true"`
}

// DefaultPipelineConfig returns a configuration with sensible defaults
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		FFmpeg: FFmpegConfig{
			BinaryPath:        "ffmpeg",
			ReconnectDelayMax: 5,
			LogLevel:          "error",
		},
		Opus: OpusConfig{
			SampleRate: 48000,
			Channels:   2,
			Bitrate:    128000,
			FrameSize:  960,
		},
		Discord: DiscordConfig{
			SendTimeout:  time.Second,
			ReadyTimeout: 10 * time.Second,
		},
		FirstByteTimeout: 15 * time.Second,
		ReadTimeout:      10 * time.Second,
	}
}

// FrameBytes is the size of one s16le PCM frame.
func (c OpusConfig) FrameBytes() int {
	return c.FrameSize * c.Channels * 2
}

// Validate validates the configuration and returns any errors
func (c *PipelineConfig) Validate() error {
	var errors []string

	if c.FFmpeg.BinaryPath == "" {
		errors = append(errors, "ffmpeg binary_path cannot be empty")
	}
	if c.FFmpeg.ReconnectDelayMax < 0 {
		errors = append(errors, "ffmpeg reconnect_delay_max must be >= 0")
	}

	if c.Opus.SampleRate != 48000 {
		errors = append(errors, "opus sample_rate must be 48000 for discord voice")
	}
	if c.Opus.Channels != 2 {
		errors = append(errors, "opus channels must be 2")
	}
	if c.Opus.Bitrate < 6000 || c.Opus.Bitrate > 510000 {
		errors = append(errors, "opus bitrate must be between 6000 and 510000")
	}
	switch c.Opus.FrameSize {
	case 120, 240, 480, 960, 1920, 2880:
	default:
		errors = append(errors, "opus frame_size must be a valid opus frame length")
	}

	if c.Discord.SendTimeout <= 0 {
		errors = append(errors, "discord send_timeout must be > 0")
	}
	if c.Discord.ReadyTimeout <= 0 {
		errors = append(errors, "discord ready_timeout must be > 0")
	}
	if c.FirstByteTimeout <= 0 {
		errors = append(errors, "first_byte_timeout must be > 0")
	}
	if c.ReadTimeout <= 0 {
		errors = append(errors, "read_timeout must be > 0")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errors)
	}
	return nil
}

// Validate validates the logging configuration
func (c *LoggingConfig) Validate() error {
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Level] {
		return fmt.Errorf("logging level must be one of: debug, info, warn, error, fatal")
	}

	validLogFormats := map[string]bool{
		"json": true, "text": true, "console": true,
	}
	if !validLogFormats[c.Format] {
		return fmt.Errorf("logging format must be one of: json, text, console")
	}
	return nil
}

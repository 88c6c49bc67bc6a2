package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "token", cfg.DiscordToken)
	assert.Equal(t, 100, cfg.PlaylistMax)
	assert.Equal(t, 3, cfg.SearchCandidates)
	assert.Equal(t, 5.0, cfg.ExtractorRPS)
	assert.Equal(t, 10, cfg.ExtractorBurst)
	assert.False(t, cfg.SpotifyEnabled())
	assert.False(t, cfg.History.Enabled())
	assert.Equal(t, 720*time.Hour, cfg.History.Retention)
	assert.Equal(t, "0 0 4 * * *", cfg.History.CleanupSchedule)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "ffmpeg", cfg.Pipeline.FFmpeg.BinaryPath)
	assert.Equal(t, 128000, cfg.Pipeline.Opus.Bitrate)
	assert.Equal(t, 15*time.Second, cfg.Pipeline.FirstByteTimeout)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("GUILD_ID", "123")
	t.Setenv("PLAYLIST_MAX", "25")
	t.Setenv("YT_PROXY", "socks5://127.0.0.1:1080")
	t.Setenv("SPOTIFY_CLIENT_ID", "id")
	t.Setenv("SPOTIFY_CLIENT_SECRET", "secret")
	t.Setenv("HISTORY_DB_PATH", "/tmp/history.db")
	t.Setenv("HISTORY_RETENTION", "48h")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("PIPELINE_FFMPEG_PATH", "/usr/bin/ffmpeg")
	t.Setenv("PIPELINE_FIRST_BYTE_TIMEOUT", "5s")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "123", cfg.GuildID)
	assert.Equal(t, 25, cfg.PlaylistMax)
	assert.True(t, cfg.SpotifyEnabled())
	assert.True(t, cfg.History.Enabled())
	assert.Equal(t, 48*time.Hour, cfg.History.Retention)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "/usr/bin/ffmpeg", cfg.Pipeline.FFmpeg.BinaryPath)
	assert.Equal(t, 5*time.Second, cfg.Pipeline.FirstByteTimeout)
}

func TestFromEnvValidation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr error
	}{
		{name: "missing token", env: map[string]string{"DISCORD_TOKEN": ""}, wantErr: ErrDiscordTokenNotSet},
		{name: "zero playlist max", env: map[string]string{"PLAYLIST_MAX": "0"}, wantErr: ErrInvalidPlaylistMax},
		{name: "too many candidates", env: map[string]string{"SEARCH_CANDIDATES": "20"}, wantErr: ErrInvalidCandidates},
		{name: "zero rps", env: map[string]string{"EXTRACTOR_RPS": "0"}, wantErr: ErrInvalidRateLimit},
		{name: "bad proxy scheme", env: map[string]string{"YT_PROXY": "socks4://127.0.0.1:1080"}, wantErr: ErrInvalidProxy},
		{name: "half spotify", env: map[string]string{"SPOTIFY_CLIENT_ID": "id"}, wantErr: ErrPartialSpotify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("DISCORD_TOKEN", "token")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := FromEnv()
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFromEnvRejectsBadNestedValues(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "token")
	t.Setenv("HISTORY_DB_PATH", "/tmp/history.db")
	t.Setenv("HISTORY_RETENTION", "10m")
	_, err := FromEnv()
	assert.ErrorContains(t, err, "history")

	t.Setenv("HISTORY_RETENTION", "48h")
	t.Setenv("LOG_LEVEL", "loud")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "logging")

	t.Setenv("LOG_LEVEL", "info")
	t.Setenv("PIPELINE_OPUS_BITRATE", "1")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "pipeline")

	t.Setenv("PIPELINE_OPUS_BITRATE", "not-a-number")
	_, err = FromEnv()
	assert.ErrorContains(t, err, "parse")
}

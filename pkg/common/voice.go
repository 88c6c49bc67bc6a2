package common

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/cozycat/pkg/pipeline"
)

var (
	ErrNotInVoice       = errors.New("user is not in a voice channel")
	ErrVoiceJoinTimeout = errors.New("voice connection timed out")
)

const voiceJoinAttempts = 3

// UserVoiceChannel returns the voice channel the user currently sits in, or "".
func UserVoiceChannel(s *discordgo.Session, guildID, userID string) string {
	guild, err := s.State.Guild(guildID)
	if err != nil {
		return ""
	}
	for _, vs := range guild.VoiceStates {
		if vs.UserID == userID {
			return vs.ChannelID
		}
	}
	return ""
}

// JoinVoiceChannel joins channelID with retry logic and waits until the
// connection reports ready.
func JoinVoiceChannel(ctx context.Context, s *discordgo.Session, guildID, channelID string, logger pipeline.Logger) (*discordgo.VoiceConnection, error) {
	if channelID == "" {
		return nil, ErrNotInVoice
	}
	log := logger.With(pipeline.String("guild_id", guildID), pipeline.String("channel_id", channelID))

	var (
		vc  *discordgo.VoiceConnection
		err error
	)
	for i := 0; i < voiceJoinAttempts; i++ {
		vc, err = s.ChannelVoiceJoin(guildID, channelID, false, true)
		if err == nil {
			break
		}
		log.Warn("Voice join attempt failed", pipeline.Int("attempt", i+1), pipeline.Error(err))
		if i < voiceJoinAttempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(i+1) * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to join voice channel after %d attempts: %w", voiceJoinAttempts, err)
	}

	timeout := time.After(10 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = vc.Disconnect()
			return nil, ctx.Err()
		case <-timeout:
			_ = vc.Disconnect()
			return nil, ErrVoiceJoinTimeout
		case <-ticker.C:
			vc.RLock()
			ready := vc.Ready
			vc.RUnlock()
			if ready {
				log.Info("Voice connection ready")
				return vc, nil
			}
		}
	}
}

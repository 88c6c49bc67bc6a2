package handlers

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/pipeline"
)

// VoiceJoiner joins voice channels through a discordgo session.
type VoiceJoiner struct {
	session *discordgo.Session
	logger  pipeline.Logger
}

// NewVoiceJoiner creates a joiner for s.
func NewVoiceJoiner(s *discordgo.Session, logger pipeline.Logger) *VoiceJoiner {
	return &VoiceJoiner{session: s, logger: logger}
}

func (j *VoiceJoiner) Join(ctx context.Context, guildID, channelID string) (*discordgo.VoiceConnection, error) {
	return common.JoinVoiceChannel(ctx, j.session, guildID, channelID, j.logger)
}

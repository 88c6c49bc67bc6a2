package commands

import (
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/pipeline"
	"github.com/latoulicious/cozycat/pkg/player"
	"github.com/latoulicious/cozycat/pkg/session"
)

// MessageSender is the part of *discordgo.Session used for notifications.
type MessageSender interface {
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// ChannelNotifier posts playback events to the session's bound text channel.
type ChannelNotifier struct {
	sender MessageSender
	logger pipeline.Logger
}

var _ player.Notifier = (*ChannelNotifier)(nil)

// NewChannelNotifier creates a notifier that sends through sender.
func NewChannelNotifier(sender MessageSender, logger pipeline.Logger) *ChannelNotifier {
	return &ChannelNotifier{sender: sender, logger: logger.With(pipeline.String("component", "notifier"))}
}

func (n *ChannelNotifier) NowPlaying(sess *session.Session, np player.NowPlaying) {
	embed := trackEmbed("🎵 Now Playing", np.Item, np.Info)
	embed.Color = colorSuccess
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "Up next", Value: fmt.Sprintf("%d", np.Remaining), Inline: true},
		&discordgo.MessageEmbedField{Name: "Loop", Value: onOff(np.Loop), Inline: true},
	)
	if np.Strategy != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Source", Value: np.Strategy, Inline: true})
	}
	n.send(sess, embed)
}

func (n *ChannelNotifier) Skipped(sess *session.Session, item *common.QueueItem, err error) {
	n.send(sess, newEmbed("", fmt.Sprintf("⚠️ Skipped **%s**: couldn't play it.", item.DisplayTitle()), colorWarn))
}

func (n *ChannelNotifier) Idle(sess *session.Session) {
	n.send(sess, newEmbed("", "📭 Queue finished.", colorInfo))
}

func (n *ChannelNotifier) send(sess *session.Session, embed *discordgo.MessageEmbed) {
	channelID := sess.TextChannel()
	if channelID == "" {
		return
	}
	if _, err := n.sender.ChannelMessageSendEmbed(channelID, embed); err != nil {
		n.logger.Warn("Failed to send notification",
			pipeline.String("guild_id", sess.GuildID()),
			pipeline.String("channel_id", channelID),
			pipeline.Error(err),
		)
	}
}

package commands

import (
	"strings"

	"github.com/bwmarrin/discordgo"
)

// helpCommand lists every command grouped by purpose.
func helpCommand(Request) Reply {
	embed := newEmbed("cozycat", "Here are all the available commands:", colorSuccess)
	embed.Fields = []*discordgo.MessageEmbedField{
		{
			Name: "🎵 Playback",
			Value: strings.Join([]string{
				"• `/join` - Join your voice channel",
				"• `/play <query>` - Play a link, a playlist or the best search hit",
				"• `/pause` / `/resume` - Pause or resume the current track",
				"• `/skip` - Skip the current track",
				"• `/jump <position>` - Play the track at position next",
				"• `/stop` - Stop playback and clear the queue",
				"• `/vol [percent]` - Show or set the volume (1-200)",
				"• `/leave` - Stop and leave the voice channel",
			}, "\n"),
		},
		{
			Name: "📜 Queue",
			Value: strings.Join([]string{
				"• `/queue` - Show the queue",
				"• `/np` - Show the current track",
				"• `/remove <position>` - Remove an upcoming track",
				"• `/clear` - Remove every upcoming track",
				"• `/clearall` - Empty the queue and stop",
				"• `/shuffle` - Shuffle the upcoming tracks",
				"• `/loop` - Toggle queue loop",
				"• `/history` - Show recently played tracks",
			}, "\n"),
		},
		{
			Name: "💡 Tips",
			Value: strings.Join([]string{
				"• Join a voice channel **before** using playback commands",
				"• Playlists are capped; the reply tells you how many were queued",
			}, "\n"),
		},
	}
	return Reply{Embed: embed}
}

package commands

import (
	"context"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/cozycat/pkg/database"
	"github.com/latoulicious/cozycat/pkg/resolver"
)

// Request is one command invocation, independent of how it arrived.
type Request struct {
	Name               string
	Options            map[string]string
	GuildID            string
	UserID             string
	UserName           string
	CallerVoiceChannel string
	ReplyChannel       string
}

// Option returns a string option, or "".
func (r Request) Option(name string) string {
	return r.Options[name]
}

// IntOption returns an integer option and whether it was present and valid.
func (r Request) IntOption(name string) (int, bool) {
	v, ok := r.Options[name]
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Reply is what a command answers with.
type Reply struct {
	Embed     *discordgo.MessageEmbed
	Content   string
	Ephemeral bool
}

// Resolver turns a user query into queueable entries.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*resolver.Resolved, error)
}

// VoiceJoiner connects the bot to a voice channel.
type VoiceJoiner interface {
	Join(ctx context.Context, guildID, channelID string) (*discordgo.VoiceConnection, error)
}

// History reads the playback log.
type History interface {
	Recent(ctx context.Context, guildID string, limit int) ([]database.Event, error)
}

const (
	colorInfo    = 0x7289DA
	colorSuccess = 0x00ff00
	colorWarn    = 0xffa500
	colorError   = 0xff0000

	footerText = "cozycat"
)

func newEmbed(title, description string, color int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: description,
		Color:       color,
		Timestamp:   time.Now().Format(time.RFC3339),
		Footer: &discordgo.MessageEmbedFooter{
			Text: footerText,
		},
	}
}

func success(title, description string) Reply {
	return Reply{Embed: newEmbed(title, description, colorSuccess)}
}

func info(title, description string) Reply {
	return Reply{Embed: newEmbed(title, description, colorInfo)}
}

// notice is a benign, caller-only reply.
func notice(title, description string) Reply {
	return Reply{Embed: newEmbed(title, description, colorWarn), Ephemeral: true}
}

func failure(title, description string) Reply {
	return Reply{Embed: newEmbed(title, description, colorError)}
}

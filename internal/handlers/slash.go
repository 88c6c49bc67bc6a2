// Package handlers adapts discordgo events to the command router.
package handlers

import (
	"context"
	"strconv"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/cozycat/internal/commands"
	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/pipeline"
)

const commandTimeout = 2 * time.Minute

// Dispatcher runs a command request.
type Dispatcher interface {
	Handle(ctx context.Context, req commands.Request) commands.Reply
}

// SlashCommandHandler answers application command interactions: it defers
// the response, runs the command, then edits the deferred response. Ephemeral
// replies replace the deferred message with an ephemeral follow-up.
type SlashCommandHandler struct {
	dispatcher Dispatcher
	logger     pipeline.Logger
}

// NewSlashCommandHandler creates a handler.
func NewSlashCommandHandler(dispatcher Dispatcher, logger pipeline.Logger) *SlashCommandHandler {
	return &SlashCommandHandler{
		dispatcher: dispatcher,
		logger:     logger.With(pipeline.String("component", "interactions")),
	}
}

// Handle is registered with discordgo.Session.AddHandler.
func (h *SlashCommandHandler) Handle(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	user := interactionUser(i)
	if user == nil || user.Bot {
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	})
	if err != nil {
		h.logger.Error("Failed to acknowledge interaction", pipeline.Error(err))
		return
	}

	req := BuildRequest(i.ApplicationCommandData(), i.GuildID, i.ChannelID, user)
	if i.GuildID != "" {
		req.CallerVoiceChannel = common.UserVoiceChannel(s, i.GuildID, user.ID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	reply := h.dispatcher.Handle(ctx, req)

	h.respond(s, i.Interaction, reply)
}

func (h *SlashCommandHandler) respond(s *discordgo.Session, interaction *discordgo.Interaction, reply commands.Reply) {
	var embeds []*discordgo.MessageEmbed
	if reply.Embed != nil {
		embeds = []*discordgo.MessageEmbed{reply.Embed}
	}

	if reply.Ephemeral {
		if err := s.InteractionResponseDelete(interaction); err != nil {
			h.logger.Warn("Failed to delete deferred response", pipeline.Error(err))
		}
		_, err := s.FollowupMessageCreate(interaction, true, &discordgo.WebhookParams{
			Content: reply.Content,
			Embeds:  embeds,
			Flags:   discordgo.MessageFlagsEphemeral,
		})
		if err != nil {
			h.logger.Error("Failed to send ephemeral reply", pipeline.Error(err))
		}
		return
	}

	content := reply.Content
	_, err := s.InteractionResponseEdit(interaction, &discordgo.WebhookEdit{
		Content: &content,
		Embeds:  &embeds,
	})
	if err != nil {
		h.logger.Error("Failed to send interaction response", pipeline.Error(err))
	}
}

// BuildRequest converts interaction data into a router request. The caller's
// voice channel is filled in separately from the session state.
func BuildRequest(data discordgo.ApplicationCommandInteractionData, guildID, channelID string, user *discordgo.User) commands.Request {
	options := make(map[string]string, len(data.Options))
	for _, opt := range data.Options {
		switch opt.Type {
		case discordgo.ApplicationCommandOptionString:
			options[opt.Name] = opt.StringValue()
		case discordgo.ApplicationCommandOptionInteger:
			options[opt.Name] = strconv.FormatInt(opt.IntValue(), 10)
		case discordgo.ApplicationCommandOptionBoolean:
			options[opt.Name] = strconv.FormatBool(opt.BoolValue())
		}
	}
	return commands.Request{
		Name:         data.Name,
		Options:      options,
		GuildID:      guildID,
		UserID:       user.ID,
		UserName:     user.Username,
		ReplyChannel: channelID,
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

package commands

import (
	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/cozycat/pkg/pipeline"
)

// CommandRegistrar is the part of *discordgo.Session used to register commands.
type CommandRegistrar interface {
	ApplicationCommandBulkOverwrite(appID, guildID string, commands []*discordgo.ApplicationCommand, options ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error)
}

func positionOption(description string) *discordgo.ApplicationCommandOption {
	minPosition := 1.0
	return &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionInteger,
		Name:        "position",
		Description: description,
		Required:    true,
		MinValue:    &minPosition,
	}
}

// Definitions returns the slash command definitions.
func Definitions() []*discordgo.ApplicationCommand {
	minVolume := 1.0
	return []*discordgo.ApplicationCommand{
		{Name: "join", Description: "Join your voice channel"},
		{
			Name:        "play",
			Description: "Play a link, a playlist or a search",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "query",
					Description: "URL, playlist URL or search text",
					Required:    true,
				},
			},
		},
		{Name: "skip", Description: "Skip the current track"},
		{
			Name:        "jump",
			Description: "Play an upcoming track next",
			Options:     []*discordgo.ApplicationCommandOption{positionOption("Position in the queue")},
		},
		{
			Name:        "remove",
			Description: "Remove an upcoming track",
			Options:     []*discordgo.ApplicationCommandOption{positionOption("Position in the queue")},
		},
		{Name: "clear", Description: "Remove every upcoming track"},
		{Name: "clearall", Description: "Empty the queue and stop playback"},
		{Name: "pause", Description: "Pause the current track"},
		{Name: "resume", Description: "Resume paused playback"},
		{Name: "stop", Description: "Stop playback and clear the queue"},
		{Name: "queue", Description: "Show the queue"},
		{Name: "np", Description: "Show what's currently playing"},
		{Name: "shuffle", Description: "Shuffle the upcoming tracks"},
		{Name: "loop", Description: "Toggle queue loop"},
		{
			Name:        "vol",
			Description: "Show or set the volume",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionInteger,
					Name:        "percent",
					Description: "Volume in percent (1-200)",
					MinValue:    &minVolume,
					MaxValue:    200,
				},
			},
		},
		{Name: "leave", Description: "Stop and leave the voice channel"},
		{Name: "history", Description: "Show recently played tracks"},
		{Name: "help", Description: "Show help information"},
	}
}

// RegisterSlashCommands registers every command for guildID, or globally when
// guildID is empty. Commands not in the list are removed.
func RegisterSlashCommands(r CommandRegistrar, appID, guildID string, logger pipeline.Logger) error {
	scope := "global"
	if guildID != "" {
		scope = "guild"
	}
	registered, err := r.ApplicationCommandBulkOverwrite(appID, guildID, Definitions())
	if err != nil {
		logger.Error("Failed to register slash commands", pipeline.String("scope", scope), pipeline.Error(err))
		return err
	}
	logger.Info("Registered slash commands",
		pipeline.String("scope", scope),
		pipeline.String("guild_id", guildID),
		pipeline.Int("count", len(registered)),
	)
	return nil
}

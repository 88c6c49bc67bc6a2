// Package commands implements the bot's slash commands on top of the
// per-guild playback drivers.
package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/database"
	"github.com/latoulicious/cozycat/pkg/pipeline"
	"github.com/latoulicious/cozycat/pkg/player"
	"github.com/latoulicious/cozycat/pkg/resolver"
	"github.com/latoulicious/cozycat/pkg/session"
)

const (
	queuePageSize = 15
	historyLimit  = 10
)

type handlerFunc func(ctx context.Context, req Request) Reply

type command struct {
	handler handlerFunc
	// voice commands require the caller to share the bot's voice channel
	voice bool
}

// Router dispatches requests to command handlers.
type Router struct {
	players  *player.Manager
	resolver Resolver
	voice    VoiceJoiner
	history  History // nil when history is disabled
	logger   pipeline.Logger
	metrics  pipeline.MetricsCollector
	commands map[string]command
}

// NewRouter wires the command table.
func NewRouter(players *player.Manager, res Resolver, voice VoiceJoiner, history History, logger pipeline.Logger, metrics pipeline.MetricsCollector) *Router {
	r := &Router{
		players:  players,
		resolver: res,
		voice:    voice,
		history:  history,
		logger:   logger.With(pipeline.String("component", "commands")),
		metrics:  metrics,
	}
	r.commands = map[string]command{
		"join":     {handler: r.join, voice: true},
		"play":     {handler: r.play, voice: true},
		"skip":     {handler: r.skip, voice: true},
		"jump":     {handler: r.jump, voice: true},
		"remove":   {handler: r.remove, voice: true},
		"clear":    {handler: r.clear, voice: true},
		"clearall": {handler: r.clearAll, voice: true},
		"pause":    {handler: r.pause, voice: true},
		"resume":   {handler: r.resume, voice: true},
		"stop":     {handler: r.stop, voice: true},
		"queue":    {handler: r.queue},
		"np":       {handler: r.nowPlaying},
		"shuffle":  {handler: r.shuffle, voice: true},
		"loop":     {handler: r.loop, voice: true},
		"vol":      {handler: r.volume, voice: true},
		"leave":    {handler: r.leave, voice: true},
		"history":  {handler: r.recent},
		"help":     {handler: func(_ context.Context, req Request) Reply { return helpCommand(req) }},
	}
	return r
}

// Handle runs a request and always returns a reply.
func (r *Router) Handle(ctx context.Context, req Request) Reply {
	log := r.logger.With(
		pipeline.String("command", req.Name),
		pipeline.String("guild_id", req.GuildID),
		pipeline.String("user_id", req.UserID),
	)

	cmd, ok := r.commands[req.Name]
	if !ok {
		return notice("❓ Unknown Command", fmt.Sprintf("`/%s` is not a command. Try `/help`.", req.Name))
	}
	if req.GuildID == "" {
		return notice("❌ Server Only", "Playback commands only work inside a server.")
	}

	if cmd.voice {
		sess := r.players.Registry().Get(req.GuildID)
		if err := sess.CheckVoice(req.Name, req.CallerVoiceChannel); err != nil {
			r.count(req.Name, "rejected")
			return validationReply(err)
		}
	}

	reply := r.safeHandle(ctx, cmd.handler, req, log)
	result := "ok"
	if reply.Ephemeral {
		result = "rejected"
	} else if reply.Embed != nil && reply.Embed.Color == colorError {
		result = "error"
	}
	r.count(req.Name, result)
	log.Debug("Handled command", pipeline.String("result", result))
	return reply
}

func (r *Router) safeHandle(ctx context.Context, h handlerFunc, req Request, log pipeline.Logger) (reply Reply) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("Recovered from panic in command", pipeline.Any("panic", rec))
			reply = failure("❌ Error", "Something went wrong while running this command.")
		}
	}()
	return h(ctx, req)
}

func (r *Router) count(name, result string) {
	r.metrics.RecordCounter("commands", 1, map[string]string{"command": name, "result": result})
}

func validationReply(err error) Reply {
	var cve *session.CommandValidationError
	if !errors.As(err, &cve) {
		return failure("❌ Error", err.Error())
	}
	switch {
	case errors.Is(err, session.ErrNotInVoice):
		return notice("❌ Not in Voice", "You need to be in a voice channel to use this command.")
	case errors.Is(err, session.ErrWrongVoiceChannel):
		return notice("❌ Wrong Channel", "You need to be in the same voice channel as the bot.")
	case errors.Is(err, session.ErrQueueEmpty):
		return notice("📭 Queue Empty", "There is nothing in the queue.")
	}
	detail := cve.Reason.Error()
	if cve.Detail != "" {
		detail = cve.Detail
	}
	return notice("⚠️ Can't Do That", capitalize(detail)+".")
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// ensureVoice joins the caller's channel unless the bot is already connected.
func (r *Router) ensureVoice(ctx context.Context, d *player.Driver, req Request) error {
	if d.Connected() {
		return nil
	}
	vc, err := r.voice.Join(ctx, req.GuildID, req.CallerVoiceChannel)
	if err != nil {
		return err
	}
	d.Attach(vc, req.CallerVoiceChannel)
	return nil
}

func (r *Router) join(ctx context.Context, req Request) Reply {
	d := r.players.Driver(req.GuildID)
	if d.Connected() {
		return notice("🔊 Already Here", "I'm already in your voice channel.")
	}
	if err := r.ensureVoice(ctx, d, req); err != nil {
		r.logger.Warn("Failed to join voice", pipeline.String("guild_id", req.GuildID), pipeline.Error(err))
		return failure("❌ Voice Error", "Couldn't join your voice channel.")
	}
	d.Session().BindText(req.ReplyChannel)
	return success("🔊 Joined", fmt.Sprintf("Joined <#%s>.", req.CallerVoiceChannel))
}

func (r *Router) play(ctx context.Context, req Request) Reply {
	query := strings.TrimSpace(req.Option("query"))
	if query == "" {
		return notice("❌ Missing Query", "Usage: `/play <url or search>`")
	}

	d := r.players.Driver(req.GuildID)
	if err := r.ensureVoice(ctx, d, req); err != nil {
		r.logger.Warn("Failed to join voice", pipeline.String("guild_id", req.GuildID), pipeline.Error(err))
		return failure("❌ Voice Error", "Couldn't join your voice channel.")
	}
	d.Session().BindText(req.ReplyChannel)

	resolved, err := r.resolver.Resolve(ctx, query)
	if err != nil {
		r.logger.Warn("Failed to resolve query", pipeline.String("query", query), pipeline.Error(err))
		return failure("❌ Nothing to Play", resolutionMessage(err))
	}

	items := resolved.QueueItems(req.UserName)
	position, wasEmpty := r.players.Enqueue(req.GuildID, items...)

	if resolved.Kind == resolver.KindPlaylist {
		description := fmt.Sprintf("Queued **%d** tracks from **%s**.", len(items), resolved.Title)
		if resolved.TotalAvailable > len(items) {
			description += fmt.Sprintf("\nOnly the first %d of %d tracks were added.", len(items), resolved.TotalAvailable)
		}
		return success("📜 Playlist Queued", description)
	}

	item := items[0]
	if wasEmpty {
		return success("🎵 Loading", fmt.Sprintf("Starting **%s**.", item.DisplayTitle()))
	}
	embed := newEmbed("➕ Added to Queue", fmt.Sprintf("**%s**", item.DisplayTitle()), colorSuccess)
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Position", Value: fmt.Sprintf("%d", position-1), Inline: true},
		{Name: "Requested by", Value: req.UserName, Inline: true},
	}
	return Reply{Embed: embed}
}

func resolutionMessage(err error) string {
	switch {
	case errors.Is(err, resolver.ErrEmptyPlaylist):
		return "That playlist has no playable tracks."
	case errors.Is(err, resolver.ErrNoResolvableCandidate):
		return "No playable result for that search."
	case errors.Is(err, resolver.ErrInfoUnavailable):
		return "Couldn't get information about that link."
	}
	return "Couldn't resolve that query."
}

func (r *Router) skip(_ context.Context, req Request) Reply {
	item, err := r.players.Driver(req.GuildID).Skip()
	if err != nil {
		return validationReply(err)
	}
	return success("⏭️ Skipped", fmt.Sprintf("Skipped **%s**.", item.DisplayTitle()))
}

func (r *Router) jump(_ context.Context, req Request) Reply {
	position, ok := req.IntOption("position")
	if !ok {
		return notice("❌ Missing Position", "Usage: `/jump <position>`")
	}
	item, err := r.players.Driver(req.GuildID).Jump(position)
	if err != nil {
		return validationReply(err)
	}
	return success("⤴️ Jumping", fmt.Sprintf("Playing **%s** now.", item.DisplayTitle()))
}

func (r *Router) remove(_ context.Context, req Request) Reply {
	position, ok := req.IntOption("position")
	if !ok {
		return notice("❌ Missing Position", "Usage: `/remove <position>`")
	}
	item, err := r.players.Driver(req.GuildID).Session().Remove(position)
	if err != nil {
		return validationReply(err)
	}
	return success("🗑️ Removed", fmt.Sprintf("Removed **%s** from the queue.", item.DisplayTitle()))
}

func (r *Router) clear(_ context.Context, req Request) Reply {
	removed, err := r.players.Driver(req.GuildID).Session().Clear()
	if err != nil {
		return validationReply(err)
	}
	return success("🧹 Queue Cleared", fmt.Sprintf("Removed %d upcoming tracks.", removed))
}

func (r *Router) clearAll(_ context.Context, req Request) Reply {
	removed := r.players.Driver(req.GuildID).Stop()
	if removed == 0 {
		return notice("📭 Queue Already Empty", "The queue is already empty.")
	}
	return success("🧹 Queue Emptied", fmt.Sprintf("Removed %d tracks and stopped playback.", removed))
}

func (r *Router) pause(_ context.Context, req Request) Reply {
	if err := r.players.Driver(req.GuildID).Pause(); err != nil {
		return notice("ℹ️ Not Playing", "There is nothing to pause.")
	}
	return success("⏸️ Paused", "Playback paused.")
}

func (r *Router) resume(_ context.Context, req Request) Reply {
	if err := r.players.Driver(req.GuildID).Resume(); err != nil {
		return notice("ℹ️ Not Paused", "Playback is not paused.")
	}
	return success("▶️ Resumed", "Playback resumed.")
}

func (r *Router) stop(_ context.Context, req Request) Reply {
	r.players.Driver(req.GuildID).Stop()
	return success("⏹️ Stopped", "Playback stopped and the queue was cleared.")
}

func (r *Router) queue(_ context.Context, req Request) Reply {
	sess, ok := r.players.Registry().Lookup(req.GuildID)
	if !ok || sess.Len() == 0 {
		return info("📭 Queue Empty", "Nothing is queued. Use `/play` to add something.")
	}
	return Reply{Embed: queueEmbed(sess.Items(), sess.Loop())}
}

func queueEmbed(items []*common.QueueItem, loop bool) *discordgo.MessageEmbed {
	var b strings.Builder
	fmt.Fprintf(&b, "**Now:** %s\n", items[0].DisplayTitle())

	upcoming := items[1:]
	if len(upcoming) == 0 {
		b.WriteString("\nNo upcoming tracks.")
	} else {
		b.WriteString("\n**Up next:**\n")
		for i, item := range upcoming {
			if i == queuePageSize {
				fmt.Fprintf(&b, "… and %d more", len(upcoming)-queuePageSize)
				break
			}
			fmt.Fprintf(&b, "%d. %s\n", i+1, item.DisplayTitle())
		}
	}

	embed := newEmbed("📜 Queue", strings.TrimRight(b.String(), "\n"), colorInfo)
	embed.Fields = []*discordgo.MessageEmbedField{
		{Name: "Tracks", Value: fmt.Sprintf("%d", len(items)), Inline: true},
		{Name: "Loop", Value: onOff(loop), Inline: true},
	}
	return embed
}

func (r *Router) nowPlaying(_ context.Context, req Request) Reply {
	d, ok := r.players.Lookup(req.GuildID)
	if !ok {
		return info("🔇 Nothing Playing", "Nothing is playing right now.")
	}
	item, strategy, ok := d.Current()
	if !ok {
		return info("🔇 Nothing Playing", "Nothing is playing right now.")
	}
	sess := d.Session()
	embed := trackEmbed("🎵 Now Playing", item, item.Metadata())
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{Name: "State", Value: d.State().String(), Inline: true},
		&discordgo.MessageEmbedField{Name: "Volume", Value: fmt.Sprintf("%.0f%%", sess.Volume()*100), Inline: true},
		&discordgo.MessageEmbedField{Name: "Loop", Value: onOff(sess.Loop()), Inline: true},
		&discordgo.MessageEmbedField{Name: "Source", Value: strategy, Inline: true},
	)
	return Reply{Embed: embed}
}

func trackEmbed(title string, item *common.QueueItem, meta *common.MediaInfo) *discordgo.MessageEmbed {
	embed := newEmbed(title, fmt.Sprintf("**%s**", item.DisplayTitle()), colorInfo)
	embed.URL = item.URL
	if meta != nil {
		if u := meta.CanonicalURL(); u != "" {
			embed.URL = u
		}
		if meta.Thumbnail != "" {
			embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: meta.Thumbnail}
		} else if meta.ID != "" && common.IsYouTubeURL(embed.URL) {
			embed.Thumbnail = &discordgo.MessageEmbedThumbnail{URL: common.GetYouTubeThumbnailURL(meta.ID)}
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Duration", Value: common.FormatDuration(meta.Duration), Inline: true})
	}
	if item.RequestedBy != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: "Requested by", Value: item.RequestedBy, Inline: true})
	}
	return embed
}

func (r *Router) shuffle(_ context.Context, req Request) Reply {
	sess := r.players.Driver(req.GuildID).Session()
	next, upcoming, err := sess.Shuffle()
	if err != nil {
		return validationReply(err)
	}
	return success("🔀 Shuffled", fmt.Sprintf("Shuffled %d upcoming tracks. Up next: **%s**.", upcoming, next.DisplayTitle()))
}

func (r *Router) loop(_ context.Context, req Request) Reply {
	enabled := r.players.Driver(req.GuildID).Session().ToggleLoop()
	return success("🔁 Loop", fmt.Sprintf("Queue loop is now **%s**.", onOff(enabled)))
}

func (r *Router) volume(_ context.Context, req Request) Reply {
	d := r.players.Driver(req.GuildID)
	percent, ok := req.IntOption("percent")
	if !ok {
		return info("🔊 Volume", fmt.Sprintf("Volume is **%.0f%%**.", d.Session().Volume()*100))
	}
	applied := d.SetVolume(percent)
	return success("🔊 Volume", fmt.Sprintf("Volume set to **%d%%**.", applied))
}

func (r *Router) leave(_ context.Context, req Request) Reply {
	if err := r.players.Driver(req.GuildID).Leave(); err != nil {
		if errors.Is(err, player.ErrNotConnected) {
			return notice("ℹ️ Not Connected", "I'm not in a voice channel.")
		}
		r.logger.Warn("Failed to disconnect from voice", pipeline.String("guild_id", req.GuildID), pipeline.Error(err))
		return failure("❌ Voice Error", "Couldn't leave the voice channel cleanly.")
	}
	return success("👋 Left", "Left the voice channel and cleared the queue.")
}

func (r *Router) recent(ctx context.Context, req Request) Reply {
	if r.history == nil {
		return notice("📼 History Disabled", "Playback history is not enabled on this bot.")
	}
	events, err := r.history.Recent(ctx, req.GuildID, historyLimit)
	if err != nil {
		r.logger.Error("Failed to read history", pipeline.String("guild_id", req.GuildID), pipeline.Error(err))
		return failure("❌ Error", "Couldn't read the playback history.")
	}
	if len(events) == 0 {
		return info("📼 History", "Nothing has been played yet.")
	}

	var b strings.Builder
	for i, ev := range events {
		fmt.Fprintf(&b, "%d. %s %s <t:%d:R>\n", i+1, eventIcon(ev.Type), ev.Title, ev.CreatedAt.Unix())
	}
	return info("📼 History", strings.TrimRight(b.String(), "\n"))
}

func eventIcon(t database.EventType) string {
	switch t {
	case database.EventPlayed:
		return "▶️"
	case database.EventSkipped:
		return "⏭️"
	case database.EventStopped:
		return "⏹️"
	default:
		return "✅"
	}
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/database"
	"github.com/latoulicious/cozycat/pkg/pipeline"
	"github.com/latoulicious/cozycat/pkg/player"
	"github.com/latoulicious/cozycat/pkg/resolver"
	"github.com/latoulicious/cozycat/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResource struct{ id uint64 }

func (r stubResource) ResourceID() uint64 { return r.id }
func (stubResource) SetVolume(float64) {}
func (stubResource) Close() error { return nil }

// stubDevice plays every resource forever until stopped.
type stubDevice struct {
	mu        sync.Mutex
	next      uint64
	playing   uint64
	paused    bool
	handler   pipeline.IdleHandler
	connected bool
}

func (d *stubDevice) CreateResource(*pipeline.Stream, float64) (player.Resource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next++
	return stubResource{id: d.next}, nil
}

func (d *stubDevice) Play(res player.Resource) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playing = res.ResourceID()
	return nil
}

func (d *stubDevice) Stop() bool {
	d.mu.Lock()
	id, h := d.playing, d.handler
	d.playing, d.paused = 0, false
	d.mu.Unlock()
	if id == 0 {
		return false
	}
	h(pipeline.IdleEvent{ResourceID: id, Stopped: true})
	return true
}

func (d *stubDevice) Pause() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.playing == 0 || d.paused {
		return false
	}
	d.paused = true
	return true
}

func (d *stubDevice) Unpause() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.paused {
		return false
	}
	d.paused = false
	return true
}

func (d *stubDevice) SetIdleHandler(h pipeline.IdleHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

func (d *stubDevice) Attach(*discordgo.VoiceConnection) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = true
}

func (d *stubDevice) Detach() *discordgo.VoiceConnection {
	d.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connected = false
	return nil
}

func (d *stubDevice) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connected
}

type stubAcquirer struct{}

func (stubAcquirer) Acquire(_ context.Context, info *common.MediaInfo) (*pipeline.Stream, error) {
	return &pipeline.Stream{ReadCloser: io.NopCloser(strings.NewReader("")), Strategy: "innertube", Source: info.URL}, nil
}

type stubFetcher struct{}

func (stubFetcher) FetchInfo(_ context.Context, link, title string) (*common.MediaInfo, error) {
	return &common.MediaInfo{Title: title, URL: link}, nil
}

type stubResolver struct {
	resolved *resolver.Resolved
	err      error
	queries  []string
}

func (s *stubResolver) Resolve(_ context.Context, query string) (*resolver.Resolved, error) {
	s.queries = append(s.queries, query)
	return s.resolved, s.err
}

type stubJoiner struct {
	joined []string
	err    error
}

func (s *stubJoiner) Join(_ context.Context, _, channelID string) (*discordgo.VoiceConnection, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.joined = append(s.joined, channelID)
	return nil, nil
}

type stubHistory struct {
	events []database.Event
	err    error
}

func (s *stubHistory) Recent(_ context.Context, _ string, limit int) ([]database.Event, error) {
	if len(s.events) > limit {
		return s.events[:limit], s.err
	}
	return s.events, s.err
}

type fixture struct {
	router   *Router
	manager  *player.Manager
	resolver *stubResolver
	joiner   *stubJoiner
	history  *stubHistory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		resolver: &stubResolver{},
		joiner:   &stubJoiner{},
		history:  &stubHistory{},
	}
	f.manager = player.NewManager(session.NewRegistry(), func(string) player.Device { return &stubDevice{} }, player.Deps{
		Acquirer: stubAcquirer{},
		Fetcher:  stubFetcher{},
		Logger:   pipeline.NullLogger(),
		Metrics:  pipeline.NoopMetrics{},
	})
	t.Cleanup(f.manager.Shutdown)
	f.router = NewRouter(f.manager, f.resolver, f.joiner, f.history, pipeline.NullLogger(), pipeline.NoopMetrics{})
	return f
}

func req(name string, options map[string]string) Request {
	return Request{
		Name:               name,
		Options:            options,
		GuildID:            "guild-1",
		UserID:             "user-1",
		UserName:           "tester",
		CallerVoiceChannel: "voice-1",
		ReplyChannel:       "text-1",
	}
}

func single(title string) *resolver.Resolved {
	url := "https://youtu.be/" + strings.Repeat("x", 11)
	info := &common.MediaInfo{Title: title, URL: url}
	return &resolver.Resolved{Kind: resolver.KindSingle, Title: title, TotalAvailable: 1, Entries: []resolver.Entry{{Title: title, URL: url, Info: info}}}
}

func (f *fixture) sess() *session.Session {
	return f.manager.Registry().Get("guild-1")
}

func (f *fixture) enqueue(titles ...string) {
	items := make([]*common.QueueItem, 0, len(titles))
	for _, title := range titles {
		items = append(items, common.NewQueueItem(title, "https://youtu.be/"+title, "tester", &common.MediaInfo{Title: title}))
	}
	f.manager.Enqueue("guild-1", items...)
}

func (f *fixture) waitPlaying(t *testing.T) {
	t.Helper()
	d := f.manager.Driver("guild-1")
	require.Eventually(t, func() bool { return d.State() == player.StatePlaying }, 2*time.Second, 5*time.Millisecond)
}

func TestVoiceCheck(t *testing.T) {
	f := newFixture(t)

	noVoice := req("skip", nil)
	noVoice.CallerVoiceChannel = ""
	reply := f.router.Handle(context.Background(), noVoice)
	assert.True(t, reply.Ephemeral)
	assert.Contains(t, reply.Embed.Title, "Not in Voice")

	f.sess().BindVoice("voice-2")
	reply = f.router.Handle(context.Background(), req("pause", nil))
	assert.True(t, reply.Ephemeral)
	assert.Contains(t, reply.Embed.Title, "Wrong Channel")

	// read-only commands skip the check
	reply = f.router.Handle(context.Background(), noVoice.with("queue"))
	assert.False(t, reply.Ephemeral)
	reply = f.router.Handle(context.Background(), noVoice.with("help"))
	assert.False(t, reply.Ephemeral)
}

func (r Request) with(name string) Request {
	r.Name = name
	return r
}

func TestUnknownAndServerOnly(t *testing.T) {
	f := newFixture(t)

	reply := f.router.Handle(context.Background(), req("gremlin", nil))
	assert.True(t, reply.Ephemeral)

	dm := req("queue", nil)
	dm.GuildID = ""
	reply = f.router.Handle(context.Background(), dm)
	assert.True(t, reply.Ephemeral)
}

func TestPlayJoinsAndQueues(t *testing.T) {
	f := newFixture(t)
	f.resolver.resolved = single("Song X")

	reply := f.router.Handle(context.Background(), req("play", map[string]string{"query": "song x"}))
	require.NotNil(t, reply.Embed)
	assert.Contains(t, reply.Embed.Description, "Song X")
	assert.Equal(t, []string{"voice-1"}, f.joiner.joined)
	assert.Equal(t, []string{"song x"}, f.resolver.queries)
	assert.Equal(t, "text-1", f.sess().TextChannel())
	assert.Equal(t, "voice-1", f.sess().VoiceChannel())
	f.waitPlaying(t)

	reply = f.router.Handle(context.Background(), req("play", map[string]string{"query": "song x"}))
	assert.Equal(t, "➕ Added to Queue", reply.Embed.Title)
	assert.Equal(t, "1", reply.Embed.Fields[0].Value)
	assert.Len(t, f.joiner.joined, 1, "already connected")
	assert.Equal(t, 2, f.sess().Len())
}

func TestPlayPlaylistReportsTruncation(t *testing.T) {
	f := newFixture(t)
	entries := make([]resolver.Entry, 100)
	for i := range entries {
		entries[i] = resolver.Entry{Title: fmt.Sprintf("Track %d", i), URL: fmt.Sprintf("https://youtu.be/%011d", i)}
	}
	f.resolver.resolved = &resolver.Resolved{Kind: resolver.KindPlaylist, Title: "Mix", Entries: entries, TotalAvailable: 250}

	reply := f.router.Handle(context.Background(), req("play", map[string]string{"query": "https://www.youtube.com/playlist?list=PL1"}))
	assert.Contains(t, reply.Embed.Description, "**100** tracks")
	assert.Contains(t, reply.Embed.Description, "first 100 of 250")
	assert.Equal(t, 100, f.sess().Len())
}

func TestPlayResolutionFailureLeavesQueue(t *testing.T) {
	f := newFixture(t)
	f.resolver.err = &resolver.ResolutionError{Query: "x", Reason: resolver.ErrNoResolvableCandidate}

	reply := f.router.Handle(context.Background(), req("play", map[string]string{"query": "x"}))
	assert.Equal(t, colorError, reply.Embed.Color)
	assert.Contains(t, reply.Embed.Description, "No playable result")
	assert.Equal(t, 0, f.sess().Len())

	reply = f.router.Handle(context.Background(), req("play", nil))
	assert.True(t, reply.Ephemeral)
}

func TestPlayVoiceJoinFailure(t *testing.T) {
	f := newFixture(t)
	f.joiner.err = errors.New("timeout")
	f.resolver.resolved = single("Song X")

	reply := f.router.Handle(context.Background(), req("play", map[string]string{"query": "x"}))
	assert.Equal(t, colorError, reply.Embed.Color)
	assert.Empty(t, f.resolver.queries)
}

func TestQueueListing(t *testing.T) {
	f := newFixture(t)

	reply := f.router.Handle(context.Background(), req("queue", nil))
	assert.Contains(t, reply.Embed.Title, "Empty")

	titles := make([]string, 20)
	for i := range titles {
		titles[i] = fmt.Sprintf("T%02d", i)
	}
	f.enqueue(titles...)

	reply = f.router.Handle(context.Background(), req("queue", nil))
	assert.Contains(t, reply.Embed.Description, "**Now:** T00")
	assert.Contains(t, reply.Embed.Description, "15. T15")
	assert.NotContains(t, reply.Embed.Description, "16. T16")
	assert.Contains(t, reply.Embed.Description, "… and 4 more")
}

func TestQueueMutations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.router.Handle(ctx, req("shuffle", nil))
	assert.True(t, reply.Ephemeral)
	reply = f.router.Handle(ctx, req("clear", nil))
	assert.True(t, reply.Ephemeral)
	reply = f.router.Handle(ctx, req("skip", nil))
	assert.True(t, reply.Ephemeral)
	assert.Contains(t, reply.Embed.Title, "Queue Empty")

	f.enqueue("A", "B", "C", "D")
	f.waitPlaying(t)

	reply = f.router.Handle(ctx, req("remove", map[string]string{"position": "9"}))
	assert.True(t, reply.Ephemeral)
	assert.Contains(t, reply.Embed.Description, "between 1 and 3")

	reply = f.router.Handle(ctx, req("remove", map[string]string{"position": "2"}))
	assert.Contains(t, reply.Embed.Description, "C")
	assert.Equal(t, 3, f.sess().Len())

	reply = f.router.Handle(ctx, req("jump", map[string]string{"position": "abc"}))
	assert.True(t, reply.Ephemeral)

	reply = f.router.Handle(ctx, req("shuffle", nil))
	assert.False(t, reply.Ephemeral)
	assert.Contains(t, reply.Embed.Description, "Shuffled 2 upcoming")
	assert.Contains(t, reply.Embed.Description, "Up next: **"+f.sess().Items()[1].DisplayTitle()+"**")

	reply = f.router.Handle(ctx, req("loop", nil))
	assert.Contains(t, reply.Embed.Description, "on")
	assert.True(t, f.sess().Loop())

	reply = f.router.Handle(ctx, req("clear", nil))
	assert.Contains(t, reply.Embed.Description, "2 upcoming")
	assert.Equal(t, 1, f.sess().Len())
}

func TestPauseResumeMismatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.router.Handle(ctx, req("pause", nil))
	assert.True(t, reply.Ephemeral)
	assert.NotEqual(t, colorError, reply.Embed.Color)

	f.enqueue("A")
	f.waitPlaying(t)

	reply = f.router.Handle(ctx, req("resume", nil))
	assert.True(t, reply.Ephemeral)
	reply = f.router.Handle(ctx, req("pause", nil))
	assert.False(t, reply.Ephemeral)
	reply = f.router.Handle(ctx, req("resume", nil))
	assert.False(t, reply.Ephemeral)
}

func TestVolume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.router.Handle(ctx, req("vol", map[string]string{"percent": "500"}))
	assert.Contains(t, reply.Embed.Description, "200%")
	assert.InDelta(t, 2.0, f.sess().Volume(), 1e-9)

	reply = f.router.Handle(ctx, req("vol", nil))
	assert.Contains(t, reply.Embed.Description, "200%")
}

func TestNowPlaying(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.router.Handle(ctx, req("np", nil))
	assert.Contains(t, reply.Embed.Title, "Nothing Playing")

	f.enqueue("A")
	f.waitPlaying(t)
	reply = f.router.Handle(ctx, req("np", nil))
	assert.Contains(t, reply.Embed.Description, "A")
	values := map[string]string{}
	for _, field := range reply.Embed.Fields {
		values[field.Name] = field.Value
	}
	assert.Equal(t, "innertube", values["Source"])
	assert.Equal(t, "playing", values["State"])
	assert.Equal(t, "100%", values["Volume"])
}

func TestStopAndLeave(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.resolver.resolved = single("Song X")

	f.router.Handle(ctx, req("play", map[string]string{"query": "x"}))
	f.waitPlaying(t)
	f.enqueue("B")

	reply := f.router.Handle(ctx, req("stop", nil))
	assert.False(t, reply.Ephemeral)
	assert.Equal(t, 0, f.sess().Len())

	reply = f.router.Handle(ctx, req("clearall", nil))
	assert.True(t, reply.Ephemeral)

	// the stub device hands back no connection to close
	reply = f.router.Handle(ctx, req("leave", nil))
	assert.True(t, reply.Ephemeral)
	assert.Empty(t, f.sess().VoiceChannel())
	assert.False(t, f.manager.Driver("guild-1").Connected())
}

func TestJoin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.router.Handle(ctx, req("join", nil))
	assert.False(t, reply.Ephemeral)
	assert.Equal(t, []string{"voice-1"}, f.joiner.joined)

	reply = f.router.Handle(ctx, req("join", nil))
	assert.True(t, reply.Ephemeral)
	assert.Len(t, f.joiner.joined, 1)
}

func TestHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reply := f.router.Handle(ctx, req("history", nil))
	assert.Contains(t, reply.Embed.Description, "Nothing has been played")

	now := time.Now()
	for i := 0; i < 12; i++ {
		f.history.events = append(f.history.events, database.Event{Title: fmt.Sprintf("T%d", i), Type: database.EventPlayed, CreatedAt: now})
	}
	reply = f.router.Handle(ctx, req("history", nil))
	assert.Contains(t, reply.Embed.Description, "10. ▶️ T9")
	assert.NotContains(t, reply.Embed.Description, "T10")

	f.history.err = errors.New("database is locked")
	reply = f.router.Handle(ctx, req("history", nil))
	assert.Equal(t, colorError, reply.Embed.Color)

	disabled := NewRouter(f.manager, f.resolver, f.joiner, nil, pipeline.NullLogger(), pipeline.NoopMetrics{})
	reply = disabled.Handle(ctx, req("history", nil))
	assert.True(t, reply.Ephemeral)
}

func TestHelpListsEveryCommand(t *testing.T) {
	f := newFixture(t)
	reply := f.router.Handle(context.Background(), req("help", nil))

	var text strings.Builder
	for _, field := range reply.Embed.Fields {
		text.WriteString(field.Value)
	}
	for _, def := range Definitions() {
		if def.Name == "help" {
			continue
		}
		assert.Contains(t, text.String(), "`/"+def.Name, "help is missing %s", def.Name)
	}
}

func TestDefinitionsMatchRouter(t *testing.T) {
	f := newFixture(t)
	defs := Definitions()
	assert.Len(t, defs, len(f.router.commands))
	for _, def := range defs {
		_, ok := f.router.commands[def.Name]
		assert.True(t, ok, "no handler for %s", def.Name)
	}
}

type stubRegistrar struct {
	guildID string
	count   int
	err     error
}

func (s *stubRegistrar) ApplicationCommandBulkOverwrite(_, guildID string, cmds []*discordgo.ApplicationCommand, _ ...discordgo.RequestOption) ([]*discordgo.ApplicationCommand, error) {
	s.guildID = guildID
	s.count = len(cmds)
	return cmds, s.err
}

func TestRegisterSlashCommands(t *testing.T) {
	reg := &stubRegistrar{}
	require.NoError(t, RegisterSlashCommands(reg, "app", "guild-1", pipeline.NullLogger()))
	assert.Equal(t, "guild-1", reg.guildID)
	assert.Equal(t, len(Definitions()), reg.count)

	reg.err = errors.New("unauthorized")
	assert.Error(t, RegisterSlashCommands(reg, "app", "", pipeline.NullLogger()))
}

type stubSender struct {
	channels []string
	embeds   []*discordgo.MessageEmbed
}

func (s *stubSender) ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	s.channels = append(s.channels, channelID)
	s.embeds = append(s.embeds, embed)
	return &discordgo.Message{}, nil
}

func TestChannelNotifier(t *testing.T) {
	sender := &stubSender{}
	n := NewChannelNotifier(sender, pipeline.NullLogger())
	sess := session.New("guild-1")
	item := common.NewQueueItem("Song X", "https://youtu.be/xxxxxxxxxxx", "tester", nil)

	n.Idle(sess)
	assert.Empty(t, sender.embeds, "no bound channel")

	sess.BindText("text-1")
	n.NowPlaying(sess, player.NowPlaying{Item: item, Info: &common.MediaInfo{ID: "xxxxxxxxxxx", Title: "Song X", Duration: 3 * time.Minute}, Remaining: 2, Strategy: "ytdlp-pipe"})
	n.Skipped(sess, item, errors.New("all strategies failed"))
	n.Idle(sess)

	require.Len(t, sender.embeds, 3)
	assert.Equal(t, []string{"text-1", "text-1", "text-1"}, sender.channels)
	assert.Contains(t, sender.embeds[0].Description, "Song X")
	assert.NotNil(t, sender.embeds[0].Thumbnail)
	assert.Contains(t, sender.embeds[1].Description, "Skipped **Song X**")
}

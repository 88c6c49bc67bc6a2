// Package player runs the per-guild playback state machine.
package player

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/database"
	"github.com/latoulicious/cozycat/pkg/pipeline"
	"github.com/latoulicious/cozycat/pkg/session"
)

const (
	eventBuffer   = 64
	recordTimeout = 5 * time.Second
)

// State is the driver state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

type eventKind int

const (
	evKick eventKind = iota
	evFinished
	evSkip
	evStop
)

type event struct {
	kind       eventKind
	target     *common.QueueItem // skip: the item the request was made against
	resourceID uint64
	generation uint64
	err        error
}

// Deps are the collaborators shared by every driver.
type Deps struct {
	Acquirer Acquirer
	Fetcher  InfoFetcher
	Notifier Notifier
	Recorder Recorder // optional
	Logger   pipeline.Logger
	Metrics  pipeline.MetricsCollector
}

// Driver owns the playback device of one guild. State transitions run on a
// single goroutine fed by an event channel; Pause, Resume and SetVolume act
// directly under the driver lock.
type Driver struct {
	session *session.Session
	device  Device
	deps    Deps
	logger  pipeline.Logger

	events chan event
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// bumped on every track start; stop requests only affect tracks
	// started before them
	generation atomic.Uint64

	mu            sync.Mutex
	state         State
	current       *common.QueueItem
	active        Resource
	activeID      uint64
	activeGen     uint64
	strategy      string
	skipRequested bool
}

// NewDriver starts the event loop for sess on device.
func NewDriver(sess *session.Session, device Device, deps Deps) *Driver {
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Logger == nil {
		deps.Logger = pipeline.NullLogger()
	}
	if deps.Metrics == nil {
		deps.Metrics = pipeline.NoopMetrics{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Driver{
		session: sess,
		device:  device,
		deps:    deps,
		logger:  deps.Logger.With(pipeline.String("component", "driver"), pipeline.String("guild_id", sess.GuildID())),
		events:  make(chan event, eventBuffer),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	device.SetIdleHandler(func(ev pipeline.IdleEvent) {
		d.post(event{kind: evFinished, resourceID: ev.ResourceID, err: ev.Err})
	})
	go d.run()
	return d
}

// Session returns the guild session driven by d.
func (d *Driver) Session() *session.Session {
	return d.session
}

// State returns the current state.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Current returns the item being played and the strategy that opened it.
func (d *Driver) Current() (*common.QueueItem, string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return nil, "", false
	}
	return d.current, d.strategy, true
}

// Attach binds the voice connection the bot joined.
func (d *Driver) Attach(vc *discordgo.VoiceConnection, channelID string) {
	d.device.Attach(vc)
	d.session.BindVoice(channelID)
}

// Connected reports whether a voice connection is attached.
func (d *Driver) Connected() bool {
	return d.device.Connected()
}

// Enqueue appends items and starts playback when the driver is idle.
func (d *Driver) Enqueue(items ...*common.QueueItem) (int, bool) {
	position, wasEmpty := d.session.Enqueue(items...)
	if wasEmpty || d.State() == StateIdle {
		d.post(event{kind: evKick})
	}
	return position, wasEmpty
}

// Skip ends the current track; the queue then advances as if it finished.
func (d *Driver) Skip() (*common.QueueItem, error) {
	head := d.session.Head()
	if head == nil {
		return nil, &session.CommandValidationError{Op: "skip", Reason: session.ErrQueueEmpty, Detail: "nothing to skip"}
	}
	d.post(event{kind: evSkip, target: head})
	return head, nil
}

// Jump moves the upcoming item at position behind the head and skips to it.
func (d *Driver) Jump(position int) (*common.QueueItem, error) {
	head := d.session.Head()
	item, err := d.session.Jump(position)
	if err != nil {
		return nil, err
	}
	d.post(event{kind: evSkip, target: head})
	return item, nil
}

// Stop empties the queue and stops playback. It returns how many items were
// removed.
func (d *Driver) Stop() int {
	removed := d.session.ClearAll()
	d.post(event{kind: evStop, generation: d.generation.Load()})
	return removed
}

// Leave stops playback and disconnects from voice.
func (d *Driver) Leave() error {
	d.Stop()
	vc := d.device.Detach()
	d.session.BindVoice("")
	if vc == nil {
		return ErrNotConnected
	}
	return vc.Disconnect()
}

// Pause suspends the current track.
func (d *Driver) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StatePlaying || !d.device.Pause() {
		return ErrNotPlaying
	}
	d.state = StatePaused
	return nil
}

// Resume continues a paused track.
func (d *Driver) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StatePaused || !d.device.Unpause() {
		return ErrNotPaused
	}
	d.state = StatePlaying
	return nil
}

// SetVolume stores the clamped volume and applies it to the current track.
func (d *Driver) SetVolume(percent int) int {
	applied := d.session.SetVolume(percent)
	d.mu.Lock()
	active := d.active
	d.mu.Unlock()
	if active != nil {
		active.SetVolume(d.session.Volume())
	}
	return applied
}

// Close stops the event loop and the device.
func (d *Driver) Close() {
	d.cancel()
	d.device.Stop()
	<-d.done
}

func (d *Driver) post(ev event) {
	select {
	case d.events <- ev:
	case <-d.ctx.Done():
	}
}

func (d *Driver) run() {
	defer close(d.done)
	for {
		select {
		case <-d.ctx.Done():
			return
		case ev := <-d.events:
			d.dispatch(ev)
		}
	}
}

func (d *Driver) dispatch(ev event) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Recovered from panic in driver loop", pipeline.Any("panic", r))
			d.mu.Lock()
			if d.activeID == 0 {
				d.state = StateIdle
			}
			d.mu.Unlock()
		}
	}()

	switch ev.kind {
	case evKick:
		if d.State() == StateIdle {
			d.load()
		}
	case evFinished:
		d.finished(ev)
	case evSkip:
		d.skip(ev.target)
	case evStop:
		d.stop(ev.generation)
	}
}

func (d *Driver) finished(ev event) {
	d.mu.Lock()
	if ev.resourceID == 0 || ev.resourceID != d.activeID {
		d.mu.Unlock()
		d.logger.Debug("Ignoring stale finish", pipeline.Int64("resource_id", int64(ev.resourceID)))
		return
	}
	item, strategy, skipped := d.current, d.strategy, d.skipRequested
	d.clearActive()
	d.mu.Unlock()

	if ev.err != nil {
		d.logger.Warn("Track ended with device error", pipeline.String("title", item.DisplayTitle()), pipeline.Error(ev.err))
	}

	evType := database.EventFinished
	if skipped {
		evType = database.EventSkipped
	}
	d.record(item, evType, strategy, ev.err)
	d.deps.Metrics.RecordCounter("tracks", 1, map[string]string{"event": string(evType)})

	if _, ok := d.session.AdvanceFrom(item); ok {
		d.load()
		return
	}
	d.idle()
}

// skip ends target if it is still playing or still at the head. A request
// whose target already ended is dropped, so one skip never moves the queue
// more than one item.
func (d *Driver) skip(target *common.QueueItem) {
	d.mu.Lock()
	if d.activeID != 0 {
		if d.current != target {
			d.mu.Unlock()
			d.logger.Debug("Ignoring skip for a track that already ended")
			return
		}
		d.skipRequested = true
		d.mu.Unlock()
		// the finish event of the stopped resource advances the queue
		d.device.Stop()
		return
	}
	d.mu.Unlock()

	if target == nil || !d.session.DiscardHeadIf(target) {
		return
	}
	d.record(target, database.EventSkipped, "", nil)
	d.load()
}

func (d *Driver) stop(generation uint64) {
	d.mu.Lock()
	if d.activeID == 0 || d.activeGen > generation {
		if d.activeID == 0 {
			d.state = StateIdle
		}
		d.mu.Unlock()
		return
	}
	item, strategy := d.current, d.strategy
	d.clearActive()
	d.state = StateIdle
	d.mu.Unlock()

	d.device.Stop()
	d.record(item, database.EventStopped, strategy, nil)
	d.deps.Metrics.RecordCounter("tracks", 1, map[string]string{"event": string(database.EventStopped)})
	d.logger.Info("Playback stopped")
}

// load plays the queue head, discarding heads that cannot be played until
// one starts or the queue runs dry.
func (d *Driver) load() {
	for {
		item := d.session.Head()
		if item == nil {
			d.idle()
			return
		}
		d.setState(StateLoading)

		err := d.start(item)
		if err == nil {
			return
		}
		if errors.Is(err, errHeadChanged) {
			continue
		}
		if d.ctx.Err() != nil {
			return
		}

		d.logger.Warn("Failed to start track", pipeline.String("title", item.DisplayTitle()), pipeline.Error(err))
		if d.session.DiscardHeadIf(item) {
			d.deps.Notifier.Skipped(d.session, item, err)
			d.record(item, database.EventSkipped, "", err)
			d.deps.Metrics.RecordCounter("tracks", 1, map[string]string{"event": "failed"})
		}
	}
}

func (d *Driver) start(item *common.QueueItem) error {
	info := item.Metadata()
	if info == nil {
		fetched, err := d.deps.Fetcher.FetchInfo(d.ctx, item.URL, item.Title)
		if err != nil {
			return err
		}
		item.SetMetadata(fetched)
		info = fetched
	}

	stream, err := d.deps.Acquirer.Acquire(d.ctx, info)
	if err != nil {
		return err
	}
	res, err := d.device.CreateResource(stream, d.session.Volume())
	if err != nil {
		return err
	}
	// a stop either cleared the queue before this point or sees gen
	gen := d.generation.Add(1)
	if d.session.Head() != item {
		_ = res.Close()
		return errHeadChanged
	}

	d.mu.Lock()
	d.current = item
	d.active = res
	d.activeID = res.ResourceID()
	d.activeGen = gen
	d.strategy = stream.Strategy
	d.skipRequested = false
	d.state = StatePlaying
	d.mu.Unlock()
	res.SetVolume(d.session.Volume())

	if err := d.device.Play(res); err != nil {
		d.mu.Lock()
		d.clearActive()
		d.state = StateLoading
		d.mu.Unlock()
		_ = res.Close()
		return err
	}

	d.logger.Info("Now playing",
		pipeline.String("title", item.DisplayTitle()),
		pipeline.String("strategy", stream.Strategy),
		pipeline.Int64("resource_id", int64(res.ResourceID())),
	)
	d.deps.Notifier.NowPlaying(d.session, NowPlaying{
		Item:      item,
		Info:      info,
		Remaining: d.session.Len() - 1,
		Loop:      d.session.Loop(),
		Strategy:  stream.Strategy,
	})
	d.record(item, database.EventPlayed, stream.Strategy, nil)
	d.deps.Metrics.RecordCounter("tracks", 1, map[string]string{"event": string(database.EventPlayed)})
	return nil
}

func (d *Driver) idle() {
	d.setState(StateIdle)
	d.deps.Notifier.Idle(d.session)
}

// clearActive must be called with d.mu held.
func (d *Driver) clearActive() {
	d.current = nil
	d.active = nil
	d.activeID = 0
	d.activeGen = 0
	d.strategy = ""
	d.skipRequested = false
}

func (d *Driver) setState(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = s
}

func (d *Driver) record(item *common.QueueItem, evType database.EventType, strategy string, cause error) {
	if d.deps.Recorder == nil || item == nil {
		return
	}
	ev := database.Event{
		GuildID:  d.session.GuildID(),
		Title:    item.DisplayTitle(),
		URL:      item.URL,
		Type:     evType,
		Strategy: strategy,
	}
	if cause != nil {
		ev.Detail = cause.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := d.deps.Recorder.Record(ctx, ev); err != nil {
		d.logger.Warn("Failed to record playback event", pipeline.String("event", string(evType)), pipeline.Error(err))
	}
}

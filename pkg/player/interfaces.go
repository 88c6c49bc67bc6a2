package player

import (
	"context"
	"errors"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/database"
	"github.com/latoulicious/cozycat/pkg/pipeline"
	"github.com/latoulicious/cozycat/pkg/session"
)

var (
	ErrNotPlaying   = errors.New("nothing is playing")
	ErrNotPaused    = errors.New("playback is not paused")
	ErrNotConnected = errors.New("not connected to a voice channel")

	errHeadChanged = errors.New("queue head changed while loading")
)

// Resource is a playable item created by a Device.
type Resource interface {
	ResourceID() uint64
	SetVolume(linear float64)
	Close() error
}

// Device plays one resource at a time on a voice connection.
type Device interface {
	CreateResource(stream *pipeline.Stream, volume float64) (Resource, error)
	Play(res Resource) error
	Stop() bool
	Pause() bool
	Unpause() bool
	SetIdleHandler(h pipeline.IdleHandler)
	Attach(vc *discordgo.VoiceConnection)
	Detach() *discordgo.VoiceConnection
	Connected() bool
}

// Acquirer opens an audio stream for resolved media.
type Acquirer interface {
	Acquire(ctx context.Context, info *common.MediaInfo) (*pipeline.Stream, error)
}

// InfoFetcher resolves metadata for items queued without it.
type InfoFetcher interface {
	FetchInfo(ctx context.Context, link, title string) (*common.MediaInfo, error)
}

// Recorder stores playback history.
type Recorder interface {
	Record(ctx context.Context, ev database.Event) error
}

// NowPlaying describes a track that just started.
type NowPlaying struct {
	Item      *common.QueueItem
	Info      *common.MediaInfo
	Remaining int
	Loop      bool
	Strategy  string
}

// Notifier receives user-visible playback events. Implementations must not
// block for long; they run on the driver goroutine.
type Notifier interface {
	NowPlaying(sess *session.Session, np NowPlaying)
	Skipped(sess *session.Session, item *common.QueueItem, err error)
	Idle(sess *session.Session)
}

// MultiNotifier fans every event out to all of its notifiers in order.
type MultiNotifier []Notifier

func (m MultiNotifier) NowPlaying(sess *session.Session, np NowPlaying) {
	for _, n := range m {
		n.NowPlaying(sess, np)
	}
}

func (m MultiNotifier) Skipped(sess *session.Session, item *common.QueueItem, err error) {
	for _, n := range m {
		n.Skipped(sess, item, err)
	}
}

func (m MultiNotifier) Idle(sess *session.Session) {
	for _, n := range m {
		n.Idle(sess)
	}
}

type nopNotifier struct{}

func (nopNotifier) NowPlaying(*session.Session, NowPlaying) {}
func (nopNotifier) Skipped(*session.Session, *common.QueueItem, error) {}
func (nopNotifier) Idle(*session.Session) {}

package session

import (
	"math/rand"
	"sync"
	"time"

	"github.com/latoulicious/cozycat/pkg/common"
)

const (
	MinVolumePercent     = 1
	MaxVolumePercent     = 200
	DefaultVolumePercent = 100
)

// Session is the playback state of one guild: its queue and settings.
// queue[0], when present, is the item playing or about to play.
type Session struct {
	guildID string

	mu             sync.RWMutex
	queue          []*common.QueueItem
	loop           bool
	volume         float64
	textChannelID  string
	voiceChannelID string
	rng            *rand.Rand
}

// New creates an empty session for a guild.
func New(guildID string) *Session {
	return &Session{
		guildID: guildID,
		queue:   make([]*common.QueueItem, 0),
		volume:  float64(DefaultVolumePercent) / 100,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// GuildID returns the guild this session belongs to.
func (s *Session) GuildID() string {
	return s.guildID
}

// AdvanceQueue is the idle-advance transition: the head is dropped, or moved
// to the tail when loop is enabled. The input slice is not modified.
func AdvanceQueue(queue []*common.QueueItem, loop bool) []*common.QueueItem {
	if len(queue) == 0 {
		return queue
	}
	next := make([]*common.QueueItem, 0, len(queue))
	next = append(next, queue[1:]...)
	if loop {
		next = append(next, queue[0])
	}
	return next
}

// Enqueue appends items and returns the 1-based queue position of the first
// one together with whether the queue was empty before.
func (s *Session) Enqueue(items ...*common.QueueItem) (position int, wasEmpty bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	wasEmpty = len(s.queue) == 0
	position = len(s.queue) + 1
	s.queue = append(s.queue, items...)
	return position, wasEmpty
}

// AdvanceFrom applies the idle-advance for finished, which must still be the
// head. It returns the new head, or nil when the queue is now empty.
func (s *Session) AdvanceFrom(finished *common.QueueItem) (*common.QueueItem, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) > 0 && s.queue[0] == finished {
		s.queue = AdvanceQueue(s.queue, s.loop)
	}
	if len(s.queue) == 0 {
		return nil, false
	}
	return s.queue[0], true
}

// DiscardHeadIf removes the head only if it is still item.
func (s *Session) DiscardHeadIf(item *common.QueueItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 || s.queue[0] != item {
		return false
	}
	s.queue = append(s.queue[:0:0], s.queue[1:]...)
	return true
}

// Jump moves the upcoming item at position (1-based, head excluded) right
// behind the head.
func (s *Session) Jump(position int) (*common.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUpcoming("jump", position); err != nil {
		return nil, err
	}
	item := s.queue[position]
	copy(s.queue[2:position+1], s.queue[1:position])
	s.queue[1] = item
	return item, nil
}

// Remove deletes the upcoming item at position (1-based, head excluded).
func (s *Session) Remove(position int) (*common.QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkUpcoming("remove", position); err != nil {
		return nil, err
	}
	item := s.queue[position]
	s.queue = append(s.queue[:position], s.queue[position+1:]...)
	return item, nil
}

func (s *Session) checkUpcoming(op string, position int) error {
	upcoming := len(s.queue) - 1
	if upcoming < 1 {
		return rejected(op, ErrPositionOutOfRange, "no upcoming tracks")
	}
	if position < 1 || position > upcoming {
		return rejected(op, ErrPositionOutOfRange, "position must be between 1 and %d", upcoming)
	}
	return nil
}

// Clear drops every upcoming item and keeps the head.
func (s *Session) Clear() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) <= 1 {
		return 0, rejected("clear", ErrNothingToClear, "no upcoming tracks")
	}
	removed := len(s.queue) - 1
	s.queue = s.queue[:1]
	return removed, nil
}

// ClearAll empties the queue, head included.
func (s *Session) ClearAll() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := len(s.queue)
	s.queue = make([]*common.QueueItem, 0)
	return removed
}

// Shuffle permutes the upcoming items with Fisher-Yates. The head is pinned.
// It returns the new next-up item and the number of upcoming items.
func (s *Session) Shuffle() (*common.QueueItem, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) < 3 {
		return nil, 0, rejected("shuffle", ErrQueueTooShort, "need at least 2 upcoming tracks")
	}
	upcoming := s.queue[1:]
	for i := len(upcoming) - 1; i > 0; i-- {
		j := s.rng.Intn(i + 1)
		upcoming[i], upcoming[j] = upcoming[j], upcoming[i]
	}
	return upcoming[0], len(upcoming), nil
}

// ToggleLoop flips loop mode and returns the new value.
func (s *Session) ToggleLoop() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loop = !s.loop
	return s.loop
}

// SetVolume clamps percent to [1, 200] and stores it as a fraction. It returns
// the applied percentage.
func (s *Session) SetVolume(percent int) int {
	if percent < MinVolumePercent {
		percent = MinVolumePercent
	}
	if percent > MaxVolumePercent {
		percent = MaxVolumePercent
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volume = float64(percent) / 100
	return percent
}

// Volume returns the volume as a fraction in [0.01, 2.0].
func (s *Session) Volume() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.volume
}

// Loop reports whether loop mode is on.
func (s *Session) Loop() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loop
}

// Head returns queue[0], or nil.
func (s *Session) Head() *common.QueueItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.queue) == 0 {
		return nil
	}
	return s.queue[0]
}

// Items returns a copy of the queue.
func (s *Session) Items() []*common.QueueItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]*common.QueueItem, len(s.queue))
	copy(items, s.queue)
	return items
}

// Len returns the queue length, head included.
func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue)
}

// BindText sets the channel notifications go to.
func (s *Session) BindText(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.textChannelID = channelID
}

// TextChannel returns the bound text channel, or "".
func (s *Session) TextChannel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.textChannelID
}

// BindVoice records the voice channel the bot joined; "" unbinds.
func (s *Session) BindVoice(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.voiceChannelID = channelID
}

// VoiceChannel returns the bound voice channel, or "".
func (s *Session) VoiceChannel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voiceChannelID
}

// CheckVoice validates that a caller in callerChannel may control playback.
func (s *Session) CheckVoice(op, callerChannel string) error {
	if callerChannel == "" {
		return rejected(op, ErrNotInVoice, "join a voice channel first")
	}
	if bound := s.VoiceChannel(); bound != "" && bound != callerChannel {
		return rejected(op, ErrWrongVoiceChannel, "join the bot's voice channel first")
	}
	return nil
}

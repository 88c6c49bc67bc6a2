// Package presence keeps the bot status in sync with playback.
package presence

import (
	"strconv"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/pipeline"
	"github.com/latoulicious/cozycat/pkg/player"
	"github.com/latoulicious/cozycat/pkg/session"
)

// StatusUpdater is the part of *discordgo.Session the manager needs.
type StatusUpdater interface {
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

// PresenceManager shows "Listening to <title>" while any guild plays and a
// server count otherwise. It implements player.Notifier.
type PresenceManager struct {
	status     StatusUpdater
	guildCount func() int
	logger     pipeline.Logger

	mu      sync.Mutex
	playing map[string]string // guild -> title
	order   []string          // guilds by start time, newest last
	current string
}

var _ player.Notifier = (*PresenceManager)(nil)

// NewPresenceManager creates a presence manager for a discordgo session.
func NewPresenceManager(s *discordgo.Session, logger pipeline.Logger) *PresenceManager {
	return newPresenceManager(s, func() int {
		s.State.RLock()
		defer s.State.RUnlock()
		return len(s.State.Guilds)
	}, logger)
}

func newPresenceManager(status StatusUpdater, guildCount func() int, logger pipeline.Logger) *PresenceManager {
	return &PresenceManager{
		status:     status,
		guildCount: guildCount,
		logger:     logger.With(pipeline.String("component", "presence")),
		playing:    make(map[string]string),
	}
}

func (pm *PresenceManager) NowPlaying(sess *session.Session, np player.NowPlaying) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	guildID := sess.GuildID()
	pm.forget(guildID)
	pm.playing[guildID] = np.Item.DisplayTitle()
	pm.order = append(pm.order, guildID)
	pm.refresh()
}

func (pm *PresenceManager) Skipped(*session.Session, *common.QueueItem, error) {}

func (pm *PresenceManager) Idle(sess *session.Session) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.forget(sess.GuildID())
	pm.refresh()
}

// Current returns the text of the activity last set.
func (pm *PresenceManager) Current() string {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.current
}

// UpdateDefaultPresence shows the server count unless something plays.
func (pm *PresenceManager) UpdateDefaultPresence() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.refresh()
}

// StartPeriodicUpdates refreshes the server count every interval until stop
// is closed.
func (pm *PresenceManager) StartPeriodicUpdates(interval time.Duration, stop <-chan struct{}) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				pm.UpdateDefaultPresence()
			}
		}
	}()
}

// forget must be called with pm.mu held.
func (pm *PresenceManager) forget(guildID string) {
	delete(pm.playing, guildID)
	for i, id := range pm.order {
		if id == guildID {
			pm.order = append(pm.order[:i], pm.order[i+1:]...)
			break
		}
	}
}

// refresh must be called with pm.mu held.
func (pm *PresenceManager) refresh() {
	activity := &discordgo.Activity{Type: discordgo.ActivityTypeWatching}
	if n := len(pm.order); n > 0 {
		activity.Type = discordgo.ActivityTypeListening
		activity.Name = pm.playing[pm.order[n-1]]
	} else {
		activity.Name = strconv.Itoa(pm.guildCount()) + " servers"
	}
	if activity.Name == pm.current {
		return
	}

	err := pm.status.UpdateStatusComplex(discordgo.UpdateStatusData{
		Status:     string(discordgo.StatusOnline),
		Activities: []*discordgo.Activity{activity},
	})
	if err != nil {
		pm.logger.Warn("Failed to update presence", pipeline.Error(err))
		return
	}
	pm.current = activity.Name
}

package presence

import (
	"errors"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/latoulicious/cozycat/pkg/pipeline"
	"github.com/latoulicious/cozycat/pkg/player"
	"github.com/latoulicious/cozycat/pkg/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStatus struct {
	updates []discordgo.UpdateStatusData
	err     error
}

func (f *fakeStatus) UpdateStatusComplex(usd discordgo.UpdateStatusData) error {
	if f.err != nil {
		return f.err
	}
	f.updates = append(f.updates, usd)
	return nil
}

func (f *fakeStatus) last() *discordgo.Activity {
	return f.updates[len(f.updates)-1].Activities[0]
}

func playing(title string) player.NowPlaying {
	return player.NowPlaying{Item: common.NewQueueItem(title, "https://youtu.be/x", "tester", nil)}
}

func TestPresenceFollowsPlayback(t *testing.T) {
	status := &fakeStatus{}
	pm := newPresenceManager(status, func() int { return 7 }, pipeline.NullLogger())
	g1, g2 := session.New("g1"), session.New("g2")

	pm.UpdateDefaultPresence()
	require.Len(t, status.updates, 1)
	assert.Equal(t, "7 servers", status.last().Name)
	assert.Equal(t, discordgo.ActivityTypeWatching, status.last().Type)

	pm.NowPlaying(g1, playing("Song X"))
	assert.Equal(t, "Song X", status.last().Name)
	assert.Equal(t, discordgo.ActivityTypeListening, status.last().Type)

	pm.NowPlaying(g2, playing("Song Y"))
	assert.Equal(t, "Song Y", pm.Current())

	pm.Idle(g2)
	assert.Equal(t, "Song X", pm.Current())

	pm.Skipped(g1, common.NewQueueItem("Z", "", "", nil), errors.New("x"))
	pm.Idle(g1)
	assert.Equal(t, "7 servers", pm.Current())
}

func TestPresenceSkipsRedundantUpdates(t *testing.T) {
	status := &fakeStatus{}
	pm := newPresenceManager(status, func() int { return 1 }, pipeline.NullLogger())

	pm.UpdateDefaultPresence()
	pm.UpdateDefaultPresence()
	assert.Len(t, status.updates, 1)
}

func TestPresenceUpdateFailure(t *testing.T) {
	status := &fakeStatus{err: errors.New("gateway closed")}
	pm := newPresenceManager(status, func() int { return 1 }, pipeline.NullLogger())

	pm.NowPlaying(session.New("g1"), playing("Song X"))
	assert.Empty(t, pm.Current())
}

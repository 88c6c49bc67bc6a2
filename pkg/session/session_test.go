package session

import (
	"fmt"
	"testing"

	"github.com/latoulicious/cozycat/pkg/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func items(titles ...string) []*common.QueueItem {
	out := make([]*common.QueueItem, len(titles))
	for i, title := range titles {
		out[i] = common.NewQueueItem(title, "https://www.youtube.com/watch?v="+title, "tester", nil)
	}
	return out
}

func titles(queue []*common.QueueItem) []string {
	out := make([]string, len(queue))
	for i, item := range queue {
		out[i] = item.Title
	}
	return out
}

func sessionWith(names ...string) *Session {
	s := New("guild")
	s.Enqueue(items(names...)...)
	return s
}

func TestAdvanceQueue(t *testing.T) {
	queue := items("A", "B", "C")

	assert.Equal(t, []string{"B", "C", "A"}, titles(AdvanceQueue(queue, true)))
	assert.Equal(t, []string{"B", "C"}, titles(AdvanceQueue(queue, false)))
	assert.Equal(t, []string{"A", "B", "C"}, titles(queue), "input is not modified")
	assert.Empty(t, AdvanceQueue(nil, true))
	assert.Equal(t, []string{"A"}, titles(AdvanceQueue(items("A"), true)))
}

func TestAdvanceFrom(t *testing.T) {
	s := sessionWith("A", "B", "C")
	head := s.Head()

	next, ok := s.AdvanceFrom(head)
	require.True(t, ok)
	assert.Equal(t, "B", next.Title)

	// a stale finish for an item that is no longer the head changes nothing
	next, ok = s.AdvanceFrom(head)
	require.True(t, ok)
	assert.Equal(t, "B", next.Title)
	assert.Equal(t, []string{"B", "C"}, titles(s.Items()))

	s.ToggleLoop()
	next, _ = s.AdvanceFrom(s.Head())
	assert.Equal(t, "C", next.Title)
	assert.Equal(t, []string{"C", "B"}, titles(s.Items()))
}

func TestEnqueue(t *testing.T) {
	s := New("guild")
	pos, wasEmpty := s.Enqueue(items("A")...)
	assert.Equal(t, 1, pos)
	assert.True(t, wasEmpty)

	pos, wasEmpty = s.Enqueue(items("B", "C")...)
	assert.Equal(t, 2, pos)
	assert.False(t, wasEmpty)
	assert.Equal(t, 3, s.Len())
}

func TestJump(t *testing.T) {
	tests := []struct {
		name     string
		position int
		want     []string
		wantErr  bool
	}{
		{name: "last becomes next", position: 4, want: []string{"A", "E", "B", "C", "D"}},
		{name: "middle becomes next", position: 2, want: []string{"A", "C", "B", "D", "E"}},
		{name: "next stays next", position: 1, want: []string{"A", "B", "C", "D", "E"}},
		{name: "zero rejected", position: 0, wantErr: true},
		{name: "past end rejected", position: 5, wantErr: true},
		{name: "negative rejected", position: -1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sessionWith("A", "B", "C", "D", "E")
			before := titles(s.Items())
			moved, err := s.Jump(tt.position)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrPositionOutOfRange)
				assert.True(t, IsValidation(err))
				assert.Equal(t, before, titles(s.Items()))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, before[tt.position], moved.Title)
			assert.Equal(t, tt.want, titles(s.Items()))

			// jumping to the item that is already next changes nothing
			_, err = s.Jump(1)
			require.NoError(t, err)
			assert.Equal(t, tt.want, titles(s.Items()))
		})
	}
}

func TestRemove(t *testing.T) {
	s := sessionWith("A", "B", "C")

	removed, err := s.Remove(2)
	require.NoError(t, err)
	assert.Equal(t, "C", removed.Title)
	assert.Equal(t, []string{"A", "B"}, titles(s.Items()))

	_, err = s.Remove(0)
	assert.ErrorIs(t, err, ErrPositionOutOfRange)
	_, err = s.Remove(2)
	assert.ErrorIs(t, err, ErrPositionOutOfRange)

	removed, err = s.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, "B", removed.Title)
	assert.Equal(t, []string{"A"}, titles(s.Items()), "head is never removed")

	_, err = s.Remove(1)
	assert.ErrorIs(t, err, ErrPositionOutOfRange)
}

func TestClear(t *testing.T) {
	s := sessionWith("A", "B", "C")
	n, err := s.Clear()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"A"}, titles(s.Items()))

	_, err = s.Clear()
	assert.ErrorIs(t, err, ErrNothingToClear)

	assert.Equal(t, 1, s.ClearAll())
	assert.Nil(t, s.Head())
	assert.Equal(t, 0, s.ClearAll())
}

func TestShuffle(t *testing.T) {
	s := sessionWith("A", "B")
	_, _, err := s.Shuffle()
	assert.ErrorIs(t, err, ErrQueueTooShort)
	assert.Equal(t, []string{"A", "B"}, titles(s.Items()))

	names := make([]string, 0, 30)
	for i := 0; i < 30; i++ {
		names = append(names, fmt.Sprintf("T%02d", i))
	}
	s = sessionWith(names...)
	head := s.Head()

	for round := 0; round < 10; round++ {
		next, upcoming, err := s.Shuffle()
		require.NoError(t, err)
		after := s.Items()
		assert.Same(t, head, after[0])
		assert.Same(t, next, after[1])
		assert.Equal(t, 29, upcoming)
		assert.ElementsMatch(t, names[1:], titles(after[1:]))
	}
}

func TestToggleLoop(t *testing.T) {
	s := New("guild")
	assert.False(t, s.Loop())
	assert.True(t, s.ToggleLoop())
	assert.True(t, s.Loop())
	assert.False(t, s.ToggleLoop())
}

func TestSetVolume(t *testing.T) {
	tests := []struct {
		percent  int
		applied  int
		fraction float64
	}{
		{percent: 250, applied: 200, fraction: 2.0},
		{percent: 0, applied: 1, fraction: 0.01},
		{percent: -5, applied: 1, fraction: 0.01},
		{percent: 50, applied: 50, fraction: 0.5},
		{percent: 200, applied: 200, fraction: 2.0},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.percent), func(t *testing.T) {
			s := New("guild")
			assert.Equal(t, 1.0, s.Volume())
			assert.Equal(t, tt.applied, s.SetVolume(tt.percent))
			assert.InDelta(t, tt.fraction, s.Volume(), 1e-9)
		})
	}
}

func TestDiscardHeadIf(t *testing.T) {
	s := sessionWith("A", "B")
	a := s.Head()
	other := common.NewQueueItem("X", "x", "tester", nil)

	assert.False(t, s.DiscardHeadIf(other))
	assert.True(t, s.DiscardHeadIf(a))
	assert.False(t, s.DiscardHeadIf(a))
	assert.Equal(t, []string{"B"}, titles(s.Items()))
}

func TestCheckVoice(t *testing.T) {
	s := New("guild")
	assert.ErrorIs(t, s.CheckVoice("play", ""), ErrNotInVoice)
	assert.NoError(t, s.CheckVoice("play", "vc1"), "unbound session accepts any channel")

	s.BindVoice("vc1")
	assert.NoError(t, s.CheckVoice("skip", "vc1"))
	err := s.CheckVoice("skip", "vc2")
	assert.ErrorIs(t, err, ErrWrongVoiceChannel)
	assert.True(t, IsValidation(err))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Lookup("g1")
	assert.False(t, ok)

	s1 := r.Get("g1")
	assert.Same(t, s1, r.Get("g1"))
	assert.NotSame(t, s1, r.Get("g2"))
	assert.Equal(t, 2, r.Len())

	got, ok := r.Lookup("g1")
	assert.True(t, ok)
	assert.Same(t, s1, got)
}

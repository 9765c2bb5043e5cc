package relay

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vasu1712/streamsync-backend/internal/domain"
	"github.com/Vasu1712/streamsync-backend/internal/domain/mocks"
	"github.com/Vasu1712/streamsync-backend/internal/room"
	"github.com/Vasu1712/streamsync-backend/internal/session"
)

type fixture struct {
	registry *session.Registry
	bus      *mocks.Broadcaster
	states   *room.States
	members  *room.Manager
	playback *Playback
	chat     *Chat
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry: session.NewRegistry(),
		bus:      mocks.NewBroadcaster(),
		states:   room.NewStates(),
	}
	log := zap.NewNop()
	f.members = room.NewManager(f.registry, f.bus, f.states, log)
	f.playback = NewPlayback(f.registry, f.bus, f.states, log)
	f.chat = NewChat(f.registry, f.bus, f.states, log)
	return f
}

func (f *fixture) connect(t *testing.T, id string, roomID string) {
	t.Helper()
	require.NoError(t, f.registry.Register(id, domain.Identity{}))
	if roomID != "" {
		require.NoError(t, f.members.Join(id, roomID))
	}
}

func (f *fixture) relayed(connID string) []domain.Event {
	var out []domain.Event
	for _, ev := range f.bus.Received(connID) {
		switch ev.Name {
		case domain.EventJoined, domain.EventLeft:
			continue
		}
		out = append(out, ev)
	}
	return out
}

func TestPlayback_BroadcastsToOthersOnly(t *testing.T) {
	tests := []struct {
		name string
		ev   domain.PlaybackEvent
		want domain.Event
	}{
		{name: "play", ev: domain.PlaybackEvent{Kind: domain.Play}, want: domain.Event{Name: domain.EventPlay}},
		{name: "pause", ev: domain.PlaybackEvent{Kind: domain.Pause}, want: domain.Event{Name: domain.EventPause}},
		{name: "seek", ev: domain.PlaybackEvent{Kind: domain.Seek, Position: 125}, want: domain.Event{Name: domain.EventSeek, Data: 125.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.connect(t, "a", "r")
			f.connect(t, "b", "r")
			f.connect(t, "c", "r")

			require.NoError(t, f.playback.Handle("a", tt.ev))

			assert.Equal(t, []domain.Event{tt.want}, f.relayed("b"))
			assert.Equal(t, []domain.Event{tt.want}, f.relayed("c"))
			assert.Empty(t, f.relayed("a"), "sender must not get an echo")
		})
	}
}

func TestPlayback_Seek(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "A", "movie-7")
	f.connect(t, "B", "movie-7")

	require.NoError(t, f.playback.Handle("A", domain.PlaybackEvent{Kind: domain.Seek, Position: 125}))

	assert.Equal(t, []domain.Event{{Name: domain.EventSeek, Data: 125.0}}, f.relayed("B"))
	assert.Empty(t, f.relayed("A"))

	s, err := f.registry.Lookup("A")
	require.NoError(t, err)
	require.NotNil(t, s.LastKnownPosition)
	assert.Equal(t, 125.0, *s.LastKnownPosition)
}

func TestPlayback_RoomSwitch(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "A", "room-x")
	f.connect(t, "X", "room-x")
	f.connect(t, "Y", "room-y")

	require.NoError(t, f.members.Join("A", "room-y"))
	require.NoError(t, f.playback.Handle("A", domain.PlaybackEvent{Kind: domain.Play}))

	assert.Empty(t, f.relayed("X"))
	assert.Equal(t, []domain.Event{{Name: domain.EventPlay}}, f.relayed("Y"))
}

func TestPlayback_DisconnectedMemberSkipped(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "A", "room-z")
	f.connect(t, "B", "room-z")

	require.NoError(t, f.members.Leave("A"))
	require.NoError(t, f.registry.Unregister("A"))

	require.NoError(t, f.playback.Handle("B", domain.PlaybackEvent{Kind: domain.Pause}))
	assert.Empty(t, f.relayed("A"))

	pubs := f.bus.Publications()
	require.Len(t, pubs, 1)
	assert.Empty(t, pubs[0].Recipients)
}

func TestPlayback_UpdatesSessionAndRoomState(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "a", "r")
	t0 := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	f.playback.now = func() time.Time { return t0 }

	require.NoError(t, f.playback.Handle("a", domain.PlaybackEvent{Kind: domain.Seek, Position: 30}))
	require.NoError(t, f.playback.Handle("a", domain.PlaybackEvent{Kind: domain.Play}))

	s, err := f.registry.Lookup("a")
	require.NoError(t, err)
	assert.True(t, s.IsPlaying)

	st, ok := f.states.Snapshot("r", t0.Add(2*time.Second))
	require.True(t, ok)
	assert.True(t, st.IsPlaying)
	assert.InDelta(t, 32.0, st.Position, 1e-9)

	require.NoError(t, f.playback.Handle("a", domain.PlaybackEvent{Kind: domain.Pause}))
	s, err = f.registry.Lookup("a")
	require.NoError(t, err)
	assert.False(t, s.IsPlaying)
}

func TestPlayback_Errors(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "lonely", "")
	f.connect(t, "a", "r")

	err := f.playback.Handle("lonely", domain.PlaybackEvent{Kind: domain.Play})
	assert.ErrorIs(t, err, domain.ErrNotInRoom)

	err = f.playback.Handle("ghost", domain.PlaybackEvent{Kind: domain.Pause})
	assert.ErrorIs(t, err, domain.ErrUnknownConnection)

	err = f.playback.Handle("a", domain.PlaybackEvent{Kind: domain.Seek, Position: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidEvent)

	assert.Empty(t, f.bus.Publications())
}

func TestPlayback_MembershipCheckedBeforePayload(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "lonely", "")

	for _, pos := range []float64{-5, math.NaN(), math.Inf(1)} {
		err := f.playback.Handle("lonely", domain.PlaybackEvent{Kind: domain.Seek, Position: pos})
		assert.ErrorIs(t, err, domain.ErrNotInRoom, "position %v", pos)
		assert.NotErrorIs(t, err, domain.ErrInvalidEvent)
	}
	err := f.playback.Handle("ghost", domain.PlaybackEvent{Kind: domain.Seek, Position: -5})
	assert.ErrorIs(t, err, domain.ErrUnknownConnection)
	assert.Empty(t, f.bus.Publications())
}

func TestPlayback_UnreachableRecipientDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "a", "r")
	f.connect(t, "b", "r")
	f.connect(t, "c", "r")
	f.bus.Unreachable("b")

	require.NoError(t, f.playback.Handle("a", domain.PlaybackEvent{Kind: domain.Play}))

	assert.Equal(t, []domain.Event{{Name: domain.EventPlay}}, f.relayed("c"))
}

func TestChat_SameMessageForEveryone(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "A", "r")
	f.connect(t, "B", "r")
	f.connect(t, "C", "r")
	now := time.Date(2026, 5, 1, 18, 30, 15, 123_000_000, time.FixedZone("X", 3600))
	f.chat.now = func() time.Time { return now }

	require.NoError(t, f.chat.Handle("A", domain.ChatInput{User: "alice", Text: "hi"}))

	want := domain.Event{Name: domain.EventChatMessage, Data: domain.ChatMessage{
		User:      "alice",
		Text:      "hi",
		Timestamp: "2026-05-01T17:30:15.123Z",
	}}
	assert.Equal(t, []domain.Event{want}, f.relayed("B"))
	assert.Equal(t, []domain.Event{want}, f.relayed("C"))
	assert.Empty(t, f.relayed("A"))
}

func TestChat_TimestampsNonDecreasing(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "A", "r")
	f.connect(t, "B", "r")

	t0 := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	clock := []time.Time{t0, t0.Add(-5 * time.Second), t0.Add(time.Second)}
	i := 0
	f.chat.now = func() time.Time {
		ts := clock[i]
		i++
		return ts
	}

	for _, text := range []string{"one", "two", "three"} {
		require.NoError(t, f.chat.Handle("A", domain.ChatInput{User: "alice", Text: text}))
	}

	got := f.relayed("B")
	require.Len(t, got, 3)
	var prev string
	for _, ev := range got {
		ts := ev.Data.(domain.ChatMessage).Timestamp
		assert.GreaterOrEqual(t, ts, prev)
		prev = ts
	}
	assert.Equal(t, "2026-05-01T18:00:00.000Z", got[1].Data.(domain.ChatMessage).Timestamp)
}

func TestChat_AuthorFallback(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.registry.Register("named", domain.Identity{UserID: "u-1", Name: "Bob"}))
	require.NoError(t, f.registry.Register("idonly", domain.Identity{UserID: "u-2"}))
	require.NoError(t, f.registry.Register("anon", domain.Identity{}))
	f.connect(t, "listener", "r")
	for _, id := range []string{"named", "idonly", "anon"} {
		require.NoError(t, f.members.Join(id, "r"))
	}

	require.NoError(t, f.chat.Handle("named", domain.ChatInput{Text: "a"}))
	require.NoError(t, f.chat.Handle("idonly", domain.ChatInput{User: "  ", Text: "b"}))
	require.NoError(t, f.chat.Handle("anon", domain.ChatInput{Text: "c"}))

	got := f.relayed("listener")
	require.Len(t, got, 3)
	assert.Equal(t, "Bob", got[0].Data.(domain.ChatMessage).User)
	assert.Equal(t, "u-2", got[1].Data.(domain.ChatMessage).User)
	assert.Equal(t, "anon", got[2].Data.(domain.ChatMessage).User)
}

func TestChat_Errors(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "lonely", "")
	f.connect(t, "a", "r")

	assert.ErrorIs(t, f.chat.Handle("lonely", domain.ChatInput{Text: "hi"}), domain.ErrNotInRoom)
	assert.ErrorIs(t, f.chat.Handle("ghost", domain.ChatInput{Text: "hi"}), domain.ErrUnknownConnection)
	assert.ErrorIs(t, f.chat.Handle("a", domain.ChatInput{Text: "  "}), domain.ErrInvalidEvent)
	assert.Empty(t, f.bus.Publications())
}

func TestChat_MembershipCheckedBeforeText(t *testing.T) {
	f := newFixture(t)
	f.connect(t, "lonely", "")

	for _, text := range []string{"", "   "} {
		err := f.chat.Handle("lonely", domain.ChatInput{Text: text})
		assert.ErrorIs(t, err, domain.ErrNotInRoom)
		assert.NotErrorIs(t, err, domain.ErrInvalidEvent)
	}
	assert.ErrorIs(t, f.chat.Handle("ghost", domain.ChatInput{}), domain.ErrUnknownConnection)
	assert.Empty(t, f.bus.Publications())
}

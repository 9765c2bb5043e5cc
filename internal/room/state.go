package room

import (
	"sync"
	"time"

	"github.com/Vasu1712/streamsync-backend/internal/domain"
)

type entry struct {
	state    domain.RoomState
	known    bool
	lastChat time.Time
}

// States holds the ephemeral per-room data that outlives a single event:
// the shared playback snapshot handed to late joiners and the chat clock.
// Nothing here is persisted; a room's entry is dropped when it empties.
type States struct {
	mu    sync.Mutex
	rooms map[string]*entry
}

// NewStates returns an empty set of room playback states.
func NewStates() *States {
	return &States{rooms: make(map[string]*entry)}
}

func (s *States) get(roomID string) *entry {
	e, ok := s.rooms[roomID]
	if !ok {
		e = &entry{}
		s.rooms[roomID] = e
	}
	return e
}

// Apply folds a playback event into the room snapshot. Concurrent updates
// are last-applied-wins.
func (s *States) Apply(roomID string, ev domain.PlaybackEvent, at time.Time) domain.RoomState {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(roomID)
	pos := e.state.PositionAt(at)
	switch ev.Kind {
	case domain.Play:
		e.state.IsPlaying = true
	case domain.Pause:
		e.state.IsPlaying = false
	case domain.Seek:
		pos = ev.Position
	}
	e.state.Position = pos
	e.state.UpdatedAt = at
	e.known = true
	return e.state
}

// Snapshot returns the room's state as of now, with the position
// extrapolated while playing.
func (s *States) Snapshot(roomID string, now time.Time) (domain.RoomState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.rooms[roomID]
	if !ok || !e.known {
		return domain.RoomState{}, false
	}
	return domain.RoomState{
		IsPlaying: e.state.IsPlaying,
		Position:  e.state.PositionAt(now),
		UpdatedAt: now,
	}, true
}

// StampChat returns the timestamp for the next chat message in roomID,
// never earlier than the previous one even if the wall clock steps back.
func (s *States) StampChat(roomID string, now time.Time) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.get(roomID)
	if now.Before(e.lastChat) {
		now = e.lastChat
	}
	e.lastChat = now
	return now
}

// Drop forgets the playback state of roomID.
func (s *States) Drop(roomID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, roomID)
}

func (s *States) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}

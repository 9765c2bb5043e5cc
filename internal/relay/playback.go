package relay

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/Vasu1712/streamsync-backend/internal/domain"
	"github.com/Vasu1712/streamsync-backend/internal/room"
	"github.com/Vasu1712/streamsync-backend/internal/session"
)

// Playback relays play, pause and seek from one member to the rest of its
// room. The sender never gets its own event back.
type Playback struct {
	registry    *session.Registry
	broadcaster domain.RoomBroadcaster
	states      *room.States
	log         *zap.Logger
	now         func() time.Time
}

// NewPlayback returns a playback relay that records room state in states
// and publishes through b.
func NewPlayback(registry *session.Registry, b domain.RoomBroadcaster, states *room.States, log *zap.Logger) *Playback {
	return &Playback{
		registry:    registry,
		broadcaster: b,
		states:      states,
		log:         log,
		now:         time.Now,
	}
}

// Handle relays ev from connID. A client outside any room gets
// ErrNotInRoom whatever the payload.
func (p *Playback) Handle(connID string, ev domain.PlaybackEvent) error {
	s, err := p.registry.Lookup(connID)
	if err != nil {
		return err
	}
	if !s.InRoom() {
		return fmt.Errorf("%s: %w", ev.Kind, domain.ErrNotInRoom)
	}
	if ev.Kind == domain.Seek && (ev.Position < 0 || math.IsNaN(ev.Position) || math.IsInf(ev.Position, 0)) {
		return fmt.Errorf("seek to %v: %w", ev.Position, domain.ErrInvalidEvent)
	}

	s, err = p.registry.Update(connID, func(s *session.Session) {
		switch ev.Kind {
		case domain.Play:
			s.IsPlaying = true
		case domain.Pause:
			s.IsPlaying = false
		case domain.Seek:
			pos := ev.Position
			s.LastKnownPosition = &pos
		}
	})
	if err != nil {
		return err
	}
	p.states.Apply(s.CurrentRoomID, ev, p.now())

	out := domain.Event{Name: ev.Kind.String()}
	if ev.Kind == domain.Seek {
		out.Data = ev.Position
	}
	res := p.broadcaster.Publish(s.CurrentRoomID, out, connID)

	p.log.Debug("playback relayed",
		zap.String("conn_id", connID),
		zap.String("room_id", s.CurrentRoomID),
		zap.String("event", out.Name),
		zap.Int("delivered", res.Delivered),
		zap.Int("dropped", len(res.Dropped)))
	return nil
}

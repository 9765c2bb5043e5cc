package room

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Vasu1712/streamsync-backend/internal/domain"
	"github.com/Vasu1712/streamsync-backend/internal/session"
)

// Manager keeps every connection in at most one room and mirrors that
// membership into the transport's broadcast groups.
type Manager struct {
	registry    *session.Registry
	broadcaster domain.RoomBroadcaster
	states      *States
	log         *zap.Logger
	now         func() time.Time
}

// NewManager returns a Manager that tracks membership in registry and
// mirrors it into b.
func NewManager(registry *session.Registry, b domain.RoomBroadcaster, states *States, log *zap.Logger) *Manager {
	return &Manager{
		registry:    registry,
		broadcaster: b,
		states:      states,
		log:         log,
		now:         time.Now,
	}
}

// Join moves connID into roomID, leaving any previous room first.
// Re-joining the current room only re-confirms group membership.
func (m *Manager) Join(connID, roomID string) error {
	roomID = strings.TrimSpace(roomID)
	if roomID == "" {
		return fmt.Errorf("join: %w", domain.ErrInvalidRoom)
	}

	s, err := m.registry.Lookup(connID)
	if err != nil {
		return err
	}

	if s.CurrentRoomID != roomID {
		if s.InRoom() {
			m.leave(connID, s.CurrentRoomID)
		}
		if _, err := m.registry.Update(connID, func(s *session.Session) {
			s.CurrentRoomID = roomID
			s.IsPlaying = false
		}); err != nil {
			return err
		}
	}
	m.broadcaster.Join(connID, roomID)

	joined := domain.JoinedPayload{
		RoomID:  roomID,
		Members: m.broadcaster.Members(roomID),
	}
	if state, ok := m.states.Snapshot(roomID, m.now()); ok {
		joined.State = &state
	}
	if err := m.broadcaster.SendTo(connID, domain.Event{Name: domain.EventJoined, Data: joined}); err != nil {
		m.log.Debug("join ack not delivered", zap.String("conn_id", connID), zap.Error(err))
	}

	m.log.Info("joined room",
		zap.String("conn_id", connID),
		zap.String("room_id", roomID),
		zap.String("previous_room_id", s.CurrentRoomID),
		zap.Int("members", joined.Members))
	return nil
}

// Leave removes connID from its current room. It is a no-op when the
// connection is in no room.
func (m *Manager) Leave(connID string) error {
	s, err := m.registry.Lookup(connID)
	if err != nil {
		return err
	}
	if !s.InRoom() {
		return nil
	}
	m.leave(connID, s.CurrentRoomID)
	return nil
}

// LeaveRoom handles an explicit leaveRoom from the client. A blank id means
// the current room; an id naming some other room is ignored.
func (m *Manager) LeaveRoom(connID, roomID string) error {
	s, err := m.registry.Lookup(connID)
	if err != nil {
		return err
	}
	roomID = strings.TrimSpace(roomID)
	if !s.InRoom() || (roomID != "" && roomID != s.CurrentRoomID) {
		m.log.Debug("leaveRoom ignored",
			zap.String("conn_id", connID),
			zap.String("room_id", roomID),
			zap.String("current_room_id", s.CurrentRoomID))
		return nil
	}

	left := s.CurrentRoomID
	m.leave(connID, left)
	if err := m.broadcaster.SendTo(connID, domain.Event{Name: domain.EventLeft, Data: domain.LeftPayload{RoomID: left}}); err != nil {
		m.log.Debug("leave ack not delivered", zap.String("conn_id", connID), zap.Error(err))
	}
	return nil
}

func (m *Manager) leave(connID, roomID string) {
	m.broadcaster.Leave(connID, roomID)
	_, _ = m.registry.Update(connID, func(s *session.Session) {
		if s.CurrentRoomID == roomID {
			s.CurrentRoomID = ""
		}
	})

	remaining := m.broadcaster.Members(roomID)
	if remaining == 0 {
		m.states.Drop(roomID)
	}
	m.log.Info("left room",
		zap.String("conn_id", connID),
		zap.String("room_id", roomID),
		zap.Int("members", remaining))
}

package relay

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Vasu1712/streamsync-backend/internal/domain"
	"github.com/Vasu1712/streamsync-backend/internal/room"
	"github.com/Vasu1712/streamsync-backend/internal/session"
)

// Chat stamps chat messages with the server clock and relays them to the
// other members of the sender's room. Messages are never stored.
type Chat struct {
	registry    *session.Registry
	broadcaster domain.RoomBroadcaster
	states      *room.States
	log         *zap.Logger
	now         func() time.Time
}

// NewChat returns a chat relay publishing through b.
func NewChat(registry *session.Registry, b domain.RoomBroadcaster, states *room.States, log *zap.Logger) *Chat {
	return &Chat{
		registry:    registry,
		broadcaster: b,
		states:      states,
		log:         log,
		now:         time.Now,
	}
}

// Handle stamps in and sends it to every other member of the sender's room.
// Membership is checked before the message itself.
func (c *Chat) Handle(connID string, in domain.ChatInput) error {
	s, err := c.registry.Lookup(connID)
	if err != nil {
		return err
	}
	if !s.InRoom() {
		return fmt.Errorf("chat: %w", domain.ErrNotInRoom)
	}
	if strings.TrimSpace(in.Text) == "" {
		return fmt.Errorf("chat: empty text: %w", domain.ErrInvalidEvent)
	}

	stamp := c.states.StampChat(s.CurrentRoomID, c.now().UTC())
	msg := domain.ChatMessage{
		User:      author(in, s),
		Text:      in.Text,
		Timestamp: stamp.Format(domain.TimestampLayout),
	}
	res := c.broadcaster.Publish(s.CurrentRoomID, domain.Event{Name: domain.EventChatMessage, Data: msg}, connID)

	c.log.Debug("chat relayed",
		zap.String("conn_id", connID),
		zap.String("room_id", s.CurrentRoomID),
		zap.String("user", msg.User),
		zap.Int("delivered", res.Delivered),
		zap.Int("dropped", len(res.Dropped)))
	return nil
}

func author(in domain.ChatInput, s session.Session) string {
	for _, name := range []string{in.User, s.Identity.Name, s.Identity.UserID} {
		if name = strings.TrimSpace(name); name != "" {
			return name
		}
	}
	return s.ConnectionID
}

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Vasu1712/streamsync-backend/internal/domain"
	"github.com/Vasu1712/streamsync-backend/internal/relay"
	"github.com/Vasu1712/streamsync-backend/internal/room"
)

// Frame is one inbound client message: {"event": "...", "data": ...}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Router decodes inbound frames and hands them to membership and the relays.
// Protocol errors are reported to the sender as "error" frames.
type Router struct {
	membership  *room.Manager
	playback    *relay.Playback
	chat        *relay.Chat
	broadcaster domain.RoomBroadcaster
	log         *zap.Logger
	now         func() time.Time
}

// NewRouter returns a Router dispatching to the membership, playback and
// chat handlers. Errors are acknowledged to the sender through b.
func NewRouter(m *room.Manager, p *relay.Playback, c *relay.Chat, b domain.RoomBroadcaster, log *zap.Logger) *Router {
	return &Router{
		membership:  m,
		playback:    p,
		chat:        c,
		broadcaster: b,
		log:         log,
		now:         time.Now,
	}
}

// Handle decodes one inbound frame from connID and dispatches it. Failures
// are answered with an error event rather than returned.
func (r *Router) Handle(connID string, data []byte) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		r.log.Warn("invalid frame", zap.String("conn_id", connID), zap.Error(err))
		r.fail(connID, fmt.Errorf("malformed frame: %w", domain.ErrInvalidEvent))
		return
	}

	if err := r.dispatch(connID, f); err != nil {
		r.fail(connID, err)
	}
}

func (r *Router) dispatch(connID string, f Frame) error {
	switch f.Event {
	case domain.EventJoinRoom:
		var roomID string
		if err := decode(f, &roomID); err != nil {
			return err
		}
		return r.membership.Join(connID, roomID)

	case domain.EventLeaveRoom:
		var roomID string
		if len(f.Data) > 0 {
			if err := decode(f, &roomID); err != nil {
				return err
			}
		}
		return r.membership.LeaveRoom(connID, roomID)

	case domain.EventPlay:
		return r.playback.Handle(connID, domain.PlaybackEvent{Kind: domain.Play})

	case domain.EventPause:
		return r.playback.Handle(connID, domain.PlaybackEvent{Kind: domain.Pause})

	case domain.EventSeek:
		var pos float64
		if err := decode(f, &pos); err != nil {
			return err
		}
		return r.playback.Handle(connID, domain.PlaybackEvent{Kind: domain.Seek, Position: pos})

	case domain.EventChatMessage:
		var in domain.ChatInput
		if err := decode(f, &in); err != nil {
			return err
		}
		return r.chat.Handle(connID, in)

	case domain.EventPing:
		var echo any
		if len(f.Data) > 0 {
			_ = json.Unmarshal(f.Data, &echo)
		}
		pong := domain.PongPayload{Echo: echo, ServerTime: r.now().UTC().Format(domain.TimestampLayout)}
		if err := r.broadcaster.SendTo(connID, domain.Event{Name: domain.EventPong, Data: pong}); err != nil {
			r.log.Debug("pong not delivered", zap.String("conn_id", connID), zap.Error(err))
		}
		return nil

	default:
		return fmt.Errorf("%q: %w", f.Event, domain.ErrUnknownEvent)
	}
}

func decode(f Frame, v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%s: missing data: %w", f.Event, domain.ErrInvalidEvent)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%s: %v: %w", f.Event, err, domain.ErrInvalidEvent)
	}
	return nil
}

func (r *Router) fail(connID string, err error) {
	if errors.Is(err, domain.ErrUnknownConnection) {
		r.log.Debug("event for unknown connection dropped", zap.String("conn_id", connID), zap.Error(err))
		return
	}

	code, ok := domain.ErrorCode(err)
	if !ok {
		r.log.Error("event handling failed", zap.String("conn_id", connID), zap.Error(err))
		return
	}
	r.log.Debug("protocol error", zap.String("conn_id", connID), zap.String("code", code), zap.Error(err))

	ack := domain.Event{Name: domain.EventError, Data: domain.ErrorPayload{Code: code, Message: err.Error()}}
	if sendErr := r.broadcaster.SendTo(connID, ack); sendErr != nil {
		r.log.Debug("error ack not delivered", zap.String("conn_id", connID), zap.Error(sendErr))
	}
}

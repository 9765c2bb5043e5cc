package domain

import "time"

// Client -> server event names.
const (
	EventJoinRoom    = "joinRoom"
	EventLeaveRoom   = "leaveRoom"
	EventPlay        = "play"
	EventPause       = "pause"
	EventSeek        = "seek"
	EventChatMessage = "chatMessage"
	EventPing        = "ping"
)

// Server -> client event names. play, pause, seek and chatMessage are
// relayed under the same names they arrive with.
const (
	EventJoined = "joined"
	EventLeft   = "left"
	EventPong   = "pong"
	EventError  = "error"
)

// TimestampLayout renders server timestamps as ISO-8601 UTC with millisecond
// precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Identity is whatever the auth collaborator attached to a connection.
// Both fields may be empty for anonymous connections.
type Identity struct {
	UserID string `json:"userId,omitempty"`
	Name   string `json:"name,omitempty"`
}

// Event is one outbound frame: {"event": Name, "data": Data}.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

type Connection interface {
	ID() string
	Deliver(frame []byte) error
	Close() error
}

// PublishResult reports how a room broadcast went.
type PublishResult struct {
	Delivered int
	Dropped   []string
}

// RoomBroadcaster is the transport's room-scoped broadcast group primitive.
type RoomBroadcaster interface {
	Join(connID, roomID string)
	Leave(connID, roomID string)
	// Publish delivers ev to every member of roomID except excluding.
	Publish(roomID string, ev Event, excluding string) PublishResult
	SendTo(connID string, ev Event) error
	Members(roomID string) int
}

type PlaybackKind int

const (
	Play PlaybackKind = iota
	Pause
	Seek
)

func (k PlaybackKind) String() string {
	switch k {
	case Play:
		return EventPlay
	case Pause:
		return EventPause
	case Seek:
		return EventSeek
	default:
		return "unknown"
	}
}

type PlaybackEvent struct {
	Kind     PlaybackKind
	Position float64
}

// ChatInput is what a client sends; it never carries a timestamp.
type ChatInput struct {
	User string `json:"user"`
	Text string `json:"text"`
}

type ChatMessage struct {
	User      string `json:"user"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// RoomState is the last known shared playback state of a room.
type RoomState struct {
	IsPlaying bool      `json:"isPlaying"`
	Position  float64   `json:"position"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PositionAt extrapolates the playback position to now.
func (s RoomState) PositionAt(now time.Time) float64 {
	if !s.IsPlaying || now.Before(s.UpdatedAt) {
		return s.Position
	}
	return s.Position + now.Sub(s.UpdatedAt).Seconds()
}

type JoinedPayload struct {
	RoomID  string     `json:"roomId"`
	Members int        `json:"members"`
	State   *RoomState `json:"state,omitempty"`
}

type LeftPayload struct {
	RoomID string `json:"roomId"`
}

type PongPayload struct {
	Echo       any    `json:"echo,omitempty"`
	ServerTime string `json:"serverTime"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

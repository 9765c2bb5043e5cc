package domain

import "errors"

var (
	ErrAlreadyRegistered = errors.New("connection already registered")
	ErrUnknownConnection = errors.New("unknown connection")
	ErrNotInRoom         = errors.New("connection is not in a room")
	ErrInvalidRoom       = errors.New("invalid room id")
	ErrInvalidEvent      = errors.New("invalid event")
	ErrUnknownEvent      = errors.New("unknown event")
)

// Error codes carried by outbound "error" frames.
const (
	CodeNotInRoom    = "not_in_room"
	CodeInvalidRoom  = "invalid_room"
	CodeInvalidEvent = "invalid_event"
	CodeUnknownEvent = "unknown_event"
)

// ErrorCode maps a protocol error to its wire code. ok is false for errors
// that are not reported back to the sender.
func ErrorCode(err error) (code string, ok bool) {
	switch {
	case errors.Is(err, ErrNotInRoom):
		return CodeNotInRoom, true
	case errors.Is(err, ErrInvalidRoom):
		return CodeInvalidRoom, true
	case errors.Is(err, ErrInvalidEvent):
		return CodeInvalidEvent, true
	case errors.Is(err, ErrUnknownEvent):
		return CodeUnknownEvent, true
	default:
		return "", false
	}
}

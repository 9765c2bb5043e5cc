// Package storage defines the room persistence contract shared by the
// memory, postgres and valkey backends.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/Vasu1712/streamsync-backend/internal/models"
)

var (
	ErrRoomNotFound       = errors.New("room not found")
	ErrAlreadyParticipant = errors.New("user already a participant")
	ErrNotParticipant     = errors.New("user is not a participant")
	ErrRoomFull           = errors.New("room is full")
)

// RoomStore persists rooms and their participant lists.
type RoomStore interface {
	// CreateRoom stores room with its host as the first participant. An
	// empty ID is filled in.
	CreateRoom(ctx context.Context, room *models.Room) (*models.Room, error)
	// GetRoom returns ErrRoomNotFound for unknown ids.
	GetRoom(ctx context.Context, roomID string) (*models.Room, error)
	DeleteRoom(ctx context.Context, roomID string) error
	// UpdateRoomSettings applies only the non-empty fields of settings.
	UpdateRoomSettings(ctx context.Context, roomID string, settings models.RoomSettings) (*models.Room, error)
	// AddParticipant fails with ErrAlreadyParticipant or ErrRoomFull.
	AddParticipant(ctx context.Context, roomID, userID string) (*models.Room, error)
	// RemoveParticipant fails with ErrNotParticipant when userID is absent.
	RemoveParticipant(ctx context.Context, roomID, userID string) (*models.Room, error)
	// ListRoomsForUser returns rooms the user hosts or participates in,
	// newest first.
	ListRoomsForUser(ctx context.Context, userID string) ([]*models.Room, error)
	Close() error
}

// Prepare fills the fields every backend sets on create: id, default
// mode, active flag, timestamps and the host as first participant.
func Prepare(room *models.Room, now time.Time) {
	if room.ID == "" {
		room.ID = uuid.NewString()
	}
	if room.Mode == "" {
		room.Mode = models.ModePublic
	}
	if room.Tags == nil {
		room.Tags = []string{}
	}
	participants := []string{room.Host}
	for _, p := range room.Participants {
		if p != room.Host {
			participants = append(participants, p)
		}
	}
	room.Participants = participants
	room.IsActive = true
	room.CreatedAt = now.UTC()
	room.UpdatedAt = room.CreatedAt
}

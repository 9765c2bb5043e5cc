package models

import (
	"slices"
	"time"
)

type RoomMode string

const (
	ModePublic  RoomMode = "public"
	ModePrivate RoomMode = "private"
)

func (m RoomMode) Valid() bool {
	return m == ModePublic || m == ModePrivate
}

// Room is a persisted watch party. Live playback state is never stored here.
type Room struct {
	ID           string    `json:"roomId"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Host         string    `json:"host"`  // user id of the creator
	Movie        string    `json:"movie"` // movie id the room is watching
	Mode         RoomMode  `json:"mode"`
	Tags         []string  `json:"tags"`
	Participants []string  `json:"participants"`
	MaxCapacity  int       `json:"maxCapacity"` // 0 means unlimited
	IsActive     bool      `json:"isActive"`
	PasscodeHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (r *Room) HasParticipant(userID string) bool {
	return slices.Contains(r.Participants, userID)
}

// Full reports whether no one else may be added.
func (r *Room) Full() bool {
	return r.MaxCapacity > 0 && len(r.Participants) >= r.MaxCapacity
}

// RoomSettings holds the host-editable fields. Empty fields are left as is.
type RoomSettings struct {
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Mode        RoomMode `json:"mode,omitempty"`
}

// Apply copies the non-empty settings onto r.
func (s RoomSettings) Apply(r *Room) {
	if s.Name != "" {
		r.Name = s.Name
	}
	if s.Description != "" {
		r.Description = s.Description
	}
	if s.Mode != "" {
		r.Mode = s.Mode
	}
}

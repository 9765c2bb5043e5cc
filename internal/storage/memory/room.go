package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Vasu1712/streamsync-backend/internal/models"
	"github.com/Vasu1712/streamsync-backend/internal/storage"
)

var _ storage.RoomStore = (*RoomStore)(nil)

// RoomStore keeps rooms in a map. Callers always get copies.
type RoomStore struct {
	mu    sync.RWMutex
	rooms map[string]*models.Room
	log   *zap.Logger
	now   func() time.Time
}

// NewRoomStore creates and returns an empty in-memory RoomStore.
func NewRoomStore(log *zap.Logger) *RoomStore {
	return &RoomStore{
		rooms: make(map[string]*models.Room),
		log:   log,
		now:   time.Now,
	}
}

// CreateRoom stores a copy of room and returns it.
func (s *RoomStore) CreateRoom(_ context.Context, room *models.Room) (*models.Room, error) {
	r := clone(room)
	storage.Prepare(r, s.now())

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.rooms[r.ID]; exists {
		return nil, fmt.Errorf("create room %s: id already taken", r.ID)
	}
	s.rooms[r.ID] = r

	s.log.Info("room created", zap.String("room_id", r.ID), zap.String("host", r.Host))
	return clone(r), nil
}

// GetRoom retrieves a room by its ID.
func (s *RoomStore) GetRoom(_ context.Context, roomID string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, storage.ErrRoomNotFound
	}
	return clone(r), nil
}

// DeleteRoom removes a room by its ID.
func (s *RoomStore) DeleteRoom(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[roomID]; !ok {
		return storage.ErrRoomNotFound
	}
	delete(s.rooms, roomID)
	s.log.Info("room deleted", zap.String("room_id", roomID))
	return nil
}

// UpdateRoomSettings applies the non-empty settings to the room.
func (s *RoomStore) UpdateRoomSettings(_ context.Context, roomID string, settings models.RoomSettings) (*models.Room, error) {
	return s.mutate(roomID, func(r *models.Room) error {
		settings.Apply(r)
		return nil
	})
}

// AddParticipant adds userID to the room unless it is full or they
// already joined.
func (s *RoomStore) AddParticipant(_ context.Context, roomID, userID string) (*models.Room, error) {
	return s.mutate(roomID, func(r *models.Room) error {
		if r.HasParticipant(userID) {
			return storage.ErrAlreadyParticipant
		}
		if r.Full() {
			return storage.ErrRoomFull
		}
		r.Participants = append(r.Participants, userID)
		return nil
	})
}

// RemoveParticipant removes userID from the room.
func (s *RoomStore) RemoveParticipant(_ context.Context, roomID, userID string) (*models.Room, error) {
	return s.mutate(roomID, func(r *models.Room) error {
		i := slices.Index(r.Participants, userID)
		if i < 0 {
			return storage.ErrNotParticipant
		}
		r.Participants = slices.Delete(r.Participants, i, i+1)
		return nil
	})
}

// ListRoomsForUser retrieves every room userID hosts or has joined,
// newest first.
func (s *RoomStore) ListRoomsForUser(_ context.Context, userID string) ([]*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rooms := []*models.Room{}
	for _, r := range s.rooms {
		if r.Host == userID || r.HasParticipant(userID) {
			rooms = append(rooms, clone(r))
		}
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.After(rooms[j].CreatedAt) })
	return rooms, nil
}

func (s *RoomStore) Close() error { return nil }

// mutate applies fn to the stored room under the write lock and bumps
// UpdatedAt when fn succeeds.
func (s *RoomStore) mutate(roomID string, fn func(*models.Room) error) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, storage.ErrRoomNotFound
	}
	if err := fn(r); err != nil {
		return nil, err
	}
	r.UpdatedAt = s.now().UTC()
	return clone(r), nil
}

func clone(r *models.Room) *models.Room {
	c := *r
	c.Tags = slices.Clone(r.Tags)
	c.Participants = slices.Clone(r.Participants)
	return &c
}

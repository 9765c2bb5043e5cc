// Package valkey stores rooms as JSON documents in Valkey, with one set per
// user indexing the rooms they host or joined.
package valkey

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/valkey-io/valkey-go"
	"go.uber.org/zap"

	"github.com/Vasu1712/streamsync-backend/internal/models"
	"github.com/Vasu1712/streamsync-backend/internal/storage"
)

var _ storage.RoomStore = (*RoomStore)(nil)

const maxTxRetries = 5

var errConflict = errors.New("room changed during update")

type Options struct {
	Addr     string
	Password string
	DB       int
}

// record is the stored form; unlike the API form it keeps the passcode hash.
type record struct {
	models.Room
	PasscodeHash string `json:"passcodeHash,omitempty"`
}

func roomKey(roomID string) string { return "room:" + roomID }
func userKey(userID string) string { return "user:" + userID + ":rooms" }

type RoomStore struct {
	client valkey.Client
	log    *zap.Logger
}

// NewRoomStore connects to Valkey and pings it before returning.
func NewRoomStore(ctx context.Context, opts Options, log *zap.Logger) (*RoomStore, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{opts.Addr},
		Password:    opts.Password,
		SelectDB:    opts.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create valkey client: %w", err)
	}
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to reach valkey at %s: %w", opts.Addr, err)
	}
	log.Info("connected to valkey room store", zap.String("addr", opts.Addr), zap.Int("db", opts.DB))
	return &RoomStore{client: client, log: log}, nil
}

// CreateRoom stores the room with SET NX and indexes it for each
// participant.
func (s *RoomStore) CreateRoom(ctx context.Context, room *models.Room) (*models.Room, error) {
	r := *room
	storage.Prepare(&r, time.Now())
	data, err := encode(&r)
	if err != nil {
		return nil, err
	}

	err = s.client.Do(ctx, s.client.B().Set().Key(roomKey(r.ID)).Value(data).Nx().Build()).Error()
	if valkey.IsValkeyNil(err) {
		return nil, fmt.Errorf("create room %s: id already taken", r.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("create room %s: %w", r.ID, err)
	}

	cmds := make(valkey.Commands, 0, len(r.Participants))
	for _, userID := range r.Participants {
		cmds = append(cmds, s.client.B().Sadd().Key(userKey(userID)).Member(r.ID).Build())
	}
	for _, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return nil, fmt.Errorf("index room %s: %w", r.ID, err)
		}
	}

	s.log.Info("room created", zap.String("room_id", r.ID), zap.String("host", r.Host))
	return &r, nil
}

// GetRoom retrieves a room by its ID.
func (s *RoomStore) GetRoom(ctx context.Context, roomID string) (*models.Room, error) {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(roomKey(roomID)).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, storage.ErrRoomNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get room %s: %w", roomID, err)
	}
	return decode(raw)
}

// DeleteRoom removes the document and drops it from every member index.
func (s *RoomStore) DeleteRoom(ctx context.Context, roomID string) error {
	r, err := s.GetRoom(ctx, roomID)
	if err != nil {
		return err
	}

	cmds := valkey.Commands{s.client.B().Del().Key(roomKey(roomID)).Build()}
	for _, userID := range append([]string{r.Host}, r.Participants...) {
		cmds = append(cmds, s.client.B().Srem().Key(userKey(userID)).Member(roomID).Build())
	}
	for _, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("delete room %s: %w", roomID, err)
		}
	}
	s.log.Info("room deleted", zap.String("room_id", roomID))
	return nil
}

// UpdateRoomSettings applies the non-empty settings.
func (s *RoomStore) UpdateRoomSettings(ctx context.Context, roomID string, settings models.RoomSettings) (*models.Room, error) {
	return s.update(ctx, roomID, func(r *models.Room) (indexOp, error) {
		settings.Apply(r)
		return indexOp{}, nil
	})
}

// AddParticipant adds userID and indexes the room for them.
func (s *RoomStore) AddParticipant(ctx context.Context, roomID, userID string) (*models.Room, error) {
	return s.update(ctx, roomID, func(r *models.Room) (indexOp, error) {
		if r.HasParticipant(userID) {
			return indexOp{}, storage.ErrAlreadyParticipant
		}
		if r.Full() {
			return indexOp{}, storage.ErrRoomFull
		}
		r.Participants = append(r.Participants, userID)
		return indexOp{add: userID}, nil
	})
}

// RemoveParticipant removes userID and drops the room from their index.
func (s *RoomStore) RemoveParticipant(ctx context.Context, roomID, userID string) (*models.Room, error) {
	return s.update(ctx, roomID, func(r *models.Room) (indexOp, error) {
		kept := r.Participants[:0]
		for _, p := range r.Participants {
			if p != userID {
				kept = append(kept, p)
			}
		}
		if len(kept) == len(r.Participants) {
			return indexOp{}, storage.ErrNotParticipant
		}
		r.Participants = kept
		op := indexOp{}
		if userID != r.Host {
			op.remove = userID
		}
		return op, nil
	})
}

// ListRoomsForUser reads the user index and loads each room. Ids whose
// document is gone are skipped.
func (s *RoomStore) ListRoomsForUser(ctx context.Context, userID string) ([]*models.Room, error) {
	ids, err := s.client.Do(ctx, s.client.B().Smembers().Key(userKey(userID)).Build()).AsStrSlice()
	if err != nil {
		return nil, fmt.Errorf("list rooms for %s: %w", userID, err)
	}

	rooms := []*models.Room{}
	if len(ids) == 0 {
		return rooms, nil
	}
	cmds := make(valkey.Commands, 0, len(ids))
	for _, id := range ids {
		cmds = append(cmds, s.client.B().Get().Key(roomKey(id)).Build())
	}
	for i, res := range s.client.DoMulti(ctx, cmds...) {
		raw, err := res.AsBytes()
		if valkey.IsValkeyNil(err) {
			s.log.Debug("stale room index entry", zap.String("user_id", userID), zap.String("room_id", ids[i]))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load room %s: %w", ids[i], err)
		}
		r, err := decode(raw)
		if err != nil {
			return nil, err
		}
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].CreatedAt.After(rooms[j].CreatedAt) })
	return rooms, nil
}

// Close closes the client.
func (s *RoomStore) Close() error {
	s.client.Close()
	return nil
}

// indexOp names a user whose room index gains or loses the room.
type indexOp struct {
	add    string
	remove string
}

// update runs fn as a read-modify-write guarded by WATCH, retrying when
// another writer got there first.
func (s *RoomStore) update(ctx context.Context, roomID string, fn func(*models.Room) (indexOp, error)) (*models.Room, error) {
	key := roomKey(roomID)
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		var out *models.Room
		err := s.client.Dedicated(func(c valkey.DedicatedClient) error {
			if err := c.Do(ctx, c.B().Watch().Key(key).Build()).Error(); err != nil {
				return err
			}
			r, op, data, err := read(ctx, c, key, fn)
			if err != nil {
				_ = c.Do(ctx, c.B().Unwatch().Build()).Error()
				return err
			}

			cmds := valkey.Commands{c.B().Multi().Build(), c.B().Set().Key(key).Value(data).Build()}
			if op.add != "" {
				cmds = append(cmds, c.B().Sadd().Key(userKey(op.add)).Member(roomID).Build())
			}
			if op.remove != "" {
				cmds = append(cmds, c.B().Srem().Key(userKey(op.remove)).Member(roomID).Build())
			}
			cmds = append(cmds, c.B().Exec().Build())

			results := c.DoMulti(ctx, cmds...)
			if err := results[len(results)-1].Error(); err != nil {
				if valkey.IsValkeyNil(err) {
					return errConflict
				}
				return err
			}
			out = r
			return nil
		})
		if errors.Is(err, errConflict) {
			s.log.Debug("retrying room update", zap.String("room_id", roomID), zap.Int("attempt", attempt+1))
			continue
		}
		if err != nil {
			if errors.Is(err, storage.ErrRoomNotFound) || errors.Is(err, storage.ErrAlreadyParticipant) ||
				errors.Is(err, storage.ErrNotParticipant) || errors.Is(err, storage.ErrRoomFull) {
				return nil, err
			}
			return nil, fmt.Errorf("update room %s: %w", roomID, err)
		}
		return out, nil
	}
	return nil, fmt.Errorf("update room %s: %w", roomID, errConflict)
}

// read loads the watched room and applies fn to it. Any error leaves the
// WATCH in place for the caller to release.
func read(ctx context.Context, c valkey.DedicatedClient, key string, fn func(*models.Room) (indexOp, error)) (*models.Room, indexOp, string, error) {
	raw, err := c.Do(ctx, c.B().Get().Key(key).Build()).AsBytes()
	if valkey.IsValkeyNil(err) {
		return nil, indexOp{}, "", storage.ErrRoomNotFound
	}
	if err != nil {
		return nil, indexOp{}, "", err
	}
	return modify(raw, fn, time.Now())
}

// modify decodes raw, applies fn and re-encodes the result stamped with now.
func modify(raw []byte, fn func(*models.Room) (indexOp, error), now time.Time) (*models.Room, indexOp, string, error) {
	r, err := decode(raw)
	if err != nil {
		return nil, indexOp{}, "", err
	}
	op, err := fn(r)
	if err != nil {
		return nil, indexOp{}, "", err
	}
	r.UpdatedAt = now.UTC()
	data, err := encode(r)
	if err != nil {
		return nil, indexOp{}, "", err
	}
	return r, op, data, nil
}

func encode(r *models.Room) (string, error) {
	data, err := json.Marshal(record{Room: *r, PasscodeHash: r.PasscodeHash})
	if err != nil {
		return "", fmt.Errorf("encode room %s: %w", r.ID, err)
	}
	return string(data), nil
}

func decode(raw []byte) (*models.Room, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode room: %w", err)
	}
	r := rec.Room
	r.PasscodeHash = rec.PasscodeHash
	return &r, nil
}

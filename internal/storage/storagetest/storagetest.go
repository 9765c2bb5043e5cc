// Package storagetest holds the behaviour every storage.RoomStore must show.
package storagetest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/streamsync-backend/internal/models"
	"github.com/Vasu1712/streamsync-backend/internal/storage"
)

// Run exercises store against the RoomStore contract. Room and user ids are
// random so the suite can share a database with other runs.
func Run(t *testing.T, store storage.RoomStore) {
	t.Helper()
	ctx := context.Background()

	newRoom := func(t *testing.T, host string, capacity int) *models.Room {
		t.Helper()
		r, err := store.CreateRoom(ctx, &models.Room{
			Name:         "Friday movie",
			Host:         host,
			Movie:        "tt0133093",
			Tags:         []string{"sci-fi"},
			MaxCapacity:  capacity,
			PasscodeHash: "hash",
		})
		require.NoError(t, err)
		return r
	}
	user := func() string { return "user-" + uuid.NewString() }

	t.Run("create fills defaults", func(t *testing.T) {
		host := user()
		r := newRoom(t, host, 0)

		assert.NotEmpty(t, r.ID)
		assert.Equal(t, models.ModePublic, r.Mode)
		assert.Equal(t, []string{host}, r.Participants)
		assert.True(t, r.IsActive)
		assert.False(t, r.CreatedAt.IsZero())

		got, err := store.GetRoom(ctx, r.ID)
		require.NoError(t, err)
		assert.Equal(t, r.Name, got.Name)
		assert.Equal(t, "tt0133093", got.Movie)
		assert.Equal(t, []string{"sci-fi"}, got.Tags)
		assert.Equal(t, "hash", got.PasscodeHash)
	})

	t.Run("missing room", func(t *testing.T) {
		id := uuid.NewString()
		_, err := store.GetRoom(ctx, id)
		assert.ErrorIs(t, err, storage.ErrRoomNotFound)
		assert.ErrorIs(t, store.DeleteRoom(ctx, id), storage.ErrRoomNotFound)
		_, err = store.AddParticipant(ctx, id, user())
		assert.ErrorIs(t, err, storage.ErrRoomNotFound)
		_, err = store.UpdateRoomSettings(ctx, id, models.RoomSettings{Name: "x"})
		assert.ErrorIs(t, err, storage.ErrRoomNotFound)
	})

	t.Run("settings only touch non-empty fields", func(t *testing.T) {
		r := newRoom(t, user(), 0)

		got, err := store.UpdateRoomSettings(ctx, r.ID, models.RoomSettings{Mode: models.ModePrivate})
		require.NoError(t, err)
		assert.Equal(t, models.ModePrivate, got.Mode)
		assert.Equal(t, "Friday movie", got.Name)
	})

	t.Run("participants", func(t *testing.T) {
		host, guest := user(), user()
		r := newRoom(t, host, 0)

		got, err := store.AddParticipant(ctx, r.ID, guest)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{host, guest}, got.Participants)

		_, err = store.AddParticipant(ctx, r.ID, guest)
		assert.ErrorIs(t, err, storage.ErrAlreadyParticipant)

		got, err = store.RemoveParticipant(ctx, r.ID, guest)
		require.NoError(t, err)
		assert.Equal(t, []string{host}, got.Participants)

		_, err = store.RemoveParticipant(ctx, r.ID, guest)
		assert.ErrorIs(t, err, storage.ErrNotParticipant)
	})

	t.Run("capacity", func(t *testing.T) {
		r := newRoom(t, user(), 2)

		_, err := store.AddParticipant(ctx, r.ID, user())
		require.NoError(t, err)
		_, err = store.AddParticipant(ctx, r.ID, user())
		assert.ErrorIs(t, err, storage.ErrRoomFull)
	})

	t.Run("list for user", func(t *testing.T) {
		host, guest := user(), user()
		hosted := newRoom(t, host, 0)
		joined := newRoom(t, user(), 0)
		newRoom(t, user(), 0)
		_, err := store.AddParticipant(ctx, joined.ID, host)
		require.NoError(t, err)
		_, err = store.AddParticipant(ctx, hosted.ID, guest)
		require.NoError(t, err)

		rooms, err := store.ListRoomsForUser(ctx, host)
		require.NoError(t, err)
		var ids []string
		for _, r := range rooms {
			ids = append(ids, r.ID)
		}
		assert.ElementsMatch(t, []string{hosted.ID, joined.ID}, ids)

		rooms, err = store.ListRoomsForUser(ctx, user())
		require.NoError(t, err)
		assert.Empty(t, rooms)
	})

	t.Run("delete", func(t *testing.T) {
		host := user()
		r := newRoom(t, host, 0)

		require.NoError(t, store.DeleteRoom(ctx, r.ID))
		_, err := store.GetRoom(ctx, r.ID)
		assert.ErrorIs(t, err, storage.ErrRoomNotFound)

		rooms, err := store.ListRoomsForUser(ctx, host)
		require.NoError(t, err)
		assert.Empty(t, rooms)
	})
}

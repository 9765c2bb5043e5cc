package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vasu1712/streamsync-backend/internal/models"
	"github.com/Vasu1712/streamsync-backend/internal/storage/storagetest"
)

func TestRoomStore(t *testing.T) {
	storagetest.Run(t, NewRoomStore(zap.NewNop()))
}

func TestRoomStore_ReturnsCopies(t *testing.T) {
	s := NewRoomStore(zap.NewNop())
	ctx := context.Background()

	r, err := s.CreateRoom(ctx, &models.Room{Host: "h", Tags: []string{"a"}})
	require.NoError(t, err)
	r.Participants[0] = "mallory"
	r.Tags[0] = "changed"

	got, err := s.GetRoom(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"h"}, got.Participants)
	assert.Equal(t, []string{"a"}, got.Tags)
}

package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Vasu1712/streamsync-backend/internal/storage/storagetest"
)

func TestRoomStore(t *testing.T) {
	dsn := os.Getenv("STREAMSYNC_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("STREAMSYNC_TEST_POSTGRES_DSN not set")
	}

	store, err := NewRoomStore(context.Background(), dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	storagetest.Run(t, store)
}

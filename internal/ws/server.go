package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Vasu1712/streamsync-backend/internal/domain"
	"github.com/Vasu1712/streamsync-backend/internal/middleware"
)

// Sessions receives the lifecycle of every websocket connection.
type Sessions interface {
	Connect(ctx context.Context, conn domain.Connection, identity domain.Identity) error
	Receive(ctx context.Context, connID string, data []byte) error
	Disconnect(connID string)
}

// Server upgrades HTTP requests and runs the per-connection pumps.
type Server struct {
	upgrader websocket.Upgrader
	sessions Sessions
	opts     Options
	log      *zap.Logger

	pumps sync.WaitGroup
}

// NewServer returns a handler that upgrades requests from allowedOrigins
// and hands each connection to sessions.
func NewServer(sessions Sessions, opts Options, allowedOrigins []string, log *zap.Logger) *Server {
	return &Server{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || middleware.OriginAllowed(allowedOrigins, origin)
			},
		},
		sessions: sessions,
		opts:     opts,
		log:      log,
	}
}

// ServeHTTP upgrades the request and registers the connection with the
// sessions before starting its pumps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.pumps.Add(1)
	defer s.pumps.Done()

	identity, _ := middleware.IdentityFromContext(r.Context())

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := newClient(uuid.NewString(), conn, s.opts, s.log)
	if err := s.sessions.Connect(r.Context(), client, identity); err != nil {
		s.log.Warn("connection refused", zap.String("conn_id", client.ID()), zap.Error(err))
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"))
		_ = conn.Close()
		return
	}

	s.pumps.Add(2)
	go func() {
		defer s.pumps.Done()
		client.writePump()
	}()
	go func() {
		defer s.pumps.Done()
		client.readPump(s.sessions)
	}()
}

// Wait blocks until every upgraded connection has stopped both pumps, or
// until ctx is done. Close the clients first.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.pumps.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

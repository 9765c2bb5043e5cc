package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/Vasu1712/streamsync-backend/internal/api/rooms"
	"github.com/Vasu1712/streamsync-backend/internal/config"
	"github.com/Vasu1712/streamsync-backend/internal/lifecycle"
	"github.com/Vasu1712/streamsync-backend/internal/logging"
	"github.com/Vasu1712/streamsync-backend/internal/middleware"
	"github.com/Vasu1712/streamsync-backend/internal/protocol"
	"github.com/Vasu1712/streamsync-backend/internal/relay"
	"github.com/Vasu1712/streamsync-backend/internal/room"
	"github.com/Vasu1712/streamsync-backend/internal/session"
	"github.com/Vasu1712/streamsync-backend/internal/storage"
	"github.com/Vasu1712/streamsync-backend/internal/storage/memory"
	"github.com/Vasu1712/streamsync-backend/internal/storage/postgres"
	"github.com/Vasu1712/streamsync-backend/internal/storage/valkey"
	"github.com/Vasu1712/streamsync-backend/internal/ws"
)

func serve(ctx context.Context, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stopSignals := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	store, err := openStore(ctx, cfg.Store, log.Named("store"))
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("closing room store", zap.Error(err))
		}
	}()

	registry := session.NewRegistry()
	hub := ws.NewHub(log.Named("hub"))
	states := room.NewStates()
	membership := room.NewManager(registry, hub, states, log.Named("membership"))
	router := protocol.NewRouter(
		membership,
		relay.NewPlayback(registry, hub, states, log.Named("playback")),
		relay.NewChat(registry, hub, states, log.Named("chat")),
		hub,
		log.Named("router"),
	)
	coord := lifecycle.New(registry, membership, hub, router, cfg.QueueSize, log.Named("coordinator"))

	coordCtx, stopCoord := context.WithCancel(context.Background())
	coordDone := make(chan struct{})
	go func() {
		defer close(coordDone)
		coord.Run(coordCtx)
	}()

	r := mux.NewRouter()
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.HandleFunc("/stats", func(w http.ResponseWriter, _ *http.Request) {
		st := hub.Stats()
		writeJSON(w, map[string]int{"rooms": st.Rooms, "clients": st.Clients, "sessions": registry.Len()})
	}).Methods(http.MethodGet)

	auth := middleware.Auth(cfg.JWTSecret, log.Named("auth"))
	rooms.RegisterRoutes(r, &rooms.Handler{
		Store:    store,
		Presence: hub,
		Playback: states,
		Log:      log.Named("rooms"),
	}, auth)
	wsServer := ws.NewServer(coord, ws.Options{
		SendBuffer:     cfg.WS.SendBuffer,
		MaxMessageSize: cfg.WS.MaxMessageSize,
		WriteWait:      cfg.WS.WriteWait,
		PongWait:       cfg.WS.PongWait,
	}, cfg.AllowedOrigins, log.Named("ws"))
	r.Handle("/ws", auth(wsServer))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           middleware.CORS(cfg.AllowedOrigins, log.Named("cors"))(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", zap.String("addr", cfg.Addr), zap.String("store", cfg.Store.Driver), zap.Bool("auth", cfg.JWTSecret != ""))
		errCh <- srv.ListenAndServe()
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = fmt.Errorf("http server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	hub.CloseAll()
	if err := wsServer.Wait(shutdownCtx); err != nil {
		log.Warn("websocket pumps still running", zap.Error(err))
	}
	waitForSessions(shutdownCtx, registry)
	stopCoord()
	<-coordDone

	log.Info("server stopped")
	return serveErr
}

// waitForSessions gives closed sockets a chance to run their disconnects
// through the coordinator before it stops.
func waitForSessions(ctx context.Context, registry *session.Registry) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for registry.Len() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func openStore(ctx context.Context, cfg config.StoreConfig, log *zap.Logger) (storage.RoomStore, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		return postgres.NewRoomStore(ctx, cfg.PostgresDSN, log)
	case config.DriverValkey:
		return valkey.NewRoomStore(ctx, valkey.Options{Addr: cfg.ValkeyAddr, Password: cfg.ValkeyPassword, DB: cfg.ValkeyDB}, log)
	default:
		return memory.NewRoomStore(log), nil
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

package ws

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/Vasu1712/streamsync-backend/internal/domain"
)

var _ domain.RoomBroadcaster = (*Hub)(nil)

// Hub tracks attached connections and the room groups they belong to.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]domain.Connection
	rooms   map[string]map[string]struct{} // roomID -> connIDs
	log     *zap.Logger
}

// NewHub returns an empty Hub.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]domain.Connection),
		rooms:   make(map[string]map[string]struct{}),
		log:     log,
	}
}

// Attach makes conn reachable by id. It joins no room.
func (h *Hub) Attach(conn domain.Connection) {
	h.mu.Lock()
	h.clients[conn.ID()] = conn
	h.mu.Unlock()
}

// Detach forgets connID, drops it from every group and closes it.
func (h *Hub) Detach(connID string) {
	h.mu.Lock()
	conn, ok := h.clients[connID]
	delete(h.clients, connID)
	for roomID, members := range h.rooms {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
	h.mu.Unlock()

	if ok {
		_ = conn.Close()
	}
}

// Join adds connID to roomID. Unattached ids are ignored.
func (h *Hub) Join(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[connID]; !ok {
		h.log.Debug("join for detached connection", zap.String("conn_id", connID), zap.String("room_id", roomID))
		return
	}
	if h.rooms[roomID] == nil {
		h.rooms[roomID] = make(map[string]struct{})
	}
	h.rooms[roomID][connID] = struct{}{}
}

// Leave removes connID from roomID and drops the room once empty.
func (h *Hub) Leave(connID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if members, ok := h.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// Members returns the number of connections in roomID.
func (h *Hub) Members(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// Publish encodes ev once and hands it to every member but excluding.
// A member that cannot take the frame is closed and reported in Dropped.
func (h *Hub) Publish(roomID string, ev domain.Event, excluding string) domain.PublishResult {
	var res domain.PublishResult
	frame, err := json.Marshal(ev)
	if err != nil {
		h.log.Error("encode event", zap.String("room_id", roomID), zap.String("event", ev.Name), zap.Error(err))
		return res
	}

	h.mu.RLock()
	targets := make([]domain.Connection, 0, len(h.rooms[roomID]))
	for id := range h.rooms[roomID] {
		if id == excluding {
			continue
		}
		if conn, ok := h.clients[id]; ok {
			targets = append(targets, conn)
		}
	}
	h.mu.RUnlock()

	for _, conn := range targets {
		if err := conn.Deliver(frame); err != nil {
			h.evict(conn, roomID, ev.Name, err)
			res.Dropped = append(res.Dropped, conn.ID())
			continue
		}
		res.Delivered++
	}
	return res
}

// SendTo delivers ev to a single connection. A failed delivery evicts it.
func (h *Hub) SendTo(connID string, ev domain.Event) error {
	h.mu.RLock()
	conn, ok := h.clients[connID]
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("send %s: %w", ev.Name, domain.ErrUnknownConnection)
	}

	frame, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode %s: %w", ev.Name, err)
	}
	if err := conn.Deliver(frame); err != nil {
		h.evict(conn, "", ev.Name, err)
		return fmt.Errorf("send %s: %w", ev.Name, err)
	}
	return nil
}

func (h *Hub) evict(conn domain.Connection, roomID, event string, err error) {
	h.log.Warn("dropping slow or closed client",
		zap.String("conn_id", conn.ID()),
		zap.String("room_id", roomID),
		zap.String("event", event),
		zap.Error(err))
	_ = conn.Close()
}

type Stats struct {
	Rooms   int `json:"rooms"`
	Clients int `json:"clients"`
}

// Stats returns the current number of rooms and attached clients.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return Stats{Rooms: len(h.rooms), Clients: len(h.clients)}
}

// CloseAll closes every attached connection. The read pumps then report
// their disconnects as usual.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	conns := make([]domain.Connection, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
	h.log.Info("closed all clients", zap.Int("clients", len(conns)))
}

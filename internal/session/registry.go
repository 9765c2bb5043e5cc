package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/Vasu1712/streamsync-backend/internal/domain"
)

// Session is the ephemeral state of one live connection.
// An empty CurrentRoomID means the connection is not in a room.
type Session struct {
	ConnectionID      string
	Identity          domain.Identity
	CurrentRoomID     string
	LastKnownPosition *float64
	IsPlaying         bool
	ConnectedAt       time.Time
}

// InRoom reports whether the session is currently joined to a room.
func (s Session) InRoom() bool {
	return s.CurrentRoomID != ""
}

// Registry maps live connection ids to their sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// Register creates a session for connID with no room. A second Register
// for the same id fails with ErrAlreadyRegistered.
func (r *Registry) Register(connID string, identity domain.Identity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.sessions[connID]; exists {
		return fmt.Errorf("register %s: %w", connID, domain.ErrAlreadyRegistered)
	}
	r.sessions[connID] = &Session{
		ConnectionID: connID,
		Identity:     identity,
		ConnectedAt:  r.now(),
	}
	return nil
}

// Lookup returns a copy of the session; mutate through Update.
func (r *Registry) Lookup(connID string) (Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, fmt.Errorf("lookup %s: %w", connID, domain.ErrUnknownConnection)
	}
	return s.copy(), nil
}

// Update applies fn to the stored session under the registry lock and
// returns the resulting copy.
func (r *Registry) Update(connID string, fn func(*Session)) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[connID]
	if !ok {
		return Session{}, fmt.Errorf("update %s: %w", connID, domain.ErrUnknownConnection)
	}
	fn(s)
	s.ConnectionID = connID
	return s.copy(), nil
}

// Unregister removes connID. It is called once, after membership cleanup.
func (r *Registry) Unregister(connID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[connID]; !ok {
		return fmt.Errorf("unregister %s: %w", connID, domain.ErrUnknownConnection)
	}
	delete(r.sessions, connID)
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (s *Session) copy() Session {
	out := *s
	if s.LastKnownPosition != nil {
		pos := *s.LastKnownPosition
		out.LastKnownPosition = &pos
	}
	return out
}

// Package mocks provides in-memory doubles for the domain interfaces.
package mocks

import (
	"errors"
	"sort"
	"sync"

	"github.com/Vasu1712/streamsync-backend/internal/domain"
)

var ErrUnreachable = errors.New("connection unreachable")

// Publication records one Publish call and who it reached.
type Publication struct {
	RoomID     string
	Event      domain.Event
	Excluding  string
	Recipients []string
}

// Broadcaster is a RoomBroadcaster that keeps groups in maps and records
// every event it would have delivered, per connection, in order.
type Broadcaster struct {
	mu           sync.Mutex
	rooms        map[string]map[string]struct{}
	inbox        map[string][]domain.Event
	unreachable  map[string]bool
	publications []Publication
}

// NewBroadcaster returns an empty recording broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{
		rooms:       make(map[string]map[string]struct{}),
		inbox:       make(map[string][]domain.Event),
		unreachable: make(map[string]bool),
	}
}

// Unreachable makes every delivery to connID fail.
func (b *Broadcaster) Unreachable(connID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unreachable[connID] = true
}

func (b *Broadcaster) Join(connID, roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.rooms[roomID] == nil {
		b.rooms[roomID] = make(map[string]struct{})
	}
	b.rooms[roomID][connID] = struct{}{}
}

func (b *Broadcaster) Leave(connID, roomID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if members, ok := b.rooms[roomID]; ok {
		delete(members, connID)
		if len(members) == 0 {
			delete(b.rooms, roomID)
		}
	}
}

func (b *Broadcaster) Publish(roomID string, ev domain.Event, excluding string) domain.PublishResult {
	b.mu.Lock()
	defer b.mu.Unlock()

	var res domain.PublishResult
	pub := Publication{RoomID: roomID, Event: ev, Excluding: excluding}
	for id := range b.rooms[roomID] {
		if id == excluding {
			continue
		}
		if b.unreachable[id] {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		b.inbox[id] = append(b.inbox[id], ev)
		pub.Recipients = append(pub.Recipients, id)
		res.Delivered++
	}
	sort.Strings(pub.Recipients)
	b.publications = append(b.publications, pub)
	return res
}

func (b *Broadcaster) SendTo(connID string, ev domain.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.unreachable[connID] {
		return ErrUnreachable
	}
	b.inbox[connID] = append(b.inbox[connID], ev)
	return nil
}

func (b *Broadcaster) Members(roomID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rooms[roomID])
}

// InRoom reports whether connID is in roomID's group.
func (b *Broadcaster) InRoom(connID, roomID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.rooms[roomID][connID]
	return ok
}

// Received returns everything delivered to connID so far.
func (b *Broadcaster) Received(connID string) []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]domain.Event(nil), b.inbox[connID]...)
}

// ReceivedNamed filters Received by event name.
func (b *Broadcaster) ReceivedNamed(connID, name string) []domain.Event {
	var out []domain.Event
	for _, ev := range b.Received(connID) {
		if ev.Name == name {
			out = append(out, ev)
		}
	}
	return out
}

func (b *Broadcaster) Publications() []Publication {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Publication(nil), b.publications...)
}

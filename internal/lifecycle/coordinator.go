package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Vasu1712/streamsync-backend/internal/domain"
	"github.com/Vasu1712/streamsync-backend/internal/room"
	"github.com/Vasu1712/streamsync-backend/internal/session"
)

var ErrStopped = errors.New("coordinator stopped")

// Transport is the broadcast-group primitive plus connection bookkeeping.
type Transport interface {
	domain.RoomBroadcaster
	Attach(conn domain.Connection)
	Detach(connID string)
}

// Handler processes one inbound frame for a registered connection.
type Handler interface {
	Handle(connID string, data []byte)
}

type opKind int

const (
	opConnect opKind = iota
	opReceive
	opDisconnect
)

type op struct {
	kind     opKind
	connID   string
	conn     domain.Connection
	identity domain.Identity
	data     []byte
}

// Coordinator binds connections to the registry, membership and relays.
// Every connect, frame and disconnect goes through one ordered queue and
// runs to completion before the next, so a connection's events are handled
// in the order its transport delivered them.
type Coordinator struct {
	registry   *session.Registry
	membership *room.Manager
	transport  Transport
	handler    Handler
	log        *zap.Logger

	queue chan op
	done  chan struct{}
}

// New returns a Coordinator whose queue holds queueSize operations. Call
// Run to start processing.
func New(registry *session.Registry, membership *room.Manager, transport Transport, handler Handler, queueSize int, log *zap.Logger) *Coordinator {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Coordinator{
		registry:   registry,
		membership: membership,
		transport:  transport,
		handler:    handler,
		log:        log,
		queue:      make(chan op, queueSize),
		done:       make(chan struct{}),
	}
}

// Run drains the queue until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	defer close(c.done)
	c.log.Info("coordinator started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("coordinator stopped", zap.Int("sessions", c.registry.Len()))
			return
		case o := <-c.queue:
			c.dispatch(o)
		}
	}
}

// Connect queues registration of conn.
func (c *Coordinator) Connect(ctx context.Context, conn domain.Connection, identity domain.Identity) error {
	return c.enqueue(ctx, op{kind: opConnect, connID: conn.ID(), conn: conn, identity: identity})
}

// Receive queues one inbound frame from connID.
func (c *Coordinator) Receive(ctx context.Context, connID string, data []byte) error {
	return c.enqueue(ctx, op{kind: opReceive, connID: connID, data: data})
}

// Disconnect blocks until the op is queued or the coordinator stops.
func (c *Coordinator) Disconnect(connID string) {
	if err := c.enqueue(context.Background(), op{kind: opDisconnect, connID: connID}); err != nil {
		c.log.Debug("disconnect dropped", zap.String("conn_id", connID), zap.Error(err))
	}
}

func (c *Coordinator) enqueue(ctx context.Context, o op) error {
	select {
	case <-c.done:
		return ErrStopped
	default:
	}
	select {
	case c.queue <- o:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Coordinator) dispatch(o op) {
	switch o.kind {
	case opConnect:
		c.connect(o)
	case opReceive:
		c.handler.Handle(o.connID, o.data)
	case opDisconnect:
		c.disconnect(o.connID)
	}
}

func (c *Coordinator) connect(o op) {
	if err := c.registry.Register(o.connID, o.identity); err != nil {
		c.log.Error("register failed", zap.String("conn_id", o.connID), zap.Error(err))
		_ = o.conn.Close()
		return
	}
	c.transport.Attach(o.conn)
	c.log.Info("client connected",
		zap.String("conn_id", o.connID),
		zap.String("user_id", o.identity.UserID),
		zap.Int("sessions", c.registry.Len()))
}

func (c *Coordinator) disconnect(connID string) {
	if err := c.membership.Leave(connID); err != nil {
		if !errors.Is(err, domain.ErrUnknownConnection) {
			c.log.Error("leave on disconnect failed", zap.String("conn_id", connID), zap.Error(err))
		}
	}
	if err := c.registry.Unregister(connID); err != nil {
		c.log.Debug("unregister skipped", zap.String("conn_id", connID), zap.Error(fmt.Errorf("disconnect: %w", err)))
	}
	c.transport.Detach(connID)
	c.log.Info("client disconnected", zap.String("conn_id", connID), zap.Int("sessions", c.registry.Len()))
}

package socket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBufferSize = 32
)

// Connection is one client's WebSocket session, mirroring the teacher's
// WebSocketConnection: a dedicated send channel drained by a writePump
// goroutine, and a read loop that decodes inbound messages.
type Connection struct {
	ID       string
	PlayerID string
	Conn     *websocket.Conn
	Send     chan []byte

	limiter *rate.Limiter

	mu    sync.Mutex
	rooms map[string]bool

	closeOnce sync.Once
	closeChan chan struct{}
}

// NewConnection wraps an upgraded *websocket.Conn.
func NewConnection(id, playerID string, conn *websocket.Conn, limiter *rate.Limiter) *Connection {
	return &Connection{
		ID:        id,
		PlayerID:  playerID,
		Conn:      conn,
		Send:      make(chan []byte, sendBufferSize),
		limiter:   limiter,
		rooms:     make(map[string]bool),
		closeChan: make(chan struct{}),
	}
}

// SendMessage enqueues a message for delivery, dropping it (with a log by
// the caller) if the connection's send buffer is full rather than blocking
// the publisher.
func (c *Connection) SendMessage(raw []byte) bool {
	select {
	case c.Send <- raw:
		return true
	default:
		return false
	}
}

// JoinRoom records local room membership for this connection.
func (c *Connection) JoinRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms[roomID] = true
}

// LeaveRoom clears local room membership for this connection.
func (c *Connection) LeaveRoom(roomID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rooms, roomID)
}

// Close closes the connection exactly once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		close(c.closeChan)
		c.Conn.Close()
	})
}

// Room is a local, node-scoped fan-out group: the set of connections
// subscribed to one gameId's events.
type Room struct {
	ID string

	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewRoom constructs an empty room.
func NewRoom(id string) *Room {
	return &Room{ID: id, connections: make(map[string]*Connection)}
}

// Add registers a connection in the room.
func (r *Room) Add(c *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connections[c.ID] = c
}

// Remove drops a connection from the room.
func (r *Room) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connections, connID)
}

// Empty reports whether the room has no members.
func (r *Room) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.connections) == 0
}

// Broadcast delivers raw to every connection in the room, direct fan-out
// within the node (§5 "Fan-out within a node is direct").
func (r *Room) Broadcast(raw []byte, logDrop func(connID string)) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, c := range r.connections {
		if !c.SendMessage(raw) && logDrop != nil {
			logDrop(id)
		}
	}
}

// Package socket is the external SocketAdapter: WebSocket transport,
// bearer-token authentication at handshake, room-based local fan-out, and
// reconnection/rejoin (§6, SPEC_FULL "Reconnection / room rejoin").
package socket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/chesscore/realtime/internal/apperr"
	"github.com/chesscore/realtime/internal/eventbus"
	"github.com/chesscore/realtime/internal/gamecore"
	"github.com/chesscore/realtime/internal/matchmaker"
	"github.com/chesscore/realtime/internal/metrics"
	"github.com/chesscore/realtime/internal/models"
	"github.com/chesscore/realtime/internal/store"
	"github.com/chesscore/realtime/internal/timemanager"
)

// Adapter is the reference SocketAdapter implementation.
type Adapter struct {
	upgrader websocket.Upgrader

	mu          sync.RWMutex
	connections map[string]*Connection
	byPlayer    map[string]*Connection
	rooms       map[string]*Room

	live        store.LiveStore
	durable     store.DurableStore
	matchmaker  *matchmaker.Matchmaker
	core        *gamecore.Core
	timeManager *timemanager.Manager
	bus         *eventbus.Bus

	jwtSecret []byte

	rateLimit rate.Limit
	burst     int

	liveGameTTL time.Duration

	logger *zap.Logger
}

// Deps bundles the Adapter's collaborators.
type Deps struct {
	Live        store.LiveStore
	Durable     store.DurableStore
	Matchmaker  *matchmaker.Matchmaker
	Core        *gamecore.Core
	TimeManager *timemanager.Manager
	Bus         *eventbus.Bus
	JWTSecret   []byte
	Logger      *zap.Logger

	// PerConnectionRateLimit/Burst bound how many client messages per
	// second one connection may send (teacher's RateLimiter pattern,
	// applied per-connection instead of per-HTTP-client).
	PerConnectionRateLimit rate.Limit
	Burst                  int

	// LiveGameTTL is the TTL applied to a rematch's new LiveGame record,
	// matching the Matchmaker's own game-creation TTL (§5).
	LiveGameTTL time.Duration

	CORSAllowedOrigins []string
}

// New constructs an Adapter and wires its EventBus subscriptions for
// server-originated fan-out (move_made, game_ended, time_update, ...).
func New(d Deps) *Adapter {
	a := &Adapter{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     corsCheckOrigin(d.CORSAllowedOrigins),
		},
		connections: make(map[string]*Connection),
		byPlayer:    make(map[string]*Connection),
		rooms:       make(map[string]*Room),
		live:        d.Live,
		durable:     d.Durable,
		matchmaker:  d.Matchmaker,
		core:        d.Core,
		timeManager: d.TimeManager,
		bus:         d.Bus,
		jwtSecret:   d.JWTSecret,
		rateLimit:   d.PerConnectionRateLimit,
		burst:       d.Burst,
		liveGameTTL: d.LiveGameTTL,
		logger:      d.Logger,
	}
	a.subscribeBusEvents()
	return a
}

func corsCheckOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// authenticate verifies the bearer token supplied in the handshake
// (§6 "authenticated by a bearer token"); identity issuance itself is an
// external collaborator, so this only verifies a token this codebase was
// configured to trust.
func (a *Adapter) authenticate(r *http.Request) (string, error) {
	tokenStr := r.URL.Query().Get("token")
	if tokenStr == "" {
		if auth := r.Header.Get("Authorization"); len(auth) > 7 && auth[:7] == "Bearer " {
			tokenStr = auth[7:]
		}
	}
	if tokenStr == "" {
		return "", apperr.NewUnauthenticated("missing bearer token")
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return a.jwtSecret, nil
	})
	if err != nil {
		return "", apperr.NewUnauthenticated("invalid bearer token")
	}

	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", apperr.NewUnauthenticated("token missing subject")
	}
	return sub, nil
}

// HandleUpgrade upgrades the HTTP request to a WebSocket connection,
// registers it, sets presence, and starts its read/write pumps.
func (a *Adapter) HandleUpgrade(w http.ResponseWriter, r *http.Request) {
	playerID, err := a.authenticate(r)
	if err != nil {
		http.Error(w, apperr.ClientMessage(err), http.StatusUnauthorized)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Warn("socket: upgrade failed", zap.Error(err))
		return
	}

	limiter := rate.NewLimiter(a.rateLimit, a.burst)
	c := NewConnection(uuid.NewString(), playerID, conn, limiter)

	a.mu.Lock()
	if existing, ok := a.byPlayer[playerID]; ok {
		existing.Close() // one connection per player; replacing keeps the newest
	}
	a.connections[c.ID] = c
	a.byPlayer[playerID] = c
	a.mu.Unlock()
	metrics.WebSocketConnections.Inc()

	ctx := context.Background()
	_ = a.live.SetJSON(ctx, store.PresenceKey(playerID), models.Presence{
		PlayerID:     playerID,
		ConnectionID: c.ID,
		IsConnected:  true,
	}, 0)

	go a.writePump(c)
	go a.readPump(ctx, c)
}

// joinRoom adds a connection to a gameId's local room, creating it if
// necessary.
func (a *Adapter) joinRoom(roomID string, c *Connection) {
	a.mu.Lock()
	room, ok := a.rooms[roomID]
	if !ok {
		room = NewRoom(roomID)
		a.rooms[roomID] = room
	}
	a.mu.Unlock()
	room.Add(c)
	c.JoinRoom(roomID)
}

// leaveRoom removes a connection from a room, pruning the room if empty.
func (a *Adapter) leaveRoom(roomID string, c *Connection) {
	a.mu.Lock()
	room, ok := a.rooms[roomID]
	a.mu.Unlock()
	if !ok {
		return
	}
	room.Remove(c.ID)
	c.LeaveRoom(roomID)
	if room.Empty() {
		a.mu.Lock()
		delete(a.rooms, roomID)
		a.mu.Unlock()
	}
}

// broadcastToRoom delivers an outbound envelope to every local connection
// in the room.
func (a *Adapter) broadcastToRoom(roomID string, env OutboundEnvelope) {
	a.mu.RLock()
	room, ok := a.rooms[roomID]
	a.mu.RUnlock()
	if !ok {
		return
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	room.Broadcast(raw, func(connID string) {
		a.logger.Warn("socket: dropped message, send buffer full", zap.String("connId", connID))
	})
}

// sendTo delivers an outbound envelope to one connection only (per §7
// "Validation and per-player contract errors are returned on the
// originating socket only, never broadcast").
func (a *Adapter) sendTo(c *Connection, env OutboundEnvelope) {
	raw, err := json.Marshal(env)
	if err != nil {
		return
	}
	if !c.SendMessage(raw) {
		a.logger.Warn("socket: dropped message to connection, send buffer full", zap.String("connId", c.ID))
	}
}

// disconnect cleans up a connection: removes it from the registries,
// leaves all rooms, pauses the clock of the game behind each room it was
// in, and clears presence.
func (a *Adapter) disconnect(c *Connection) {
	a.mu.Lock()
	delete(a.connections, c.ID)
	if a.byPlayer[c.PlayerID] == c {
		delete(a.byPlayer, c.PlayerID)
	}
	a.mu.Unlock()
	metrics.WebSocketConnections.Dec()

	c.mu.Lock()
	roomIDs := make([]string, 0, len(c.rooms))
	for id := range c.rooms {
		roomIDs = append(roomIDs, id)
	}
	c.mu.Unlock()

	for _, id := range roomIDs {
		a.leaveRoom(id, c)
		a.timeManager.Pause(id)
		a.broadcastToRoom(id, ok(TagOpponentReconnecting, map[string]interface{}{
			"gameId": id,
			"status": "opponent_disconnected",
		}))
	}

	ctx := context.Background()
	_ = a.live.Delete(ctx, store.PresenceKey(c.PlayerID))
	c.Close()
}

func (a *Adapter) readPump(ctx context.Context, c *Connection) {
	defer a.disconnect(c)

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			continue
		}

		var msg InboundMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		a.dispatch(ctx, c, msg)
	}
}

func (a *Adapter) writePump(c *Connection) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.Conn.Close()

	for {
		select {
		case raw, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeChan:
			return
		}
	}
}

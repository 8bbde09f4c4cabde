// Package eventbus implements the distributed publish/subscribe layer
// (§4.8): one topic per event class, at-least-once delivery, best-effort
// per-gameId ordering, and local-origin loop suppression.
package eventbus

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chesscore/realtime/internal/apperr"
	"github.com/chesscore/realtime/internal/metrics"
	"github.com/chesscore/realtime/internal/models"
)

func topicName(ch models.Channel) string { return "chess:" + string(ch) }

var allChannels = []models.Channel{
	models.ChannelMoves,
	models.ChannelStateUpdates,
	models.ChannelEvents,
	models.ChannelTime,
	models.ChannelMatchmaking,
	models.ChannelPlayers,
}

// Handler processes an envelope delivered either locally (synchronously,
// same node) or remotely (via Redis pub/sub, from another node).
type Handler func(ctx context.Context, env models.Envelope)

// Bus is the production EventBus, backed by the same Redis client this
// stack already wires for LiveStore.
type Bus struct {
	client *redis.Client
	nodeID string
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[models.Channel][]Handler

	opTimeout time.Duration

	cancel context.CancelFunc
}

// New constructs a Bus. Call Start to begin the remote-delivery
// subscription loops.
func New(client *redis.Client, nodeID string, opTimeout time.Duration, logger *zap.Logger) *Bus {
	return &Bus{
		client:    client,
		nodeID:    nodeID,
		logger:    logger,
		subs:      make(map[models.Channel][]Handler),
		opTimeout: opTimeout,
	}
}

// Subscribe registers a local handler for every event published on the
// given channel class, whether the event originated locally or remotely.
func (b *Bus) Subscribe(ch models.Channel, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = append(b.subs[ch], h)
}

// Publish builds and delivers an envelope: local subscribers are invoked
// synchronously first (so local socket fan-out and the persistence
// pipeline see authoritative state immediately), then the envelope is
// published to Redis for delivery to other nodes.
func (b *Bus) Publish(ctx context.Context, eventType models.EventType, gameID string, payload map[string]interface{}) error {
	env := models.Envelope{
		ID:           uuid.NewString(),
		OriginNodeID: b.nodeID,
		Timestamp:    time.Now(),
		EventType:    eventType,
		Channel:      models.ChannelFor(eventType),
		GameID:       gameID,
		Payload:      payload,
	}

	raw, err := json.Marshal(env)
	if err != nil {
		return apperr.NewInternal(err)
	}

	// Round-trip the envelope through JSON before local dispatch too, so
	// local and remote subscribers always observe the same tagged-variant
	// shape (design note: "ad-hoc JSON in the bus... fixed shape").
	var normalized models.Envelope
	if err := json.Unmarshal(raw, &normalized); err != nil {
		return apperr.NewInternal(err)
	}
	b.dispatchLocal(ctx, normalized)

	opCtx, cancel := context.WithTimeout(ctx, b.opTimeout)
	defer cancel()
	if err := b.client.Publish(opCtx, topicName(env.Channel), raw).Err(); err != nil {
		metrics.EventBusPublishFailures.WithLabelValues(string(env.Channel)).Inc()
		b.logger.Warn("eventbus: publish failed, degrading to local-only fan-out",
			zap.String("channel", string(env.Channel)), zap.Error(err))
		return apperr.NewBusUnavailable(err)
	}
	return nil
}

func (b *Bus) dispatchLocal(ctx context.Context, env models.Envelope) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subs[env.Channel]...)
	b.mu.RUnlock()
	for _, h := range handlers {
		h(ctx, env)
	}
}

// Start begins one Redis subscription goroutine per topic class, each
// applying local-origin loop suppression: a node drops messages whose
// originNodeId equals its own, since it already applied local fan-out
// synchronously in Publish.
func (b *Bus) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	for _, ch := range allChannels {
		go b.consumeRemote(runCtx, ch)
	}
}

func (b *Bus) consumeRemote(ctx context.Context, ch models.Channel) {
	pubsub := b.client.Subscribe(ctx, topicName(ch))
	defer pubsub.Close()

	msgCh := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			var env models.Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				b.logger.Warn("eventbus: malformed envelope", zap.Error(err))
				continue
			}
			if env.OriginNodeID == b.nodeID {
				continue // local loop suppression
			}
			b.dispatchLocal(ctx, env)
		}
	}
}

// Close stops all remote-subscription goroutines (part of the shutdown
// order in §5: "stops the scanner, and disconnects sockets" — the bus
// subscriptions close alongside).
func (b *Bus) Close() {
	if b.cancel != nil {
		b.cancel()
	}
}

package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/chesscore/realtime/internal/models"
)

// newTestBus builds a Bus with no Redis client; tests exercise only
// dispatchLocal, which never touches the client.
func newTestBus() *Bus {
	return New(nil, "node-1", time.Second, zap.NewNop())
}

func TestSubscribeReceivesLocallyDispatchedEnvelope(t *testing.T) {
	b := newTestBus()

	var mu sync.Mutex
	var received []models.Envelope
	b.Subscribe(models.ChannelMoves, func(ctx context.Context, env models.Envelope) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, env)
	})

	env := models.Envelope{EventType: models.EventMoveMade, Channel: models.ChannelMoves, GameID: "g1"}
	b.dispatchLocal(context.Background(), env)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, received, 1)
	assert.Equal(t, "g1", received[0].GameID)
}

func TestDispatchLocalOnlyInvokesMatchingChannelSubscribers(t *testing.T) {
	b := newTestBus()

	movesCalled := false
	timeCalled := false
	b.Subscribe(models.ChannelMoves, func(ctx context.Context, env models.Envelope) { movesCalled = true })
	b.Subscribe(models.ChannelTime, func(ctx context.Context, env models.Envelope) { timeCalled = true })

	b.dispatchLocal(context.Background(), models.Envelope{Channel: models.ChannelMoves})

	assert.True(t, movesCalled)
	assert.False(t, timeCalled)
}

func TestMultipleHandlersOnSameChannelAllRun(t *testing.T) {
	b := newTestBus()

	var mu sync.Mutex
	count := 0
	inc := func(ctx context.Context, env models.Envelope) {
		mu.Lock()
		defer mu.Unlock()
		count++
	}
	b.Subscribe(models.ChannelEvents, inc)
	b.Subscribe(models.ChannelEvents, inc)

	b.dispatchLocal(context.Background(), models.Envelope{Channel: models.ChannelEvents})

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, count)
}

func TestTopicNamePrefixesChannel(t *testing.T) {
	assert.Equal(t, "chess:moves", topicName(models.ChannelMoves))
}

func TestCloseWithoutStartIsSafe(t *testing.T) {
	b := newTestBus()
	assert.NotPanics(t, func() { b.Close() })
}

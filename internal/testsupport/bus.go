package testsupport

import (
	"context"
	"sync"

	"github.com/chesscore/realtime/internal/models"
)

// FakeBus is a synchronous, single-process stand-in for eventbus.Bus: it
// satisfies both gamecore.Publisher and timemanager.Publisher without
// touching Redis, and records every published envelope for assertions.
type FakeBus struct {
	mu        sync.Mutex
	published []models.Envelope
}

// NewFakeBus constructs an empty FakeBus.
func NewFakeBus() *FakeBus {
	return &FakeBus{}
}

func (b *FakeBus) Publish(ctx context.Context, eventType models.EventType, gameID string, payload map[string]interface{}) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, models.Envelope{
		EventType: eventType,
		Channel:   models.ChannelFor(eventType),
		GameID:    gameID,
		Payload:   payload,
	})
	return nil
}

// Published returns a snapshot of every envelope published so far.
func (b *FakeBus) Published() []models.Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.Envelope, len(b.published))
	copy(out, b.published)
	return out
}

// Last returns the most recently published envelope of the given type, if
// any.
func (b *FakeBus) Last(eventType models.EventType) (models.Envelope, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.published) - 1; i >= 0; i-- {
		if b.published[i].EventType == eventType {
			return b.published[i], true
		}
	}
	return models.Envelope{}, false
}

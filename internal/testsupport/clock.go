package testsupport

import (
	"sync"
	"time"

	"github.com/chesscore/realtime/internal/models"
)

// FakeClock satisfies gamecore.Clock without running the 1Hz scanner;
// tests assert on the recorded calls instead.
type FakeClock struct {
	mu       sync.Mutex
	started  map[string]models.Color
	forgotten map[string]bool
}

// NewFakeClock constructs an empty FakeClock.
func NewFakeClock() *FakeClock {
	return &FakeClock{
		started:   make(map[string]models.Color),
		forgotten: make(map[string]bool),
	}
}

func (c *FakeClock) StartGame(gameID string, firstTurn models.Color) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started[gameID] = firstTurn
}

func (c *FakeClock) OnMove(gameID string, newTurn models.Color, at time.Time) {}

func (c *FakeClock) Forget(gameID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.forgotten[gameID] = true
}

// Started reports whether StartGame was called for gameID.
func (c *FakeClock) Started(gameID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.started[gameID]
	return ok
}

// Forgotten reports whether Forget was called for gameID.
func (c *FakeClock) Forgotten(gameID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.forgotten[gameID]
}

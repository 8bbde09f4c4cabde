// Package timemanager implements the process-wide clock scanner (§4.7): a
// single 1Hz ticker drives timeout enforcement for every node-local game
// instead of one timer per game.
package timemanager

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chesscore/realtime/internal/metrics"
	"github.com/chesscore/realtime/internal/models"
	"github.com/chesscore/realtime/internal/store"
)

// Forfeiter is the narrow GameCore dependency the scanner needs to end a
// timed-out game.
type Forfeiter interface {
	TimeoutForfeit(ctx context.Context, gameID string, losingColor models.Color) (models.LiveGame, error)
}

// Publisher is the narrow EventBus dependency for time broadcasts.
type Publisher interface {
	Publish(ctx context.Context, eventType models.EventType, gameID string, payload map[string]interface{}) error
}

// Manager is the TimeManager component: it owns exactly one scan ticker
// per process.
type Manager struct {
	mu     sync.Mutex
	clocks map[string]*models.ClockState

	live      store.LiveStore
	forfeiter Forfeiter
	bus       Publisher
	logger    *zap.Logger

	scanPeriod time.Duration
	tolerance  time.Duration

	stop chan struct{}
	done chan struct{}
}

// New constructs a Manager. Call Start to begin scanning. forfeiter may be
// nil at construction time to break the GameCore/TimeManager construction
// cycle (GameCore needs a Clock, TimeManager needs a Forfeiter); callers
// must invoke SetForfeiter before Start in that case.
func New(live store.LiveStore, forfeiter Forfeiter, bus Publisher, scanPeriod, tolerance time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		clocks:     make(map[string]*models.ClockState),
		live:       live,
		forfeiter:  forfeiter,
		bus:        bus,
		logger:     logger,
		scanPeriod: scanPeriod,
		tolerance:  tolerance,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// SetForfeiter wires the GameCore dependency once it has been
// constructed (see New's note on the construction cycle).
func (m *Manager) SetForfeiter(f Forfeiter) {
	m.forfeiter = f
}

// StartGame registers a freshly created game's clock (called from
// GameCore.Create).
func (m *Manager) StartGame(gameID string, firstTurn models.Color) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clocks[gameID] = &models.ClockState{
		GameID:       gameID,
		LastMoveTime: time.Now(),
		CurrentTurn:  firstTurn,
		Active:       true,
	}
}

// OnMove updates the reference time and turn after a move is applied
// (§4.7 "On move"); LiveGame.timeLeftMs was already updated by GameCore.
func (m *Manager) OnMove(gameID string, newTurn models.Color, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cs, ok := m.clocks[gameID]
	if !ok {
		cs = &models.ClockState{GameID: gameID}
		m.clocks[gameID] = cs
	}
	cs.LastMoveTime = at
	cs.CurrentTurn = newTurn
	cs.Active = true
}

// Forget removes a game's clock state (called on finalization).
func (m *Manager) Forget(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.clocks, gameID)
}

// Pause freezes deductions on disconnect (§4.7 "Pause/resume").
func (m *Manager) Pause(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.clocks[gameID]; ok {
		cs.Active = false
	}
}

// Resume unfreezes a game's clock on reconnect, resetting lastMoveTime to
// now so no penalty accrues during the pause (§4.7: "Pause policy is
// conservative: time is never added, only frozen").
func (m *Manager) Resume(gameID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cs, ok := m.clocks[gameID]; ok {
		cs.LastMoveTime = time.Now()
		cs.Active = true
	}
}

// RemainingMs computes remainingMs(gameId, color) per §4.7.
func (m *Manager) RemainingMs(gameID string, color models.Color, timeLeftMs map[models.Color]int64) int64 {
	m.mu.Lock()
	cs, ok := m.clocks[gameID]
	m.mu.Unlock()

	base := timeLeftMs[color]
	if !ok || cs.CurrentTurn != color || !cs.Active {
		if base < 0 {
			return 0
		}
		return base
	}
	elapsed := time.Since(cs.LastMoveTime).Milliseconds()
	remaining := base - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// ReportTimeUp handles a client's time_up report (§4.7 "Client time-up
// reports"): if the server's own remainingMs agrees (within tolerance),
// forfeit; otherwise push a corrective sync to the reporter only.
func (m *Manager) ReportTimeUp(ctx context.Context, gameID string, reportedColor models.Color, timeLeftMs map[models.Color]int64) (forfeited bool, authoritative TimeSync) {
	remaining := m.RemainingMs(gameID, reportedColor, timeLeftMs)
	authoritative = m.snapshotSync(gameID, timeLeftMs)
	if remaining <= m.tolerance.Milliseconds() {
		_, _ = m.forfeiter.TimeoutForfeit(ctx, gameID, reportedColor)
		return true, authoritative
	}
	return false, authoritative
}

// TimeSync is the authoritative clock broadcast payload (§4.7
// "Broadcasts").
type TimeSync struct {
	WhiteMs     int64
	BlackMs     int64
	CurrentTurn models.Color
	Now         time.Time
}

func (m *Manager) snapshotSync(gameID string, timeLeftMs map[models.Color]int64) TimeSync {
	m.mu.Lock()
	cs, ok := m.clocks[gameID]
	m.mu.Unlock()
	turn := models.ColorWhite
	if ok {
		turn = cs.CurrentTurn
	}
	return TimeSync{
		WhiteMs:     m.RemainingMs(gameID, models.ColorWhite, timeLeftMs),
		BlackMs:     m.RemainingMs(gameID, models.ColorBlack, timeLeftMs),
		CurrentTurn: turn,
		Now:         time.Now(),
	}
}

// RequestSync handles a request_time_sync client message.
func (m *Manager) RequestSync(gameID string, timeLeftMs map[models.Color]int64) TimeSync {
	return m.snapshotSync(gameID, timeLeftMs)
}

// GameSnapshot is what the scanner needs from LiveStore per active game;
// callers provide it via the LiveGameLoader function since TimeManager has
// no direct dependency on GameCore's load path.
type GameSnapshot struct {
	GameID     string
	TimeLeftMs map[models.Color]int64
	GameOver   bool
}

// LiveGameLoader loads the minimal snapshot the scanner needs for one
// game.
type LiveGameLoader func(ctx context.Context, gameID string) (GameSnapshot, error)

// Start begins the 1Hz scan loop (§4.7 "Model"). It runs until Stop is
// called.
func (m *Manager) Start(ctx context.Context, loadGame LiveGameLoader) {
	ticker := time.NewTicker(m.scanPeriod)
	go func() {
		defer close(m.done)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.scanOnce(ctx, loadGame)
			}
		}
	}()
}

// scanOnce runs a single scan pass over all node-local clocks.
func (m *Manager) scanOnce(ctx context.Context, loadGame LiveGameLoader) {
	start := time.Now()
	defer func() { metrics.ClockScanDuration.Observe(time.Since(start).Seconds()) }()

	m.mu.Lock()
	gameIDs := make([]string, 0, len(m.clocks))
	for id, cs := range m.clocks {
		if cs.Active {
			gameIDs = append(gameIDs, id)
		}
	}
	m.mu.Unlock()

	for _, gameID := range gameIDs {
		snap, err := loadGame(ctx, gameID)
		if err != nil {
			m.logger.Warn("timemanager: failed to load game during scan", zap.String("gameId", gameID), zap.Error(err))
			continue
		}
		if snap.GameOver {
			m.Forget(gameID)
			continue
		}

		m.mu.Lock()
		cs, ok := m.clocks[gameID]
		m.mu.Unlock()
		if !ok {
			continue
		}

		remaining := m.RemainingMs(gameID, cs.CurrentTurn, snap.TimeLeftMs)
		if remaining <= 0 {
			losing := cs.CurrentTurn
			m.Forget(gameID)
			if _, err := m.forfeiter.TimeoutForfeit(ctx, gameID, losing); err != nil {
				m.logger.Warn("timemanager: timeout forfeit failed", zap.String("gameId", gameID), zap.Error(err))
				continue
			}
			metrics.TimeoutForfeits.Inc()
			_ = m.bus.Publish(ctx, models.EventTimeUp, gameID, map[string]interface{}{
				"gameId":      gameID,
				"losingColor": losing,
			})
		}
	}
}

// Stop halts the scan loop and waits for it to exit, flushing no pending
// work (the scanner holds no durable state) per the shutdown order in §5.
func (m *Manager) Stop() {
	close(m.stop)
	<-m.done
}

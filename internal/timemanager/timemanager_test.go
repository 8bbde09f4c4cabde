package timemanager_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chesscore/realtime/internal/models"
	"github.com/chesscore/realtime/internal/testsupport"
	"github.com/chesscore/realtime/internal/timemanager"
)

func newTestManager() *timemanager.Manager {
	live := testsupport.NewFakeLiveStore()
	bus := testsupport.NewFakeBus()
	return timemanager.New(live, nil, bus, time.Second, 500*time.Millisecond, zap.NewNop())
}

func TestRemainingMsIdleColorReturnsBaseline(t *testing.T) {
	m := newTestManager()
	m.StartGame("g1", models.ColorWhite)

	remaining := m.RemainingMs("g1", models.ColorBlack, map[models.Color]int64{
		models.ColorWhite: 60000,
		models.ColorBlack: 45000,
	})
	assert.Equal(t, int64(45000), remaining)
}

func TestRemainingMsDeductsElapsedForActiveColor(t *testing.T) {
	m := newTestManager()
	m.StartGame("g1", models.ColorWhite)
	time.Sleep(20 * time.Millisecond)

	remaining := m.RemainingMs("g1", models.ColorWhite, map[models.Color]int64{
		models.ColorWhite: 60000,
		models.ColorBlack: 60000,
	})
	assert.Less(t, remaining, int64(60000))
}

func TestPauseFreezesDeductions(t *testing.T) {
	m := newTestManager()
	m.StartGame("g1", models.ColorWhite)
	m.Pause("g1")
	time.Sleep(20 * time.Millisecond)

	remaining := m.RemainingMs("g1", models.ColorWhite, map[models.Color]int64{
		models.ColorWhite: 60000,
		models.ColorBlack: 60000,
	})
	assert.Equal(t, int64(60000), remaining)
}

func TestResumeResetsReferenceTimeWithoutPenalty(t *testing.T) {
	m := newTestManager()
	m.StartGame("g1", models.ColorWhite)
	m.Pause("g1")
	time.Sleep(20 * time.Millisecond)
	m.Resume("g1")

	remaining := m.RemainingMs("g1", models.ColorWhite, map[models.Color]int64{
		models.ColorWhite: 60000,
		models.ColorBlack: 60000,
	})
	assert.Equal(t, int64(60000), remaining)
}

// forfeiterStub records TimeoutForfeit invocations so ReportTimeUp/scanOnce
// behavior can be asserted without depending on GameCore.
type forfeiterStub struct {
	calls []models.Color
}

func (f *forfeiterStub) TimeoutForfeit(ctx context.Context, gameID string, losingColor models.Color) (models.LiveGame, error) {
	f.calls = append(f.calls, losingColor)
	return models.LiveGame{GameID: gameID, GameOver: true}, nil
}

func TestReportTimeUpForfeitsWhenServerAgrees(t *testing.T) {
	live := testsupport.NewFakeLiveStore()
	bus := testsupport.NewFakeBus()
	forfeiter := &forfeiterStub{}
	m := timemanager.New(live, forfeiter, bus, time.Second, 500*time.Millisecond, zap.NewNop())
	m.StartGame("g1", models.ColorWhite)

	forfeited, sync := m.ReportTimeUp(context.Background(), "g1", models.ColorWhite, map[models.Color]int64{
		models.ColorWhite: 0,
		models.ColorBlack: 60000,
	})
	assert.True(t, forfeited)
	require.Len(t, forfeiter.calls, 1)
	assert.Equal(t, models.ColorWhite, forfeiter.calls[0])
	assert.Equal(t, models.ColorWhite, sync.CurrentTurn)
}

func TestReportTimeUpRejectsPrematureClaim(t *testing.T) {
	live := testsupport.NewFakeLiveStore()
	bus := testsupport.NewFakeBus()
	forfeiter := &forfeiterStub{}
	m := timemanager.New(live, forfeiter, bus, time.Second, 500*time.Millisecond, zap.NewNop())
	m.StartGame("g1", models.ColorWhite)

	forfeited, _ := m.ReportTimeUp(context.Background(), "g1", models.ColorWhite, map[models.Color]int64{
		models.ColorWhite: 60000,
		models.ColorBlack: 60000,
	})
	assert.False(t, forfeited)
	assert.Empty(t, forfeiter.calls)
}

func TestSetForfeiterBreaksConstructionCycle(t *testing.T) {
	live := testsupport.NewFakeLiveStore()
	bus := testsupport.NewFakeBus()
	m := timemanager.New(live, nil, bus, time.Second, 500*time.Millisecond, zap.NewNop())

	forfeiter := &forfeiterStub{}
	m.SetForfeiter(forfeiter)
	m.StartGame("g1", models.ColorWhite)

	forfeited, _ := m.ReportTimeUp(context.Background(), "g1", models.ColorWhite, map[models.Color]int64{
		models.ColorWhite: 0,
		models.ColorBlack: 60000,
	})
	assert.True(t, forfeited)
	assert.Len(t, forfeiter.calls, 1)
}

func TestForgetRemovesClockState(t *testing.T) {
	m := newTestManager()
	m.StartGame("g1", models.ColorWhite)
	m.Forget("g1")

	// With no tracked clock state, RemainingMs falls back to the supplied
	// baseline untouched.
	remaining := m.RemainingMs("g1", models.ColorWhite, map[models.Color]int64{models.ColorWhite: 1234})
	assert.Equal(t, int64(1234), remaining)
}

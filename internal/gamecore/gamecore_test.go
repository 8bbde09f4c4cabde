package gamecore_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chesscore/realtime/internal/apperr"
	"github.com/chesscore/realtime/internal/chessengine"
	"github.com/chesscore/realtime/internal/gamecore"
	"github.com/chesscore/realtime/internal/models"
	"github.com/chesscore/realtime/internal/testsupport"
)

func newTestCore(t *testing.T) (*gamecore.Core, *testsupport.FakeLiveStore, *testsupport.FakeDurableStore, *testsupport.FakeBus, *testsupport.FakeClock) {
	t.Helper()
	live := testsupport.NewFakeLiveStore()
	durable := testsupport.NewFakeDurableStore()
	bus := testsupport.NewFakeBus()
	clock := testsupport.NewFakeClock()
	core := gamecore.New(live, durable, chessengine.New(), bus, clock, zap.NewNop())
	return core, live, durable, bus, clock
}

func createTestGame(t *testing.T, core *gamecore.Core) models.LiveGame {
	t.Helper()
	g, err := core.Create(context.Background(), gamecore.CreateParams{
		GameID:      "game-1",
		White:       gamecore.PlayerDTO{PlayerID: "white-player", Rating: 1200},
		Black:       gamecore.PlayerDTO{PlayerID: "black-player", Rating: 1200},
		Variant:     models.VariantRapid,
		GameType:    "RAPID_10_0",
		TimeControl: models.TimeControl{Time: 600, Increment: 0},
		LiveGameTTL: 0,
	})
	require.NoError(t, err)
	return g
}

func TestCreateSeedsClockAndPublishesGameStarted(t *testing.T) {
	core, _, _, bus, clock := newTestCore(t)
	g := createTestGame(t, core)

	assert.Equal(t, int64(600000), g.TimeLeftMs[models.ColorWhite])
	assert.Equal(t, int64(600000), g.TimeLeftMs[models.ColorBlack])
	assert.True(t, clock.Started("game-1"))

	env, ok := bus.Last(models.EventGameStarted)
	require.True(t, ok)
	assert.Equal(t, "game-1", env.GameID)
}

func TestApplyMoveRejectsWrongTurn(t *testing.T) {
	core, _, _, _, _ := newTestCore(t)
	createTestGame(t, core)

	_, err := core.ApplyMove(context.Background(), "game-1", "black-player", "e4")
	assert.True(t, apperr.Is(err, apperr.NotYourTurn))
}

func TestApplyMoveRejectsUnseatedPlayer(t *testing.T) {
	core, _, _, _, _ := newTestCore(t)
	createTestGame(t, core)

	_, err := core.ApplyMove(context.Background(), "game-1", "intruder", "e4")
	assert.True(t, apperr.Is(err, apperr.Unauthorized))
}

func TestApplyMoveRejectsIllegalMove(t *testing.T) {
	core, _, _, _, _ := newTestCore(t)
	createTestGame(t, core)

	_, err := core.ApplyMove(context.Background(), "game-1", "white-player", "e5")
	assert.True(t, apperr.Is(err, apperr.IllegalMove))
}

func TestApplyMoveAdvancesTurnAndPublishesMoveMade(t *testing.T) {
	core, _, _, bus, clock := newTestCore(t)
	createTestGame(t, core)

	g, err := core.ApplyMove(context.Background(), "game-1", "white-player", "e4")
	require.NoError(t, err)
	assert.Equal(t, models.ColorBlack, g.Turn)
	assert.Len(t, g.Moves, 1)
	assert.True(t, clock.Started("game-1"))

	env, ok := bus.Last(models.EventMoveMade)
	require.True(t, ok)
	assert.Equal(t, "game-1", env.GameID)

	// It is now black's turn; white may not move again.
	_, err = core.ApplyMove(context.Background(), "game-1", "white-player", "d4")
	assert.True(t, apperr.Is(err, apperr.NotYourTurn))
}

func TestApplyMoveAfterFinalizationIsRejected(t *testing.T) {
	core, _, _, _, clock := newTestCore(t)
	createTestGame(t, core)

	_, err := core.Resign(context.Background(), "game-1", "white-player")
	require.NoError(t, err)
	assert.True(t, clock.Forgotten("game-1"))

	_, err = core.ApplyMove(context.Background(), "game-1", "black-player", "e5")
	assert.True(t, apperr.Is(err, apperr.Finalized))
}

func TestResignAssignsVictoryToOpponent(t *testing.T) {
	core, _, durable, bus, _ := newTestCore(t)
	createTestGame(t, core)

	g, err := core.Resign(context.Background(), "game-1", "white-player")
	require.NoError(t, err)
	require.NotNil(t, g.Winner)
	assert.Equal(t, models.ColorBlack, *g.Winner)
	assert.Equal(t, models.ReasonResignation, g.EndReason)

	_, ok := bus.Last(models.EventGameEnded)
	assert.True(t, ok)

	gameRec, found := durable.Games()["game-1"]
	require.True(t, found)
	assert.NotZero(t, gameRec.Players)
}

func TestFinalizationIsExactlyOnce(t *testing.T) {
	core, _, _, _, _ := newTestCore(t)
	createTestGame(t, core)

	_, err := core.Resign(context.Background(), "game-1", "white-player")
	require.NoError(t, err)

	// A second finalization attempt (e.g. a racing timeout callback) must
	// observe Finalized rather than double-applying rating changes.
	_, err = core.Resign(context.Background(), "game-1", "black-player")
	assert.True(t, apperr.Is(err, apperr.Finalized))
}

func TestDrawByAgreementHasNoWinner(t *testing.T) {
	core, _, _, _, _ := newTestCore(t)
	createTestGame(t, core)

	g, err := core.DrawByAgreement(context.Background(), "game-1", "black-player")
	require.NoError(t, err)
	assert.Nil(t, g.Winner)
	assert.Equal(t, models.ReasonAgreement, g.EndReason)
	assert.Equal(t, models.ResultDraw, g.ResultScore)
}

func TestTimeoutForfeitAssignsVictoryToNonLosingColor(t *testing.T) {
	core, _, _, _, _ := newTestCore(t)
	createTestGame(t, core)

	g, err := core.TimeoutForfeit(context.Background(), "game-1", models.ColorWhite)
	require.NoError(t, err)
	require.NotNil(t, g.Winner)
	assert.Equal(t, models.ColorBlack, *g.Winner)
	assert.Equal(t, models.ReasonTimeout, g.EndReason)
}

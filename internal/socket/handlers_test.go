package socket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chesscore/realtime/internal/chessengine"
	"github.com/chesscore/realtime/internal/eventbus"
	"github.com/chesscore/realtime/internal/gamecore"
	"github.com/chesscore/realtime/internal/models"
	"github.com/chesscore/realtime/internal/store"
	"github.com/chesscore/realtime/internal/testsupport"
)

func newTestAdapter(t *testing.T) (*Adapter, *testsupport.FakeLiveStore, *testsupport.FakeDurableStore) {
	t.Helper()
	live := testsupport.NewFakeLiveStore()
	durable := testsupport.NewFakeDurableStore()
	fakeBus := testsupport.NewFakeBus()
	clock := testsupport.NewFakeClock()
	core := gamecore.New(live, durable, chessengine.New(), fakeBus, clock, zap.NewNop())

	a := New(Deps{
		Live:        live,
		Durable:     durable,
		Core:        core,
		Bus:         eventbus.New(nil, "test-node", time.Second, zap.NewNop()),
		JWTSecret:   []byte("test-secret"),
		Logger:      zap.NewNop(),
		LiveGameTTL: time.Hour,
	})
	return a, live, durable
}

func finishedGame(gameID, whiteID, blackID string, whitePost, blackPost int) models.LiveGame {
	return models.LiveGame{
		GameID: gameID,
		Players: [2]models.Participant{
			{PlayerID: whiteID, Color: models.ColorWhite, PreRating: 1200, PostRating: whitePost},
			{PlayerID: blackID, Color: models.ColorBlack, PreRating: 1210, PostRating: blackPost},
		},
		Info: models.GameInfo{
			Variant:     models.VariantRapid,
			GameType:    "RAPID_10_0",
			TimeControl: models.TimeControl{Time: 600},
		},
		GameOver:    true,
		ResultScore: models.ResultWhiteWin,
		EndReason:   models.ReasonCheckmate,
	}
}

func TestHandleAcceptRematchCreatesSwappedColorGame(t *testing.T) {
	a, live, durable := newTestAdapter(t)
	ctx := context.Background()

	g := finishedGame("game-1", "white-player", "black-player", 1215, 1205)
	require.NoError(t, live.SetJSON(ctx, store.LiveGameKey("game-1"), g, 0))
	require.NoError(t, durable.UpsertGameSkeleton(ctx, store.DurableGameSkeleton{GameID: "game-1", Players: g.Players}))

	raw, err := json.Marshal(gameIDPayload{GameID: "game-1"})
	require.NoError(t, err)

	c := NewConnection("c1", "black-player", nil, nil)
	a.handleAcceptRematch(ctx, c, raw)

	var oldGame models.LiveGame
	found, err := live.GetJSON(ctx, store.LiveGameKey("game-1"), &oldGame)
	require.NoError(t, err)
	require.True(t, found)
	require.NotEmpty(t, oldGame.RematchedInto)

	var newGame models.LiveGame
	found, err = live.GetJSON(ctx, store.LiveGameKey(oldGame.RematchedInto), &newGame)
	require.NoError(t, err)
	require.True(t, found)

	white, ok := newGame.ParticipantByColor(models.ColorWhite)
	require.True(t, ok)
	black, ok := newGame.ParticipantByColor(models.ColorBlack)
	require.True(t, ok)

	assert.Equal(t, "black-player", white.PlayerID, "seats must swap: the prior black seat plays white")
	assert.Equal(t, "white-player", black.PlayerID)
	assert.Equal(t, 1205, white.PreRating, "rematch seeds ratings from the finished game's post-ratings")
	assert.Equal(t, 1215, black.PreRating)
	assert.Equal(t, "game-1", newGame.RematchOf)

	games := durable.Games()
	require.Contains(t, games, oldGame.RematchedInto)
	assert.Equal(t, "game-1", games[oldGame.RematchedInto].RematchOf)
	assert.Equal(t, oldGame.RematchedInto, games["game-1"].RematchedInto)
}

func TestHandleAcceptRematchIsIdempotent(t *testing.T) {
	a, live, durable := newTestAdapter(t)
	ctx := context.Background()

	g := finishedGame("game-1", "white-player", "black-player", 1215, 1205)
	require.NoError(t, live.SetJSON(ctx, store.LiveGameKey("game-1"), g, 0))
	require.NoError(t, durable.UpsertGameSkeleton(ctx, store.DurableGameSkeleton{GameID: "game-1", Players: g.Players}))

	raw, err := json.Marshal(gameIDPayload{GameID: "game-1"})
	require.NoError(t, err)

	c := NewConnection("c1", "black-player", nil, nil)
	a.handleAcceptRematch(ctx, c, raw)

	var afterFirst models.LiveGame
	_, err = live.GetJSON(ctx, store.LiveGameKey("game-1"), &afterFirst)
	require.NoError(t, err)
	firstRematchID := afterFirst.RematchedInto
	require.NotEmpty(t, firstRematchID)

	a.handleAcceptRematch(ctx, c, raw)

	var afterSecond models.LiveGame
	_, err = live.GetJSON(ctx, store.LiveGameKey("game-1"), &afterSecond)
	require.NoError(t, err)
	assert.Equal(t, firstRematchID, afterSecond.RematchedInto, "a second accept must not spawn a duplicate rematch game")
}

func TestHandleAcceptRematchRejectsUnfinishedGame(t *testing.T) {
	a, live, _ := newTestAdapter(t)
	ctx := context.Background()

	g := finishedGame("game-1", "white-player", "black-player", 0, 0)
	g.GameOver = false
	require.NoError(t, live.SetJSON(ctx, store.LiveGameKey("game-1"), g, 0))

	raw, err := json.Marshal(gameIDPayload{GameID: "game-1"})
	require.NoError(t, err)

	c := NewConnection("c1", "black-player", nil, nil)
	a.handleAcceptRematch(ctx, c, raw)

	var after models.LiveGame
	_, err = live.GetJSON(ctx, store.LiveGameKey("game-1"), &after)
	require.NoError(t, err)
	assert.Empty(t, after.RematchedInto)
}

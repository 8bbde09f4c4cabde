package matchmaker_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chesscore/realtime/internal/chessengine"
	"github.com/chesscore/realtime/internal/gamecore"
	"github.com/chesscore/realtime/internal/matchmaker"
	"github.com/chesscore/realtime/internal/models"
	"github.com/chesscore/realtime/internal/store"
	"github.com/chesscore/realtime/internal/testsupport"
)

func newTestMatchmaker(t *testing.T) (*matchmaker.Matchmaker, *testsupport.FakeLiveStore, *testsupport.FakeDurableStore) {
	t.Helper()
	live := testsupport.NewFakeLiveStore()
	durable := testsupport.NewFakeDurableStore()
	bus := testsupport.NewFakeBus()
	clock := testsupport.NewFakeClock()
	core := gamecore.New(live, durable, chessengine.New(), bus, clock, zap.NewNop())

	counter := 0
	idFactory := func() string {
		counter++
		return fmt.Sprintf("game-%d", counter)
	}

	mm := matchmaker.New(live, durable, core, matchmaker.Config{
		InitialRange:      100,
		MaxRange:          600,
		RangeStepPerTick:  50,
		RangeStepInterval: 3 * time.Second,
		SearchSessionTTL:  5 * time.Minute,
		MatchLockTTL:      5 * time.Second,
		LiveGameTTL:       0,
	}, idFactory, zap.NewNop())
	return mm, live, durable
}

// markPresent seeds the presence record Tick requires before it will
// consider a candidate pairable (a disconnected candidate is dropped
// from the queue instead).
func markPresent(t *testing.T, live *testsupport.FakeLiveStore, playerID string) {
	t.Helper()
	require.NoError(t, live.SetJSON(context.Background(), store.PresenceKey(playerID), models.Presence{
		PlayerID:    playerID,
		IsConnected: true,
	}, 0))
}

func TestStartSearchIsIdempotentOnSearchStartTime(t *testing.T) {
	mm, _, _ := newTestMatchmaker(t)
	ctx := context.Background()

	require.NoError(t, mm.StartSearch(ctx, "p1", "RAPID_10_0", models.VariantRapid, models.TimeControl{Time: 600}, 1200, "conn-1"))
	first, found, err := mm.Status(ctx, "p1")
	require.NoError(t, err)
	require.True(t, found)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, mm.StartSearch(ctx, "p1", "RAPID_10_0", models.VariantRapid, models.TimeControl{Time: 600}, 1200, "conn-2"))
	second, found, err := mm.Status(ctx, "p1")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, first.SearchStartTime, second.SearchStartTime)
	assert.Equal(t, "conn-2", second.ConnectionID)
}

func TestCancelRemovesSearchSession(t *testing.T) {
	mm, _, _ := newTestMatchmaker(t)
	ctx := context.Background()

	require.NoError(t, mm.StartSearch(ctx, "p1", "RAPID_10_0", models.VariantRapid, models.TimeControl{Time: 600}, 1200, "conn-1"))
	require.NoError(t, mm.Cancel(ctx, "p1"))

	_, found, err := mm.Status(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCancelOfUnknownPlayerIsANoop(t *testing.T) {
	mm, _, _ := newTestMatchmaker(t)
	assert.NoError(t, mm.Cancel(context.Background(), "ghost"))
}

func TestTickPairsTwoSimilarlyRatedPlayers(t *testing.T) {
	mm, live, durable := newTestMatchmaker(t)
	ctx := context.Background()

	require.NoError(t, durable.UpsertPlayer(ctx, models.Player{PlayerID: "p1", Ratings: models.Ratings{Rapid: 1200}, GamesPlayed: 50}))
	require.NoError(t, durable.UpsertPlayer(ctx, models.Player{PlayerID: "p2", Ratings: models.Ratings{Rapid: 1210}, GamesPlayed: 50}))
	markPresent(t, live, "p1")
	markPresent(t, live, "p2")

	require.NoError(t, mm.StartSearch(ctx, "p1", "RAPID_10_0", models.VariantRapid, models.TimeControl{Time: 600}, 1200, "conn-1"))
	require.NoError(t, mm.StartSearch(ctx, "p2", "RAPID_10_0", models.VariantRapid, models.TimeControl{Time: 600}, 1210, "conn-2"))

	result, err := mm.Tick(ctx, "p1")
	require.NoError(t, err)
	assert.True(t, result.Found)
	assert.Equal(t, "p2", result.Opponent)
	assert.NotEmpty(t, result.GameID)

	// Both sessions are cleared once paired.
	_, found, _ := mm.Status(ctx, "p1")
	assert.False(t, found)
	_, found, _ = mm.Status(ctx, "p2")
	assert.False(t, found)
}

func TestTickWithNoCandidatesReturnsNotFound(t *testing.T) {
	mm, _, _ := newTestMatchmaker(t)
	ctx := context.Background()

	require.NoError(t, mm.StartSearch(ctx, "p1", "RAPID_10_0", models.VariantRapid, models.TimeControl{Time: 600}, 1200, "conn-1"))
	result, err := mm.Tick(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, result.Found)
}

func TestTickSkipsCandidateOutsideRatingWindow(t *testing.T) {
	mm, live, _ := newTestMatchmaker(t)
	ctx := context.Background()

	markPresent(t, live, "p1")
	markPresent(t, live, "p2")
	require.NoError(t, mm.StartSearch(ctx, "p1", "RAPID_10_0", models.VariantRapid, models.TimeControl{Time: 600}, 1200, "conn-1"))
	require.NoError(t, mm.StartSearch(ctx, "p2", "RAPID_10_0", models.VariantRapid, models.TimeControl{Time: 600}, 1900, "conn-2"))

	result, err := mm.Tick(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, result.Found)
}

func TestTickUsesCandidatesTrueRatingNotSelfRating(t *testing.T) {
	mm, live, durable := newTestMatchmaker(t)
	ctx := context.Background()

	require.NoError(t, durable.UpsertPlayer(ctx, models.Player{PlayerID: "p1", Ratings: models.Ratings{Rapid: 1200}, GamesPlayed: 50}))
	require.NoError(t, durable.UpsertPlayer(ctx, models.Player{PlayerID: "p2", Ratings: models.Ratings{Rapid: 1210}, GamesPlayed: 50}))
	markPresent(t, live, "p1")
	markPresent(t, live, "p2")

	require.NoError(t, mm.StartSearch(ctx, "p1", "RAPID_10_0", models.VariantRapid, models.TimeControl{Time: 600}, 1200, "conn-1"))
	require.NoError(t, mm.StartSearch(ctx, "p2", "RAPID_10_0", models.VariantRapid, models.TimeControl{Time: 600}, 1210, "conn-2"))

	result, err := mm.Tick(ctx, "p1")
	require.NoError(t, err)
	require.True(t, result.Found)

	var g models.LiveGame
	found, err := live.GetJSON(ctx, store.LiveGameKey(result.GameID), &g)
	require.NoError(t, err)
	require.True(t, found)

	p1, ok := g.ParticipantByColor(models.ColorWhite)
	if p1.PlayerID != "p1" {
		p1, ok = g.ParticipantByColor(models.ColorBlack)
	}
	require.True(t, ok)
	opponent, ok := g.ParticipantByColor(p1.Color.Opposite())
	require.True(t, ok)

	assert.Equal(t, 1200, p1.PreRating)
	assert.Equal(t, 1210, opponent.PreRating, "candidate's rating must survive the queue ZRem, not fall back to the searcher's own rating")
}

func TestStatsReflectsTotalPaired(t *testing.T) {
	mm, live, durable := newTestMatchmaker(t)
	ctx := context.Background()
	require.NoError(t, durable.UpsertPlayer(ctx, models.Player{PlayerID: "p1", GamesPlayed: 50}))
	require.NoError(t, durable.UpsertPlayer(ctx, models.Player{PlayerID: "p2", GamesPlayed: 50}))
	markPresent(t, live, "p1")
	markPresent(t, live, "p2")

	assert.Equal(t, 0, mm.Stats().TotalPaired)

	require.NoError(t, mm.StartSearch(ctx, "p1", "RAPID_10_0", models.VariantRapid, models.TimeControl{Time: 600}, 1200, "conn-1"))
	require.NoError(t, mm.StartSearch(ctx, "p2", "RAPID_10_0", models.VariantRapid, models.TimeControl{Time: 600}, 1200, "conn-2"))
	_, err := mm.Tick(ctx, "p1")
	require.NoError(t, err)

	assert.Equal(t, 1, mm.Stats().TotalPaired)
}

package models_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/chesscore/realtime/internal/models"
)

func gameWithParticipants() models.LiveGame {
	return models.LiveGame{
		GameID: "g1",
		Players: [2]models.Participant{
			{PlayerID: "white-player", Color: models.ColorWhite},
			{PlayerID: "black-player", Color: models.ColorBlack},
		},
	}
}

func TestColorOfKnownAndUnknownPlayer(t *testing.T) {
	g := gameWithParticipants()

	color, ok := g.ColorOf("black-player")
	assert.True(t, ok)
	assert.Equal(t, models.ColorBlack, color)

	_, ok = g.ColorOf("stranger")
	assert.False(t, ok)
}

func TestParticipantByColor(t *testing.T) {
	g := gameWithParticipants()

	p, ok := g.ParticipantByColor(models.ColorWhite)
	assert.True(t, ok)
	assert.Equal(t, "white-player", p.PlayerID)
}

func TestResultForWinnerAndDraw(t *testing.T) {
	white := models.ColorWhite
	black := models.ColorBlack

	assert.Equal(t, models.ResultWhiteWin, models.ResultFor(&white))
	assert.Equal(t, models.ResultBlackWin, models.ResultFor(&black))
	assert.Equal(t, models.ResultDraw, models.ResultFor(nil))
}

func TestScoreForMatchesResult(t *testing.T) {
	assert.Equal(t, 1.0, models.ResultWhiteWin.ScoreFor(models.ColorWhite))
	assert.Equal(t, 0.0, models.ResultWhiteWin.ScoreFor(models.ColorBlack))
	assert.Equal(t, 0.5, models.ResultDraw.ScoreFor(models.ColorWhite))
	assert.Equal(t, 0.5, models.ResultDraw.ScoreFor(models.ColorBlack))
}

func TestColorOpposite(t *testing.T) {
	assert.Equal(t, models.ColorBlack, models.ColorWhite.Opposite())
	assert.Equal(t, models.ColorWhite, models.ColorBlack.Opposite())
}

func TestChannelForRoutesByEventType(t *testing.T) {
	assert.Equal(t, models.ChannelMoves, models.ChannelFor(models.EventMoveMade))
	assert.Equal(t, models.ChannelTime, models.ChannelFor(models.EventTimeUp))
	assert.Equal(t, models.ChannelMatchmaking, models.ChannelFor(models.EventMatchFound))
	assert.Equal(t, models.ChannelPlayers, models.ChannelFor(models.EventPlayerConnected))
	assert.Equal(t, models.ChannelEvents, models.ChannelFor(models.EventGameEnded))
	assert.Equal(t, models.ChannelStateUpdates, models.ChannelFor(models.EventType("unknown")))
}

func TestRatingsGetAndSetPerVariant(t *testing.T) {
	r := models.Ratings{Rapid: 1200, Blitz: 1100, Bullet: 1000}
	assert.Equal(t, 1200, r.Get(models.VariantRapid))
	assert.Equal(t, 1100, r.Get(models.VariantBlitz))
	assert.Equal(t, 1000, r.Get(models.VariantBullet))

	updated := r.Set(models.VariantBlitz, 1150)
	assert.Equal(t, 1150, updated.Blitz)
	assert.Equal(t, 1100, r.Blitz, "Set must not mutate the receiver")
}

func TestPlayerIsProvisional(t *testing.T) {
	p := models.Player{GamesPlayed: 5}
	assert.True(t, p.IsProvisional())

	p.GamesPlayed = models.ProvisionalGameThreshold
	assert.False(t, p.IsProvisional())
}

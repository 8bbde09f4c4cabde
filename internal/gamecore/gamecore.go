// Package gamecore is the authoritative game-state machine (§4.5): move
// validation, turn/clock bookkeeping, terminal classification, and rating
// finalization.
package gamecore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/chesscore/realtime/internal/apperr"
	"github.com/chesscore/realtime/internal/chessengine"
	"github.com/chesscore/realtime/internal/metrics"
	"github.com/chesscore/realtime/internal/models"
	"github.com/chesscore/realtime/internal/store"
)

// Publisher is the narrow EventBus dependency GameCore needs; it is
// satisfied by *eventbus.Bus without gamecore importing that package
// directly.
type Publisher interface {
	Publish(ctx context.Context, eventType models.EventType, gameID string, payload map[string]interface{}) error
}

// Clock is the narrow TimeManager dependency GameCore needs to register a
// freshly created game and to recompute elapsed time on moves without
// importing the timemanager package directly.
type Clock interface {
	StartGame(gameID string, firstTurn models.Color)
	OnMove(gameID string, newTurn models.Color, at time.Time)
	Forget(gameID string)
}

// Core is the GameCore component.
type Core struct {
	live    store.LiveStore
	durable store.DurableStore
	engine  chessengine.Engine
	bus     Publisher
	clock   Clock
	logger  *zap.Logger
}

// New constructs a Core.
func New(live store.LiveStore, durable store.DurableStore, engine chessengine.Engine, bus Publisher, clock Clock, logger *zap.Logger) *Core {
	return &Core{live: live, durable: durable, engine: engine, bus: bus, clock: clock, logger: logger}
}

func finalizeGuardKey(gameID string) string { return "game_finalize_guard:" + gameID }

func (c *Core) loadLiveGame(ctx context.Context, gameID string) (models.LiveGame, error) {
	var g models.LiveGame
	found, err := c.live.GetJSON(ctx, store.LiveGameKey(gameID), &g)
	if err != nil {
		return models.LiveGame{}, apperr.NewStoreUnavailable(err)
	}
	if !found {
		return models.LiveGame{}, apperr.NewNotFound("game not found")
	}
	return g, nil
}

func (c *Core) saveLiveGame(ctx context.Context, g models.LiveGame, ttl time.Duration) error {
	if err := c.live.SetJSON(ctx, store.LiveGameKey(g.GameID), g, ttl); err != nil {
		return apperr.NewStoreUnavailable(err)
	}
	return nil
}

// CreateParams bundles the inputs to Create.
type CreateParams struct {
	GameID      string
	White       PlayerDTO
	Black       PlayerDTO
	Variant     models.Variant
	GameType    models.GameType
	TimeControl models.TimeControl
	LiveGameTTL time.Duration

	// RematchOf is the prior gameId this game was created from, if any
	// (supplemented rematch flow, SPEC_FULL.md).
	RematchOf string
}

// PlayerDTO is the matchmaker's view of a player being seated into a game.
type PlayerDTO struct {
	PlayerID    string
	Rating      int
	Provisional bool
}

// Create persists a skeleton DurableGame and the initial LiveGame, and
// publishes game_started (§4.5 "Create").
func (c *Core) Create(ctx context.Context, p CreateParams) (models.LiveGame, error) {
	startMs := int64(p.TimeControl.Time) * 1000

	white := models.Participant{PlayerID: p.White.PlayerID, Color: models.ColorWhite, PreRating: p.White.Rating}
	black := models.Participant{PlayerID: p.Black.PlayerID, Color: models.ColorBlack, PreRating: p.Black.Rating}

	ratingChanges := map[string]models.RatingChange{
		p.White.PlayerID: PrecomputeRatingChange(p.White.Rating, p.Black.Rating, p.White.Provisional),
		p.Black.PlayerID: PrecomputeRatingChange(p.Black.Rating, p.White.Rating, p.Black.Provisional),
	}

	now := time.Now()
	game := models.LiveGame{
		GameID:     p.GameID,
		Players:    [2]models.Participant{white, black},
		TimeLeftMs: map[models.Color]int64{models.ColorWhite: startMs, models.ColorBlack: startMs},
		Info: models.GameInfo{
			Variant:     p.Variant,
			GameType:    p.GameType,
			TimeControl: p.TimeControl,
		},
		InitialFEN:    chessengine.StartingFEN,
		Moves:         nil,
		PGN:           "",
		Turn:          models.ColorWhite,
		StartedAt:     now,
		LastMoveAt:    now,
		RatingChanges: ratingChanges,
		RematchOf:     p.RematchOf,
	}

	if err := c.durable.UpsertGameSkeleton(ctx, store.DurableGameSkeleton{
		GameID:      p.GameID,
		Players:     game.Players,
		Variant:     p.Variant,
		TimeControl: p.TimeControl,
		InitialFEN:  game.InitialFEN,
		StartedAt:   now,
		RematchOf:   p.RematchOf,
	}); err != nil {
		return models.LiveGame{}, apperr.NewStoreUnavailable(err)
	}

	if err := c.saveLiveGame(ctx, game, p.LiveGameTTL); err != nil {
		return models.LiveGame{}, err
	}

	c.clock.StartGame(p.GameID, models.ColorWhite)

	_ = c.bus.Publish(ctx, models.EventGameStarted, p.GameID, map[string]interface{}{
		"gameId":  p.GameID,
		"players": game.Players,
		"info":    game.Info,
	})

	return game, nil
}

// ApplyMove validates and applies a move (§4.5 "applyMove", invariants
// 1-3 of §8).
func (c *Core) ApplyMove(ctx context.Context, gameID, playerID, san string) (models.LiveGame, error) {
	g, err := c.loadLiveGame(ctx, gameID)
	if err != nil {
		return models.LiveGame{}, err
	}
	if g.GameOver {
		return models.LiveGame{}, apperr.NewFinalized("game already finalized")
	}

	moverColor, ok := g.ColorOf(playerID)
	if !ok {
		return models.LiveGame{}, apperr.NewUnauthorized("player is not seated in this game")
	}
	if moverColor != g.Turn {
		return models.LiveGame{}, apperr.NewNotYourTurn("not your turn")
	}

	sans := make([]string, len(g.Moves))
	for i, m := range g.Moves {
		sans[i] = m.SAN
	}
	state, err := chessengine.ReplayPGN(c.engine, g.InitialFEN, sans)
	if err != nil {
		return models.LiveGame{}, apperr.NewInternal(err)
	}

	result, newState, err := c.engine.ApplyMove(state, san)
	if err != nil {
		metrics.IllegalMoveAttempts.Inc()
		return models.LiveGame{}, err // already apperr.IllegalMove
	}
	metrics.MovesApplied.Inc()

	now := time.Now()
	elapsedMs := now.Sub(g.LastMoveAt).Milliseconds()
	incrementMs := int64(g.Info.TimeControl.Increment) * 1000
	remaining := g.TimeLeftMs[moverColor] - elapsedMs + incrementMs
	if remaining < 0 {
		remaining = 0
	}
	g.TimeLeftMs[moverColor] = remaining

	g.Moves = append(g.Moves, models.MoveRecord{
		SAN:       result.Move.SAN,
		From:      result.Move.From,
		To:        result.Move.To,
		Piece:     result.Move.Piece,
		Captured:  result.Move.Captured,
		Promotion: result.Move.Promotion,
		Timestamp: now,
	})
	g.PGN = result.NewPGN
	g.Turn = moverColor.Opposite()
	g.LastMoveAt = now

	if err := c.saveLiveGame(ctx, g, 0); err != nil {
		return models.LiveGame{}, err
	}

	c.clock.OnMove(gameID, g.Turn, now)

	moveNumber := len(g.Moves)
	appendFEN := ""
	if moveNumber%10 == 0 {
		appendFEN = result.NewFEN
	}
	_ = c.durable.AppendMove(ctx, gameID, store.MoveAppend{
		Move:       g.Moves[len(g.Moves)-1],
		PGN:        g.PGN,
		MoveNumber: moveNumber,
		AppendFEN:  appendFEN,
	})

	term := c.engine.Terminal(newState)
	if term.Over {
		winner := winnerFromTerminal(moverColor, term)
		return c.finalize(ctx, g, winner, term.Reason)
	}

	_ = c.bus.Publish(ctx, models.EventMoveMade, gameID, map[string]interface{}{
		"gameId":     gameID,
		"move":       g.Moves[len(g.Moves)-1],
		"newFEN":     result.NewFEN,
		"pgn":        g.PGN,
		"moveNumber": moveNumber,
		"timeLeftMs": g.TimeLeftMs,
		"turn":       g.Turn,
	})

	return g, nil
}

// winnerFromTerminal maps a terminal classification to a winner color;
// checkmate favors the side that just moved, and every other engine
// terminal is a draw with no winner.
func winnerFromTerminal(mover models.Color, term chessengine.Terminal) *models.Color {
	switch term.Reason {
	case models.ReasonCheckmate:
		w := mover
		return &w
	default:
		return nil
	}
}

// Resign handles a resignation (§4.5 "resignation").
func (c *Core) Resign(ctx context.Context, gameID, playerID string) (models.LiveGame, error) {
	g, err := c.loadLiveGame(ctx, gameID)
	if err != nil {
		return models.LiveGame{}, err
	}
	if g.GameOver {
		return models.LiveGame{}, apperr.NewFinalized("game already finalized")
	}
	resignerColor, ok := g.ColorOf(playerID)
	if !ok {
		return models.LiveGame{}, apperr.NewUnauthorized("player is not seated in this game")
	}
	winner := resignerColor.Opposite()
	return c.finalize(ctx, g, &winner, models.ReasonResignation)
}

// DrawByAgreement handles mutual draw acceptance (§4.5 "drawByAgreement").
func (c *Core) DrawByAgreement(ctx context.Context, gameID, acceptorID string) (models.LiveGame, error) {
	g, err := c.loadLiveGame(ctx, gameID)
	if err != nil {
		return models.LiveGame{}, err
	}
	if g.GameOver {
		return models.LiveGame{}, apperr.NewFinalized("game already finalized")
	}
	if _, ok := g.ColorOf(acceptorID); !ok {
		return models.LiveGame{}, apperr.NewUnauthorized("player is not seated in this game")
	}
	return c.finalize(ctx, g, nil, models.ReasonAgreement)
}

// TimeoutForfeit is invoked by the TimeManager when a side's clock expires
// (§4.5 "timeoutForfeit").
func (c *Core) TimeoutForfeit(ctx context.Context, gameID string, losingColor models.Color) (models.LiveGame, error) {
	g, err := c.loadLiveGame(ctx, gameID)
	if err != nil {
		return models.LiveGame{}, err
	}
	if g.GameOver {
		return models.LiveGame{}, apperr.NewFinalized("game already finalized")
	}
	winner := losingColor.Opposite()
	return c.finalize(ctx, g, &winner, models.ReasonTimeout)
}

// finalize runs the exactly-once finalization guard (§4.5, §5, §8
// invariant 5), updates ratings, persists, and publishes game_ended. A
// loser of the finalization race returns Finalized, which callers must
// swallow silently per §7.
func (c *Core) finalize(ctx context.Context, g models.LiveGame, winner *models.Color, reason models.EndReason) (models.LiveGame, error) {
	acquired, err := c.live.SetNXWithTTL(ctx, finalizeGuardKey(g.GameID), "1", time.Hour)
	if err != nil {
		return models.LiveGame{}, apperr.NewStoreUnavailable(err)
	}
	if !acquired {
		return models.LiveGame{}, apperr.NewFinalized("game already finalized")
	}

	now := time.Now()
	result := models.ResultFor(winner)

	g.GameOver = true
	g.Winner = winner
	g.ResultScore = result
	g.EndReason = reason
	g.EndedAt = &now

	white, _ := g.ParticipantByColor(models.ColorWhite)
	black, _ := g.ParticipantByColor(models.ColorBlack)

	whiteProvisional := g.RatingChanges[white.PlayerID].IsProvisional
	blackProvisional := g.RatingChanges[black.PlayerID].IsProvisional

	whiteDelta := RatingDelta(white.PreRating, black.PreRating, whiteProvisional, result.ScoreFor(models.ColorWhite))
	blackDelta := RatingDelta(black.PreRating, white.PreRating, blackProvisional, result.ScoreFor(models.ColorBlack))

	white.PostRating = NewRating(white.PreRating, whiteDelta)
	black.PostRating = NewRating(black.PreRating, blackDelta)
	g.Players = [2]models.Participant{white, black}

	if err := c.saveLiveGame(ctx, g, 0); err != nil {
		return models.LiveGame{}, err
	}

	c.clock.Forget(g.GameID)
	metrics.ActiveGames.Dec()
	metrics.GamesFinalized.WithLabelValues(string(reason)).Inc()

	_ = c.durable.FinalizeGame(ctx, g.GameID, store.GameFinalization{
		Winner:        winner,
		Reason:        reason,
		Result:        result,
		FinalPGN:      g.PGN,
		EndedAt:       now,
		RatingChanges: g.RatingChanges,
	})
	_ = c.durable.PatchPostRating(ctx, g.GameID, white.PlayerID, white.PostRating)
	_ = c.durable.PatchPostRating(ctx, g.GameID, black.PlayerID, black.PostRating)

	_ = c.bus.Publish(ctx, models.EventGameEnded, g.GameID, map[string]interface{}{
		"gameId":        g.GameID,
		"winner":        winner,
		"reason":        reason,
		"finalFEN":      "", // LiveGame does not keep the current FEN, so this is always empty
		"finalPGN":      g.PGN,
		"ratingChanges": g.RatingChanges,
	})
	_ = c.bus.Publish(ctx, models.EventRatingUpdated, g.GameID, map[string]interface{}{
		"gameId": g.GameID,
		"white":  white,
		"black":  black,
	})

	return g, nil
}

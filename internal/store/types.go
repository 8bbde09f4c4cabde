package store

import (
	"time"

	"github.com/chesscore/realtime/internal/models"
)

// DurableGameSkeleton is the minimal record written when a game starts
// (§4.9 "upsert skeleton DurableGame if absent").
type DurableGameSkeleton struct {
	GameID        string
	Players       [2]models.Participant
	Variant       models.Variant
	TimeControl   models.TimeControl
	InitialFEN    string
	StartedAt     time.Time
	RematchOf     string // non-empty when this game was created via the rematch flow
	RematchedInto string // non-empty once a rematch has been created from this game
}

// MoveAppend is one move written into the durable record (§4.9
// "move_made: append move, set pgn; every 10th move also append current
// FEN to fenHistory").
type MoveAppend struct {
	Move        models.MoveRecord
	PGN         string
	MoveNumber  int
	AppendFEN   string // non-empty only on every 10th move
}

// GameFinalization is written once a game ends (§4.9 "game_ended: set
// status=completed, result, endedAt, final pgn").
type GameFinalization struct {
	Winner        *models.Color
	Reason        models.EndReason
	Result        models.Result
	FinalPGN      string
	EndedAt       time.Time
	RatingChanges map[string]models.RatingChange
}

// PlayerRecord is the durable player profile document.
type PlayerRecord = models.Player

// CompletedGameSummary is the slice of a completed game's shape the color
// assignment streak-correction subroutine needs (§4.4): which color the
// player held and when the game ended.
type CompletedGameSummary struct {
	GameID    string
	Color     models.Color
	EndedAt   time.Time
}

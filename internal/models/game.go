package models

import "time"

// EndReason classifies why a game ended.
type EndReason string

const (
	ReasonCheckmate            EndReason = "checkmate"
	ReasonResignation          EndReason = "resignation"
	ReasonTimeout              EndReason = "timeout"
	ReasonStalemate            EndReason = "stalemate"
	ReasonAgreement            EndReason = "agreement"
	ReasonThreefold            EndReason = "threefold"
	ReasonFiftyMove            EndReason = "fifty_move"
	ReasonInsufficientMaterial EndReason = "insufficient_material"
)

// Result is the PGN-style score encoding of a finished game.
type Result string

const (
	ResultWhiteWin Result = "1-0"
	ResultBlackWin Result = "0-1"
	ResultDraw     Result = "1/2-1/2"
)

// ScoreFor returns the numeric score (1, 0, 0.5) for the given color under
// this result.
func (r Result) ScoreFor(c Color) float64 {
	switch {
	case r == ResultDraw:
		return 0.5
	case r == ResultWhiteWin && c == ColorWhite:
		return 1
	case r == ResultBlackWin && c == ColorBlack:
		return 1
	default:
		return 0
	}
}

// ResultFor computes the Result from a winner color (nil for draw).
func ResultFor(winner *Color) Result {
	if winner == nil {
		return ResultDraw
	}
	if *winner == ColorWhite {
		return ResultWhiteWin
	}
	return ResultBlackWin
}

// Participant is one seat in a game, assigned a color and carrying the
// pre-game rating used for finalization.
type Participant struct {
	PlayerID   string  `json:"playerId" redis:"playerId"`
	Color      Color   `json:"color" redis:"color"`
	PreRating  int     `json:"preRating" redis:"preRating"`
	PostRating int     `json:"postRating,omitempty" redis:"postRating"`
}

// GameInfo carries the static configuration of a game.
type GameInfo struct {
	Variant     Variant     `json:"variant" redis:"variant"`
	GameType    GameType    `json:"gameType" redis:"gameType"`
	TimeControl TimeControl `json:"timeControl" redis:"timeControl"`
}

// MoveRecord is one applied move, as appended to LiveGame.Moves.
type MoveRecord struct {
	SAN       string    `json:"san"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Piece     string    `json:"piece,omitempty"`
	Captured  string    `json:"captured,omitempty"`
	Promotion string    `json:"promotion,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RatingChange is the pre-computed display snapshot of what a player stands
// to gain/lose from a game, computed at creation time.
type RatingChange struct {
	OnWin         int  `json:"onWin"`
	OnLoss        int  `json:"onLoss"`
	OnDraw        int  `json:"onDraw"`
	IsProvisional bool `json:"isProvisional"`
}

// LiveGame is the sole authoritative record of a game in progress. It lives
// in LiveStore under live_game:<gameId>. Create writes it with the
// configured TTL; GameCore's later saves pass no TTL, which leaves the key
// without an expiry from the first move on.
type LiveGame struct {
	GameID      string                  `json:"gameId" redis:"gameId"`
	Players     [2]Participant          `json:"players" redis:"players"`
	TimeLeftMs  map[Color]int64         `json:"timeLeftMs" redis:"timeLeftMs"`
	Info        GameInfo                `json:"gameInfo" redis:"gameInfo"`
	InitialFEN  string                  `json:"initialFEN" redis:"initialFEN"`
	Moves       []MoveRecord            `json:"moves" redis:"moves"`
	PGN         string                  `json:"pgn" redis:"pgn"`
	Turn        Color                   `json:"turn" redis:"turn"`
	StartedAt   time.Time               `json:"startedAt" redis:"startedAt"`
	LastMoveAt  time.Time               `json:"lastMoveAt" redis:"lastMoveAt"`
	GameOver    bool                    `json:"gameOver" redis:"gameOver"`
	Winner      *Color                  `json:"winner,omitempty" redis:"winner"`
	ResultScore Result                  `json:"result,omitempty" redis:"result"`
	EndReason   EndReason               `json:"endReason,omitempty" redis:"endReason"`
	EndedAt     *time.Time              `json:"endedAt,omitempty" redis:"endedAt"`
	RatingChanges map[string]RatingChange `json:"ratingChanges,omitempty" redis:"ratingChanges"`

	// RematchOf/RematchedInto link a game to its rematch, if any.
	RematchOf     string `json:"rematchOf,omitempty" redis:"rematchOf"`
	RematchedInto string `json:"rematchedInto,omitempty" redis:"rematchedInto"`
}

// ParticipantByColor returns the participant seated in the given color.
func (g *LiveGame) ParticipantByColor(c Color) (Participant, bool) {
	for _, p := range g.Players {
		if p.Color == c {
			return p, true
		}
	}
	return Participant{}, false
}

// ColorOf returns the color a given playerId is seated in.
func (g *LiveGame) ColorOf(playerID string) (Color, bool) {
	for _, p := range g.Players {
		if p.PlayerID == playerID {
			return p.Color, true
		}
	}
	return "", false
}

// Opponent returns the playerId of the other participant.
func (g *LiveGame) Opponent(playerID string) (string, bool) {
	for _, p := range g.Players {
		if p.PlayerID != playerID {
			return p.PlayerID, true
		}
	}
	return "", false
}

// ClockState is node-local, in-process bookkeeping for the TimeManager
// scanner; it is rebuilt from LiveGame on game start/resume and never
// persisted.
type ClockState struct {
	GameID       string
	LastMoveTime time.Time
	CurrentTurn  Color
	Active       bool
}

// DurableGame is the finalized/historical record in the document store.
type DurableGame struct {
	GameID        string                  `firestore:"gameId"`
	Players       [2]Participant          `firestore:"players"`
	Variant       Variant                 `firestore:"variant"`
	TimeControl   TimeControl             `firestore:"timeControl"`
	InitialFEN    string                  `firestore:"initialFEN"`
	Moves         []MoveRecord            `firestore:"moves"`
	PGN           string                  `firestore:"pgn"`
	FENHistory    []string                `firestore:"fenHistory,omitempty"`
	Status        string                  `firestore:"status"`
	Winner        *Color                  `firestore:"winner"`
	EndReason     EndReason               `firestore:"reason,omitempty"`
	ResultScore   Result                  `firestore:"result,omitempty"`
	StartedAt     time.Time               `firestore:"startedAt"`
	EndedAt       *time.Time              `firestore:"endedAt,omitempty"`
	RatingChanges map[string]RatingChange `firestore:"ratingChanges,omitempty"`
	RematchOf     string                  `firestore:"rematchOf,omitempty"`
	RematchedInto string                  `firestore:"rematchedInto,omitempty"`
}

const (
	DurableStatusInProgress = "in_progress"
	DurableStatusCompleted  = "completed"
)
